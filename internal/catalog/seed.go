package catalog

import (
	"fmt"

	"voxtailor/internal/store"
)

// SeedModels returns the stock model catalog for the ten supported languages.
// URLs are rooted at baseURL so tests and mirrors can redirect downloads.
func SeedModels(baseURL string) []store.LanguageModel {
	entry := func(id, code, name, modelName string, sizeMB int, isDefault bool) store.LanguageModel {
		return store.LanguageModel{
			ID:           id,
			LanguageCode: code,
			LanguageName: name,
			ModelName:    modelName,
			SizeClass:    store.SizeClassSmall,
			FileSizeMB:   sizeMB,
			DownloadURL:  fmt.Sprintf("%s/%s.zip", baseURL, modelName),
			IsDefault:    isDefault,
		}
	}

	return []store.LanguageModel{
		entry("en-us-small", "en-us", "English (US)", "vosk-model-small-en-us-0.15", 40, true),
		entry("es-small", "es", "Spanish", "vosk-model-small-es-0.42", 39, false),
		entry("fr-small", "fr", "French", "vosk-model-small-fr-0.22", 41, false),
		entry("de-small", "de", "German", "vosk-model-small-de-0.15", 45, false),
		entry("ru-small", "ru", "Russian", "vosk-model-small-ru-0.22", 45, false),
		entry("zh-cn-small", "zh-cn", "Chinese (Mandarin)", "vosk-model-small-cn-0.22", 42, false),
		entry("ja-small", "ja", "Japanese", "vosk-model-small-ja-0.22", 48, false),
		entry("pt-br-small", "pt-br", "Portuguese (Brazil)", "vosk-model-small-pt-0.3", 31, false),
		entry("it-small", "it", "Italian", "vosk-model-small-it-0.22", 48, false),
		entry("hi-small", "hi", "Hindi", "vosk-model-small-hi-0.22", 42, false),
	}
}
