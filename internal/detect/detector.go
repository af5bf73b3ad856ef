package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Sample extraction bounds: skip the leading seconds (intros, silence) and
// classify a short window at the recognizer's native rate.
const (
	sampleOffsetSec   = 2
	sampleDurationSec = 10
	sampleRate        = 16000
)

// Confidence band for detection results. The classifier is coarse, so
// reported confidence is never allowed near 0 or 1.
const (
	minConfidence      = 0.3
	maxConfidence      = 0.85
	fallbackConfidence = 0.5
)

// Alternative is one ranked language candidate
type Alternative struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of one language detection pass
type Result struct {
	Language     string        `json:"language"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives"`
}

// classifierOutput is the wire shape emitted by the external classifier
type classifierOutput struct {
	Language          string        `json:"language"`
	Confidence        float64       `json:"confidence"`
	DetectedLanguages []Alternative `json:"detectedLanguages"`
	Error             string        `json:"error"`
}

// codeAliases normalizes raw classifier output (names or codes in mixed
// casing) to the canonical catalog code set
var codeAliases = map[string]string{
	"en":         "en-us",
	"en-us":      "en-us",
	"en-gb":      "en-us",
	"english":    "en-us",
	"es":         "es",
	"es-es":      "es",
	"es-mx":      "es",
	"spanish":    "es",
	"fr":         "fr",
	"fr-fr":      "fr",
	"french":     "fr",
	"de":         "de",
	"de-de":      "de",
	"german":     "de",
	"ru":         "ru",
	"russian":    "ru",
	"zh":         "zh-cn",
	"zh-cn":      "zh-cn",
	"cn":         "zh-cn",
	"chinese":    "zh-cn",
	"mandarin":   "zh-cn",
	"ja":         "ja",
	"jp":         "ja",
	"japanese":   "ja",
	"pt":         "pt-br",
	"pt-br":      "pt-br",
	"pt-pt":      "pt-br",
	"portuguese": "pt-br",
	"it":         "it",
	"it-it":      "it",
	"italian":    "it",
	"hi":         "hi",
	"hindi":      "hi",
}

// languageAffinity ranks plausible alternatives per detected language using
// geographic and family clusters rather than true multi-class probabilities
var languageAffinity = map[string][]string{
	"en-us": {"es", "fr", "de"},
	"es":    {"pt-br", "it", "fr"},
	"fr":    {"es", "it", "de"},
	"de":    {"fr", "en-us", "ru"},
	"ru":    {"de", "fr"},
	"zh-cn": {"ja"},
	"ja":    {"zh-cn"},
	"pt-br": {"es", "it", "fr"},
	"it":    {"es", "fr", "pt-br"},
	"hi":    {"en-us"},
}

// runCommandFunc executes an external command and returns its stdout
type runCommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Detector classifies the spoken language of a media file by sampling a
// bounded window of audio and delegating to an external classifier process
type Detector struct {
	ffmpegPath      string
	classifierPath  string
	tempDir         string
	defaultLanguage string
	logger          *zap.Logger
	runCommand      runCommandFunc
}

// NewDetector creates a new Detector instance
func NewDetector(ffmpegPath, classifierPath, tempDir, defaultLanguage string, logger *zap.Logger) *Detector {
	return &Detector{
		ffmpegPath:      ffmpegPath,
		classifierPath:  classifierPath,
		tempDir:         tempDir,
		defaultLanguage: defaultLanguage,
		logger:          logger,
		runCommand: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Detect classifies the spoken language of the media file. Detection never
// fails: any problem with sampling or classification yields the fixed
// fallback result so the pipeline can continue with the default language.
func (d *Detector) Detect(ctx context.Context, mediaPath string) Result {
	samplePath, err := d.extractSample(ctx, mediaPath)
	if err != nil {
		d.logger.Warn("language sample extraction failed, using fallback",
			zap.String("media_path", mediaPath),
			zap.Error(err))
		return d.fallbackResult()
	}
	defer func() {
		if removeErr := os.Remove(samplePath); removeErr != nil && !os.IsNotExist(removeErr) {
			d.logger.Warn("failed to remove language sample file",
				zap.String("sample_path", samplePath),
				zap.Error(removeErr))
		}
	}()

	output, err := d.runCommand(ctx, d.classifierPath, samplePath)
	if err != nil {
		d.logger.Warn("language classifier failed, using fallback", zap.Error(err))
		return d.fallbackResult()
	}

	var raw classifierOutput
	if err := json.Unmarshal(output, &raw); err != nil {
		d.logger.Warn("unparseable classifier output, using fallback", zap.Error(err))
		return d.fallbackResult()
	}
	if raw.Error != "" {
		d.logger.Warn("classifier reported error, using fallback",
			zap.String("classifier_error", raw.Error))
		return d.fallbackResult()
	}

	language := d.normalizeCode(raw.Language)
	confidence := clampConfidence(raw.Confidence)

	result := Result{
		Language:     language,
		Confidence:   confidence,
		Alternatives: d.rankAlternatives(language, confidence),
	}

	d.logger.Info("language detected",
		zap.String("media_path", mediaPath),
		zap.String("language", result.Language),
		zap.Float64("confidence", result.Confidence))
	return result
}

// extractSample transcodes a bounded window of the media file into a 16kHz
// mono WAV suitable for the classifier. The caller owns the returned file.
func (d *Detector) extractSample(ctx context.Context, mediaPath string) (string, error) {
	sample, err := os.CreateTemp(d.tempDir, "lang-sample-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create sample file: %w", err)
	}
	samplePath := sample.Name()
	sample.Close()

	args := []string{
		"-ss", fmt.Sprintf("%d", sampleOffsetSec),
		"-t", fmt.Sprintf("%d", sampleDurationSec),
		"-i", mediaPath,
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "1", // mono
		"-f", "wav",
		"-y", samplePath,
	}

	if _, err := d.runCommand(ctx, d.ffmpegPath, args...); err != nil {
		os.Remove(samplePath)
		return "", fmt.Errorf("ffmpeg sample extraction failed: %w", err)
	}

	return samplePath, nil
}

// normalizeCode maps raw classifier language output to the canonical code
// set; anything unmapped falls back to the default language
func (d *Detector) normalizeCode(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if code, ok := codeAliases[key]; ok {
		return code
	}
	d.logger.Debug("unmapped language code from classifier",
		zap.String("raw", raw),
		zap.String("fallback", d.defaultLanguage))
	return d.defaultLanguage
}

// rankAlternatives produces the ranked candidate list: the primary guess
// followed by its affinity cluster at decaying confidence
func (d *Detector) rankAlternatives(language string, confidence float64) []Alternative {
	alternatives := []Alternative{{Language: language, Confidence: confidence}}

	decay := 0.6
	for _, related := range languageAffinity[language] {
		c := confidence * decay
		if c < 0.1 {
			c = 0.1
		}
		alternatives = append(alternatives, Alternative{Language: related, Confidence: c})
		decay -= 0.1
	}
	return alternatives
}

// fallbackResult is the fixed answer for any detection failure
func (d *Detector) fallbackResult() Result {
	return Result{
		Language:     d.defaultLanguage,
		Confidence:   fallbackConfidence,
		Alternatives: d.rankAlternatives(d.defaultLanguage, fallbackConfidence),
	}
}

func clampConfidence(c float64) float64 {
	if c < minConfidence {
		return minConfidence
	}
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}
