package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Configuration provides type-safe access to application settings
type Configuration struct {
	viper *viper.Viper
}

// setDefaults applies the default settings shared by every constructor
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8200")
	v.SetDefault("storage.database_path", "./voxtailor.db")
	v.SetDefault("storage.upload_dir", "./uploads")
	v.SetDefault("storage.temp_dir", "")

	v.SetDefault("models.dir", "./vosk_models")
	v.SetDefault("models.base_url", "https://alphacephei.com/vosk/models")
	v.SetDefault("models.default_language", "en-us")

	v.SetDefault("tools.ffmpeg_path", "ffmpeg")
	v.SetDefault("tools.classifier_path", "detect_language")
	v.SetDefault("tools.recognizer_path", "vosk-recognizer")

	v.SetDefault("pipeline.worker_count", 4)
	v.SetDefault("pipeline.queue_depth", 64)
	v.SetDefault("pipeline.detect_timeout_sec", 60)
	v.SetDefault("pipeline.download_timeout_sec", 600)
	v.SetDefault("pipeline.transcribe_timeout_sec", 1800)

	v.SetDefault("upload.max_bytes", int64(500*1024*1024))

	v.SetDefault("debug.enabled", false)
}

// NewConfiguration creates a new Configuration instance with default settings
func NewConfiguration() *Configuration {
	v := viper.New()
	setDefaults(v)
	return &Configuration{viper: v}
}

// NewConfigurationFromFile creates a Configuration instance from a config file
func NewConfigurationFromFile(configFile string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return &Configuration{viper: v}, nil
}

// NewConfigurationFromEnv creates a Configuration instance that reads from environment variables
func NewConfigurationFromEnv() (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VOXTAILOR")
	v.AutomaticEnv()

	v.BindEnv("server.listen_addr", "VOXTAILOR_LISTEN_ADDR")
	v.BindEnv("storage.database_path", "VOXTAILOR_DATABASE_PATH")
	v.BindEnv("storage.upload_dir", "VOXTAILOR_UPLOAD_DIR")
	v.BindEnv("models.dir", "VOXTAILOR_MODELS_DIR")
	v.BindEnv("models.base_url", "VOXTAILOR_MODELS_BASE_URL")
	v.BindEnv("models.default_language", "VOXTAILOR_DEFAULT_LANGUAGE")
	v.BindEnv("tools.ffmpeg_path", "VOXTAILOR_FFMPEG_PATH")
	v.BindEnv("tools.classifier_path", "VOXTAILOR_CLASSIFIER_PATH")
	v.BindEnv("tools.recognizer_path", "VOXTAILOR_RECOGNIZER_PATH")
	v.BindEnv("pipeline.worker_count", "VOXTAILOR_WORKER_COUNT")
	v.BindEnv("debug.enabled", "VOXTAILOR_DEBUG")

	return &Configuration{viper: v}, nil
}

// GetListenAddr returns the HTTP listen address
func (c *Configuration) GetListenAddr() string {
	return c.viper.GetString("server.listen_addr")
}

// GetDatabasePath returns the SQLite database file path
func (c *Configuration) GetDatabasePath() string {
	return c.viper.GetString("storage.database_path")
}

// GetUploadDir returns the directory uploaded media files are stored in
func (c *Configuration) GetUploadDir() string {
	return c.viper.GetString("storage.upload_dir")
}

// GetTempDir returns the directory for transient audio files; empty means the OS default
func (c *Configuration) GetTempDir() string {
	return c.viper.GetString("storage.temp_dir")
}

// GetModelsDir returns the directory speech models are installed in
func (c *Configuration) GetModelsDir() string {
	return c.viper.GetString("models.dir")
}

// GetModelBaseURL returns the remote model catalog base URL
func (c *Configuration) GetModelBaseURL() string {
	return c.viper.GetString("models.base_url")
}

// GetDefaultLanguage returns the system default language code
func (c *Configuration) GetDefaultLanguage() string {
	return c.viper.GetString("models.default_language")
}

// GetFFmpegPath returns the ffmpeg binary path
func (c *Configuration) GetFFmpegPath() string {
	return c.viper.GetString("tools.ffmpeg_path")
}

// GetClassifierPath returns the language classifier binary path
func (c *Configuration) GetClassifierPath() string {
	return c.viper.GetString("tools.classifier_path")
}

// GetRecognizerPath returns the speech recognizer binary path
func (c *Configuration) GetRecognizerPath() string {
	return c.viper.GetString("tools.recognizer_path")
}

// GetWorkerCount returns the number of concurrent transcription workers
func (c *Configuration) GetWorkerCount() int {
	return c.viper.GetInt("pipeline.worker_count")
}

// GetQueueDepth returns the pending job queue capacity
func (c *Configuration) GetQueueDepth() int {
	return c.viper.GetInt("pipeline.queue_depth")
}

// GetDetectTimeout returns the timeout for one language detection pass
func (c *Configuration) GetDetectTimeout() time.Duration {
	return time.Duration(c.viper.GetInt("pipeline.detect_timeout_sec")) * time.Second
}

// GetDownloadTimeout returns the timeout for one model download
func (c *Configuration) GetDownloadTimeout() time.Duration {
	return time.Duration(c.viper.GetInt("pipeline.download_timeout_sec")) * time.Second
}

// GetTranscribeTimeout returns the timeout for one transcription pass
func (c *Configuration) GetTranscribeTimeout() time.Duration {
	return time.Duration(c.viper.GetInt("pipeline.transcribe_timeout_sec")) * time.Second
}

// GetMaxUploadBytes returns the maximum accepted upload size in bytes
func (c *Configuration) GetMaxUploadBytes() int64 {
	return c.viper.GetInt64("upload.max_bytes")
}

// GetDebugMode returns whether verbose debug logging is enabled
func (c *Configuration) GetDebugMode() bool {
	return c.viper.GetBool("debug.enabled")
}
