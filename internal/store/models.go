package store

import (
	"fmt"
	"time"
)

// Project status values. A project starts in StatusProcessing and always ends
// in StatusCompleted or StatusFailed.
const (
	StatusProcessing       = "processing"
	StatusDownloadingModel = "downloading_model"
	StatusCompleted        = "completed"
	StatusFailed           = "failed"
)

// Media types accepted at upload
const (
	MediaTypeAudio         = "audio"
	MediaTypeVideo         = "video"
	MediaTypeLiveRecording = "live_recording"
)

// Project represents one uploaded media file and its transcription lifecycle
type Project struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	MediaType    string    `json:"media_type"`
	Status       string    `json:"status"`
	Language     string    `json:"language"`
	SourcePath   string    `json:"source_path"`
	Checksum     string    `json:"checksum"`
	DurationSec  float64   `json:"duration_sec"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Metadata     string    `json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TranscriptionSegment represents a single timestamped span of recognized speech
type TranscriptionSegment struct {
	ProjectID  string  `json:"project_id"`
	Position   int     `json:"position"`
	StartSec   float64 `json:"start_sec"`
	EndSec     float64 `json:"end_sec"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	SpeakerID  string  `json:"speaker_id,omitempty"`
}

// Validate checks if the TranscriptionSegment has valid values
func (s *TranscriptionSegment) Validate() error {
	if s.Text == "" {
		return fmt.Errorf("text cannot be empty")
	}

	if s.StartSec < 0 {
		return fmt.Errorf("start_sec cannot be negative")
	}

	// End may equal start only for the synthetic no-speech segment over
	// zero-length audio; it is never allowed to precede the start.
	if s.EndSec < s.StartSec {
		return fmt.Errorf("end_sec must not be before start_sec")
	}

	if s.Confidence < 0.0 || s.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0")
	}

	return nil
}

// Model size classes
const (
	SizeClassSmall = "small"
	SizeClassLarge = "large"
)

// LanguageModel describes one offline speech-recognition resource bundle.
// Installed state is derived from the models directory, never stored.
type LanguageModel struct {
	ID           string `json:"id"`
	LanguageCode string `json:"language_code"`
	LanguageName string `json:"language_name"`
	ModelName    string `json:"model_name"`
	SizeClass    string `json:"size_class"`
	FileSizeMB   int    `json:"file_size_mb"`
	DownloadURL  string `json:"download_url"`
	IsDefault    bool   `json:"is_default"`
}
