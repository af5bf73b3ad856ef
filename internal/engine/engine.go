package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"voxtailor/internal/store"
)

// Recognizer input format: 16kHz mono 16-bit linear PCM, so one second of
// audio occupies sampleRate * 2 bytes after the WAV header.
const (
	sampleRate    = 16000
	bytesPerSec   = sampleRate * 2
	wavHeaderSize = 44
)

// maxSegmentWords closes a segment once this many words accumulate without
// terminal punctuation
const maxSegmentWords = 10

// PlaceholderText is the single synthetic segment emitted when the
// recognizer finds no speech at all
const PlaceholderText = "No speech detected"

// EngineError is a fatal transcription failure: the job cannot produce
// segments for this attempt
type EngineError struct {
	Stage string
	Err   error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s failure: %v", e.Stage, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Word is one recognized token with its timing and confidence
type Word struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

// recognizerLine is one newline-delimited JSON record from the recognizer;
// a populated error field aborts the pass
type recognizerLine struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Error      string  `json:"error"`
}

// Transcript is the adapter's output for one media file
type Transcript struct {
	Segments             []store.TranscriptionSegment
	TotalDurationSeconds float64
}

// runCommandFunc executes an external command and returns its stdout
type runCommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Engine invokes the external offline recognizer: it marshals arbitrary
// media into the recognizer's raw audio format and unmarshals word-level
// output into sentence-like segments
type Engine struct {
	ffmpegPath     string
	recognizerPath string
	tempDir        string
	logger         *zap.Logger
	runCommand     runCommandFunc
}

// NewEngine creates a new Engine instance
func NewEngine(ffmpegPath, recognizerPath, tempDir string, logger *zap.Logger) *Engine {
	return &Engine{
		ffmpegPath:     ffmpegPath,
		recognizerPath: recognizerPath,
		tempDir:        tempDir,
		logger:         logger,
		runCommand: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Transcribe runs the external recognizer over the media file using the
// model installed at modelPath. The transcoded intermediate file never
// outlives the call.
func (e *Engine) Transcribe(ctx context.Context, mediaPath string, modelPath string) (Transcript, error) {
	if info, err := os.Stat(modelPath); err != nil || !info.IsDir() {
		return Transcript{}, &EngineError{
			Stage: "model",
			Err:   fmt.Errorf("model not installed at %s", modelPath),
		}
	}

	wavPath, err := e.transcode(ctx, mediaPath)
	if err != nil {
		return Transcript{}, &EngineError{Stage: "transcode", Err: err}
	}
	defer func() {
		if removeErr := os.Remove(wavPath); removeErr != nil && !os.IsNotExist(removeErr) {
			e.logger.Warn("failed to remove transcoded audio",
				zap.String("path", wavPath),
				zap.Error(removeErr))
		}
	}()

	totalDuration, err := wavDurationSeconds(wavPath)
	if err != nil {
		return Transcript{}, &EngineError{Stage: "transcode", Err: err}
	}

	output, err := e.runCommand(ctx, e.recognizerPath, "--model", modelPath, "--input", wavPath)
	if err != nil {
		return Transcript{}, &EngineError{
			Stage: "recognizer",
			Err:   fmt.Errorf("recognizer process failed: %w", err),
		}
	}

	words, err := parseRecognizerOutput(output)
	if err != nil {
		return Transcript{}, err
	}

	segments := GroupWords(words)
	if len(segments) == 0 {
		segments = []store.TranscriptionSegment{{
			StartSec:   0,
			EndSec:     totalDuration,
			Text:       PlaceholderText,
			Confidence: 0.0,
		}}
	}

	e.logger.Info("transcription pass finished",
		zap.String("media_path", mediaPath),
		zap.Int("words", len(words)),
		zap.Int("segments", len(segments)),
		zap.Float64("duration_sec", totalDuration))

	return Transcript{Segments: segments, TotalDurationSeconds: totalDuration}, nil
}

// transcode converts the media file to 16kHz mono 16-bit PCM WAV. The caller
// owns the returned file.
func (e *Engine) transcode(ctx context.Context, mediaPath string) (string, error) {
	out, err := os.CreateTemp(e.tempDir, "transcribe-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create transcode target: %w", err)
	}
	wavPath := out.Name()
	out.Close()

	args := []string{
		"-i", mediaPath,
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "1", // mono
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"-y", wavPath,
	}

	if _, err := e.runCommand(ctx, e.ffmpegPath, args...); err != nil {
		os.Remove(wavPath)
		return "", fmt.Errorf("ffmpeg transcode failed: %w", err)
	}
	return wavPath, nil
}

// wavDurationSeconds derives the audio duration from the PCM payload size
func wavDurationSeconds(wavPath string) (float64, error) {
	info, err := os.Stat(wavPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat transcoded audio: %w", err)
	}
	payload := info.Size() - wavHeaderSize
	if payload < 0 {
		payload = 0
	}
	return float64(payload) / float64(bytesPerSec), nil
}

// parseRecognizerOutput decodes the newline-delimited word JSON emitted by
// the recognizer
func parseRecognizerOutput(output []byte) ([]Word, error) {
	var words []Word
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var rec recognizerLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, &EngineError{
				Stage: "parse",
				Err:   fmt.Errorf("unparseable recognizer output %q: %w", line, err),
			}
		}
		if rec.Error != "" {
			return nil, &EngineError{
				Stage: "recognizer",
				Err:   fmt.Errorf("recognizer reported: %s", rec.Error),
			}
		}
		if rec.Word == "" {
			continue
		}
		words = append(words, Word{
			Word:       rec.Word,
			Confidence: rec.Confidence,
			Start:      rec.Start,
			End:        rec.End,
		})
	}
	return words, nil
}

// GroupWords folds word-level recognizer output into sentence-like segments.
// A segment closes when its last word ends in terminal punctuation, when it
// reaches maxSegmentWords, or at the final word. Segment confidence is the
// arithmetic mean of its words' confidences.
func GroupWords(words []Word) []store.TranscriptionSegment {
	var segments []store.TranscriptionSegment
	var current []Word

	flush := func() {
		if len(current) == 0 {
			return
		}
		texts := make([]string, len(current))
		confidenceSum := 0.0
		for i, w := range current {
			texts[i] = w.Word
			confidenceSum += w.Confidence
		}
		segments = append(segments, store.TranscriptionSegment{
			StartSec:   current[0].Start,
			EndSec:     current[len(current)-1].End,
			Text:       strings.Join(texts, " "),
			Confidence: confidenceSum / float64(len(current)),
		})
		current = current[:0]
	}

	for _, w := range words {
		current = append(current, w)
		if endsSentence(w.Word) || len(current) >= maxSegmentWords {
			flush()
		}
	}
	flush()

	return segments
}

// endsSentence reports whether a word carries terminal punctuation
func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") ||
		strings.HasSuffix(word, "!") ||
		strings.HasSuffix(word, "?")
}
