package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"voxtailor/internal/detect"
	"voxtailor/internal/engine"
	"voxtailor/internal/store"
)

type fakeClassifier struct {
	result detect.Result
	called bool
}

func (f *fakeClassifier) Detect(ctx context.Context, mediaPath string) detect.Result {
	f.called = true
	return f.result
}

type fakeCatalog struct {
	byLanguage map[string]store.LanguageModel
	def        store.LanguageModel
	installed  map[string]bool
	resolveErr error
}

func (f *fakeCatalog) Resolve(ctx context.Context, languageCode string) (store.LanguageModel, error) {
	if f.resolveErr != nil {
		return store.LanguageModel{}, f.resolveErr
	}
	if m, ok := f.byLanguage[languageCode]; ok {
		return m, nil
	}
	return f.def, nil
}

func (f *fakeCatalog) DefaultModel(ctx context.Context) (store.LanguageModel, error) {
	return f.def, nil
}

func (f *fakeCatalog) IsInstalled(m store.LanguageModel) bool {
	return f.installed[m.ID]
}

func (f *fakeCatalog) ModelPath(m store.LanguageModel) string {
	return "/models/" + m.ModelName
}

type fakeFetcher struct {
	err       error
	requested []string
	catalog   *fakeCatalog
}

func (f *fakeFetcher) EnsureAvailable(ctx context.Context, model store.LanguageModel) error {
	f.requested = append(f.requested, model.ID)
	if f.err != nil {
		return f.err
	}
	f.catalog.installed[model.ID] = true
	return nil
}

type fakeRecognizer struct {
	transcript engine.Transcript
	err        error
	modelPath  string
	called     bool
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, mediaPath string, modelPath string) (engine.Transcript, error) {
	f.called = true
	f.modelPath = modelPath
	return f.transcript, f.err
}

type fakeProjects struct {
	mu            sync.Mutex
	project       store.Project
	getErr        error
	statusHistory []string
	languages     []string
	committed     []store.TranscriptionSegment
	committedDur  float64
	failReason    string
	events        []string
}

func (f *fakeProjects) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeProjects) GetProject(ctx context.Context, id string) (store.Project, error) {
	return f.project, f.getErr
}

func (f *fakeProjects) UpdateProjectStatus(ctx context.Context, id string, status string) error {
	f.statusHistory = append(f.statusHistory, status)
	f.record("status:" + status)
	return nil
}

func (f *fakeProjects) UpdateProjectLanguage(ctx context.Context, id string, language string) error {
	f.languages = append(f.languages, language)
	f.record("language:" + language)
	return nil
}

func (f *fakeProjects) MarkProjectFailed(ctx context.Context, id string, reason string) error {
	// Terminal writes behave like the real store: a dead context means no row
	// is written
	if err := ctx.Err(); err != nil {
		return err
	}
	f.failReason = reason
	f.statusHistory = append(f.statusHistory, store.StatusFailed)
	f.record("status:failed")
	return nil
}

func (f *fakeProjects) CommitTranscription(ctx context.Context, projectID string, segments []store.TranscriptionSegment, durationSec float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.committed = segments
	f.committedDur = durationSec
	f.record("commit")
	return nil
}

type fixture struct {
	classifier *fakeClassifier
	catalog    *fakeCatalog
	fetcher    *fakeFetcher
	recognizer *fakeRecognizer
	projects   *fakeProjects
	orch       *Orchestrator
}

func newFixture() *fixture {
	enModel := store.LanguageModel{ID: "en-us-small", LanguageCode: "en-us", ModelName: "vosk-model-small-en-us-0.15", IsDefault: true}
	esModel := store.LanguageModel{ID: "es-small", LanguageCode: "es", ModelName: "vosk-model-small-es-0.42"}

	catalog := &fakeCatalog{
		byLanguage: map[string]store.LanguageModel{"en-us": enModel, "es": esModel},
		def:        enModel,
		installed:  map[string]bool{"en-us-small": true},
	}
	f := &fixture{
		classifier: &fakeClassifier{result: detect.Result{Language: "es", Confidence: 0.7}},
		catalog:    catalog,
		fetcher:    &fakeFetcher{catalog: catalog},
		recognizer: &fakeRecognizer{transcript: engine.Transcript{
			Segments: []store.TranscriptionSegment{
				{StartSec: 0, EndSec: 1.5, Text: "Hi", Confidence: 0.9},
			},
			TotalDurationSeconds: 1.5,
		}},
		projects: &fakeProjects{project: store.Project{ID: "proj-1", Status: store.StatusProcessing}},
	}
	f.orch = NewOrchestrator(f.classifier, f.catalog, f.fetcher, f.recognizer, f.projects, StageTimeouts{}, zap.NewNop())
	return f
}

func TestOrchestrator_Run(t *testing.T) {
	t.Run("should detect language when none supplied and persist it before transcription", func(t *testing.T) {
		// Arrange
		f := newFixture()

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4"})

		// Assert
		assert.True(t, f.classifier.called)
		assert.Equal(t, []string{"es"}, f.projects.languages)
		// Detected language must be durable before the transcript commit
		assert.Equal(t, "language:es", f.projects.events[0])
		assert.Equal(t, "commit", f.projects.events[len(f.projects.events)-1])
	})

	t.Run("should detect language when auto is requested", func(t *testing.T) {
		// Arrange
		f := newFixture()

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4", Language: LanguageAuto})

		// Assert
		assert.True(t, f.classifier.called)
	})

	t.Run("should skip detection when caller supplied a language", func(t *testing.T) {
		// Arrange
		f := newFixture()

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4", Language: "en-us"})

		// Assert
		assert.False(t, f.classifier.called)
		assert.Empty(t, f.projects.languages)
	})

	t.Run("should commit segments and duration on success", func(t *testing.T) {
		// Arrange
		f := newFixture()

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4", Language: "en-us"})

		// Assert
		assert.Len(t, f.projects.committed, 1)
		assert.Equal(t, 1.5, f.projects.committedDur)
		assert.Empty(t, f.projects.failReason)
	})

	t.Run("should not announce download for an installed model", func(t *testing.T) {
		// Arrange
		f := newFixture()

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4", Language: "en-us"})

		// Assert
		assert.NotContains(t, f.projects.statusHistory, store.StatusDownloadingModel)
		assert.Empty(t, f.fetcher.requested)
	})

	t.Run("should provision an absent model behind a visible downloading status", func(t *testing.T) {
		// Arrange
		f := newFixture()

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4", Language: "es"})

		// Assert
		assert.Equal(t, []string{"es-small"}, f.fetcher.requested)
		assert.Equal(t, []string{store.StatusDownloadingModel, store.StatusProcessing}, f.projects.statusHistory)
		assert.Equal(t, "/models/vosk-model-small-es-0.42", f.recognizer.modelPath)
	})

	t.Run("should downgrade to default model when provisioning fails", func(t *testing.T) {
		// Arrange
		f := newFixture()
		f.fetcher.err = errors.New("HTTP 503")

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4", Language: "es"})

		// Assert
		assert.True(t, f.recognizer.called, "job must still reach transcription")
		assert.Equal(t, "/models/vosk-model-small-en-us-0.15", f.recognizer.modelPath)
		assert.Contains(t, f.projects.languages, "en-us")
		assert.Len(t, f.projects.committed, 1, "downgraded job still completes")
		assert.Empty(t, f.projects.failReason)
	})

	t.Run("should reach transcription with fallback language when detection degrades", func(t *testing.T) {
		// Arrange
		f := newFixture()
		// Detector contract: failures surface as the fallback result
		f.classifier.result = detect.Result{Language: "en-us", Confidence: 0.5}

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4"})

		// Assert
		assert.True(t, f.recognizer.called)
		assert.Equal(t, []string{"en-us"}, f.projects.languages)
		assert.Empty(t, f.projects.failReason)
	})

	t.Run("should fail the project on engine error without committing", func(t *testing.T) {
		// Arrange
		f := newFixture()
		f.recognizer.err = &engine.EngineError{Stage: "recognizer", Err: errors.New("exit status 2")}

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4", Language: "en-us"})

		// Assert
		assert.Empty(t, f.projects.committed)
		assert.Contains(t, f.projects.failReason, "recognizer")
		assert.Equal(t, []string{store.StatusFailed}, f.projects.statusHistory)
	})

	t.Run("should preserve detected language when transcription later fails", func(t *testing.T) {
		// Arrange
		f := newFixture()
		f.recognizer.err = &engine.EngineError{Stage: "transcode", Err: errors.New("bad input")}

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4"})

		// Assert
		assert.Equal(t, []string{"es"}, f.projects.languages,
			"committed language survives a later stage failure")
		assert.Contains(t, f.projects.failReason, "transcode")
	})

	t.Run("should not expose intermediate statuses when re-transcribing a completed project", func(t *testing.T) {
		// Arrange
		f := newFixture()
		f.projects.project.Status = store.StatusCompleted

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4", Language: "es"})

		// Assert
		assert.NotContains(t, f.projects.statusHistory, store.StatusDownloadingModel)
		assert.NotContains(t, f.projects.statusHistory, store.StatusProcessing)
		assert.Len(t, f.projects.committed, 1)
	})

	t.Run("should commit the transcript even when the job context is cancelled", func(t *testing.T) {
		// Arrange
		f := newFixture()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// Act
		f.orch.Run(ctx, Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4", Language: "en-us"})

		// Assert
		assert.Len(t, f.projects.committed, 1, "shutdown must not strand a finished transcript")
		assert.Empty(t, f.projects.failReason)
	})

	t.Run("should reach the failed state even when the job context is cancelled", func(t *testing.T) {
		// Arrange
		f := newFixture()
		f.recognizer.err = &engine.EngineError{Stage: "recognizer", Err: errors.New("signal: killed")}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// Act
		f.orch.Run(ctx, Job{ProjectID: "proj-1", MediaPath: "/u/a.mp4", Language: "en-us"})

		// Assert
		assert.Contains(t, f.projects.failReason, "recognizer",
			"a cancelled job must still end in a terminal state")
		assert.Empty(t, f.projects.committed)
	})

	t.Run("should do nothing for an unknown project", func(t *testing.T) {
		// Arrange
		f := newFixture()
		f.projects.getErr = errors.New("sql: no rows in result set")

		// Act
		f.orch.Run(context.Background(), Job{ProjectID: "missing", MediaPath: "/u/a.mp4"})

		// Assert
		assert.False(t, f.recognizer.called)
		assert.Empty(t, f.projects.statusHistory)
	})
}
