package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"voxtailor/internal/detect"
	"voxtailor/internal/engine"
	"voxtailor/internal/store"
)

// LanguageAuto requests language auto-detection for a job
const LanguageAuto = "auto"

// Job describes one end-to-end transcription run for a single project. The
// project id is the only durable correlation key; everything else is carried
// explicitly so no stage depends on process-local registries.
type Job struct {
	ProjectID string
	MediaPath string
	Language  string // empty or LanguageAuto triggers detection
}

// LanguageClassifier detects the spoken language of a media file. It never
// fails: a classification problem yields the fixed fallback result.
type LanguageClassifier interface {
	Detect(ctx context.Context, mediaPath string) detect.Result
}

// ModelResolver maps languages to models and answers installed-state queries
type ModelResolver interface {
	Resolve(ctx context.Context, languageCode string) (store.LanguageModel, error)
	DefaultModel(ctx context.Context) (store.LanguageModel, error)
	IsInstalled(m store.LanguageModel) bool
	ModelPath(m store.LanguageModel) string
}

// ModelFetcher ensures a model is present locally, downloading if necessary
type ModelFetcher interface {
	EnsureAvailable(ctx context.Context, model store.LanguageModel) error
}

// SpeechRecognizer produces a transcript for a media file with a local model
type SpeechRecognizer interface {
	Transcribe(ctx context.Context, mediaPath string, modelPath string) (engine.Transcript, error)
}

// ProjectStore is the durable state the orchestrator reads and writes
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (store.Project, error)
	UpdateProjectStatus(ctx context.Context, id string, status string) error
	UpdateProjectLanguage(ctx context.Context, id string, language string) error
	MarkProjectFailed(ctx context.Context, id string, reason string) error
	CommitTranscription(ctx context.Context, projectID string, segments []store.TranscriptionSegment, durationSec float64) error
}

// StageTimeouts bounds each external-process stage; a zero value disables
// the bound for that stage
type StageTimeouts struct {
	Detect     time.Duration
	Download   time.Duration
	Transcribe time.Duration
}

// Orchestrator drives one transcription job through detection, model
// provisioning, recognition and persistence. Detection and provisioning
// failures degrade to defaults; only the transcription stage can fail a job.
type Orchestrator struct {
	classifier LanguageClassifier
	catalog    ModelResolver
	fetcher    ModelFetcher
	recognizer SpeechRecognizer
	projects   ProjectStore
	timeouts   StageTimeouts
	logger     *zap.Logger
}

// NewOrchestrator creates a new Orchestrator instance
func NewOrchestrator(
	classifier LanguageClassifier,
	catalog ModelResolver,
	fetcher ModelFetcher,
	recognizer SpeechRecognizer,
	projects ProjectStore,
	timeouts StageTimeouts,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		catalog:    catalog,
		fetcher:    fetcher,
		recognizer: recognizer,
		projects:   projects,
		timeouts:   timeouts,
		logger:     logger,
	}
}

// Run executes the job to a terminal state. It never returns an error: the
// project's status field is the caller-visible outcome.
func (o *Orchestrator) Run(ctx context.Context, job Job) {
	logger := o.logger.With(zap.String("project_id", job.ProjectID))
	logger.Info("transcription job started",
		zap.String("media_path", job.MediaPath),
		zap.String("requested_language", job.Language))

	project, err := o.projects.GetProject(ctx, job.ProjectID)
	if err != nil {
		logger.Error("job references unknown project", zap.Error(err))
		return
	}
	// A completed project only ever moves to failed, so a re-transcription
	// attempt must not expose intermediate statuses.
	announceProgress := project.Status != store.StatusCompleted

	language := o.resolveLanguage(ctx, job, logger)

	model, err := o.catalog.Resolve(ctx, language)
	if err != nil {
		o.fail(ctx, job.ProjectID, fmt.Sprintf("model resolution failed: %v", err), logger)
		return
	}

	model = o.ensureModel(ctx, job, model, announceProgress, logger)

	tctx, cancel := o.stageContext(ctx, o.timeouts.Transcribe)
	transcript, err := o.recognizer.Transcribe(tctx, job.MediaPath, o.catalog.ModelPath(model))
	cancel()
	if err != nil {
		o.fail(ctx, job.ProjectID, err.Error(), logger)
		return
	}

	if err := o.projects.CommitTranscription(context.WithoutCancel(ctx), job.ProjectID, transcript.Segments, transcript.TotalDurationSeconds); err != nil {
		o.fail(ctx, job.ProjectID, fmt.Sprintf("failed to persist transcript: %v", err), logger)
		return
	}

	logger.Info("transcription job completed",
		zap.String("model_id", model.ID),
		zap.Int("segments", len(transcript.Segments)),
		zap.Float64("duration_sec", transcript.TotalDurationSeconds))
}

// resolveLanguage returns the language the job should transcribe in, running
// detection when none was supplied. The detected language is persisted
// immediately so it is visible before transcription finishes.
func (o *Orchestrator) resolveLanguage(ctx context.Context, job Job, logger *zap.Logger) string {
	if job.Language != "" && job.Language != LanguageAuto {
		return job.Language
	}

	dctx, cancel := o.stageContext(ctx, o.timeouts.Detect)
	result := o.classifier.Detect(dctx, job.MediaPath)
	cancel()

	if err := o.projects.UpdateProjectLanguage(ctx, job.ProjectID, result.Language); err != nil {
		logger.Warn("failed to persist detected language", zap.Error(err))
	}

	logger.Info("language resolved",
		zap.String("language", result.Language),
		zap.Float64("confidence", result.Confidence))
	return result.Language
}

// ensureModel makes sure a usable model is on disk, downgrading to the
// system default when provisioning the resolved model fails
func (o *Orchestrator) ensureModel(ctx context.Context, job Job, model store.LanguageModel, announceProgress bool, logger *zap.Logger) store.LanguageModel {
	if o.catalog.IsInstalled(model) {
		return model
	}

	if announceProgress {
		if err := o.projects.UpdateProjectStatus(ctx, job.ProjectID, store.StatusDownloadingModel); err != nil {
			logger.Warn("failed to announce model download", zap.Error(err))
		}
	}

	pctx, cancel := o.stageContext(ctx, o.timeouts.Download)
	err := o.fetcher.EnsureAvailable(pctx, model)
	cancel()

	if err != nil {
		logger.Warn("model provisioning failed, downgrading to default model",
			zap.String("model_id", model.ID),
			zap.Error(err))

		if def, derr := o.catalog.DefaultModel(ctx); derr != nil {
			logger.Error("no default model available", zap.Error(derr))
		} else {
			model = def
			if uerr := o.projects.UpdateProjectLanguage(ctx, job.ProjectID, def.LanguageCode); uerr != nil {
				logger.Warn("failed to persist downgraded language", zap.Error(uerr))
			}
		}
	}

	if announceProgress {
		if err := o.projects.UpdateProjectStatus(ctx, job.ProjectID, store.StatusProcessing); err != nil {
			logger.Warn("failed to restore processing status", zap.Error(err))
		}
	}
	return model
}

// fail marks the project failed; the status field is the only error signal
// guaranteed to reach clients
func (o *Orchestrator) fail(ctx context.Context, projectID string, reason string, logger *zap.Logger) {
	logger.Error("transcription job failed", zap.String("reason", reason))
	// Terminal writes must land even when the job's context is already
	// cancelled, or the project never reaches a terminal state.
	if err := o.projects.MarkProjectFailed(context.WithoutCancel(ctx), projectID, reason); err != nil {
		logger.Error("failed to record job failure", zap.Error(err))
	}
}

func (o *Orchestrator) stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
