package intake

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"voxtailor/internal/pipeline"
	"voxtailor/internal/store"
)

// ValidationError rejects an upload before any job starts
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid upload: " + e.Reason
}

// allowedMIMETypes maps accepted upload content types to the media type
// recorded on the project
var allowedMIMETypes = map[string]string{
	"audio/mpeg":      store.MediaTypeAudio,
	"audio/mp4":       store.MediaTypeAudio,
	"audio/wav":       store.MediaTypeAudio,
	"audio/x-wav":     store.MediaTypeAudio,
	"audio/ogg":       store.MediaTypeAudio,
	"audio/flac":      store.MediaTypeAudio,
	"audio/webm":      store.MediaTypeAudio,
	"audio/aac":       store.MediaTypeAudio,
	"video/mp4":       store.MediaTypeVideo,
	"video/webm":      store.MediaTypeVideo,
	"video/quicktime": store.MediaTypeVideo,
	"video/x-msvideo": store.MediaTypeVideo,
	"video/mpeg":      store.MediaTypeVideo,
}

// ProjectWriter is the slice of the store the intake needs
type ProjectWriter interface {
	CreateProject(ctx context.Context, p *store.Project) error
	GetProjectByChecksum(ctx context.Context, checksum string) (store.Project, error)
	MarkProjectFailed(ctx context.Context, id string, reason string) error
}

// JobSubmitter enqueues a transcription job for background execution
type JobSubmitter interface {
	Submit(job pipeline.Job) error
}

// UploadRequest carries one incoming media upload
type UploadRequest struct {
	UserID   string
	Filename string
	MIMEType string
	Size     int64 // declared size; the byte cap is also enforced while copying
	Language string // optional hint; empty means auto-detect
	Body     io.Reader
}

// Intake validates uploads, persists the media file and project record, and
// hands the transcription job to the worker pool. The HTTP response can
// return as soon as Accept does; the pipeline runs detached.
type Intake struct {
	projects  ProjectWriter
	jobs      JobSubmitter
	uploadDir string
	maxBytes  int64
	logger    *zap.Logger
}

// NewIntake creates a new Intake instance
func NewIntake(projects ProjectWriter, jobs JobSubmitter, uploadDir string, maxBytes int64, logger *zap.Logger) *Intake {
	return &Intake{
		projects:  projects,
		jobs:      jobs,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// Accept validates and stores one upload, creates its project in
// processing state, and enqueues the transcription job
func (in *Intake) Accept(ctx context.Context, req UploadRequest) (store.Project, error) {
	mediaType, ok := allowedMIMETypes[strings.ToLower(req.MIMEType)]
	if !ok {
		return store.Project{}, &ValidationError{
			Reason: fmt.Sprintf("unsupported content type %q", req.MIMEType),
		}
	}
	if req.Size > in.maxBytes {
		return store.Project{}, &ValidationError{
			Reason: fmt.Sprintf("file exceeds %d byte limit", in.maxBytes),
		}
	}

	if err := os.MkdirAll(in.uploadDir, 0755); err != nil {
		return store.Project{}, fmt.Errorf("failed to create upload directory: %w", err)
	}

	projectID := uuid.NewString()
	destPath := filepath.Join(in.uploadDir, projectID+filepath.Ext(req.Filename))

	checksum, err := in.writeUpload(destPath, req.Body)
	if err != nil {
		return store.Project{}, err
	}

	if existing, lookupErr := in.projects.GetProjectByChecksum(ctx, checksum); lookupErr == nil {
		in.logger.Info("upload duplicates an existing project",
			zap.String("project_id", projectID),
			zap.String("existing_project_id", existing.ID),
			zap.String("checksum", checksum))
	}

	// The auto sentinel is a request-level convention only; the stored
	// language stays empty until the detector fills it in.
	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == pipeline.LanguageAuto {
		language = ""
	}

	project := store.Project{
		ID:         projectID,
		UserID:     req.UserID,
		Name:       req.Filename,
		MediaType:  mediaType,
		Status:     store.StatusProcessing,
		Language:   language,
		SourcePath: destPath,
		Checksum:   checksum,
	}
	if err := in.projects.CreateProject(ctx, &project); err != nil {
		os.Remove(destPath)
		return store.Project{}, fmt.Errorf("failed to create project: %w", err)
	}

	job := pipeline.Job{ProjectID: projectID, MediaPath: destPath, Language: language}
	if err := in.jobs.Submit(job); err != nil {
		// The project row already exists and is the client's only signal,
		// so a rejected enqueue has to surface there.
		if failErr := in.projects.MarkProjectFailed(ctx, projectID, err.Error()); failErr != nil {
			in.logger.Error("failed to record rejected job", zap.Error(failErr))
		}
		return store.Project{}, fmt.Errorf("failed to enqueue transcription job: %w", err)
	}

	in.logger.Info("upload accepted",
		zap.String("project_id", projectID),
		zap.String("media_type", mediaType),
		zap.String("language", language))
	return project, nil
}

// writeUpload streams the body to disk while hashing it, enforcing the byte
// cap on actual content rather than trusting the declared size
func (in *Intake) writeUpload(destPath string, body io.Reader) (string, error) {
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	hasher := blake3.New(32, nil)
	written, err := io.Copy(io.MultiWriter(dest, hasher), io.LimitReader(body, in.maxBytes+1))
	closeErr := dest.Close()

	if err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	if closeErr != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("failed to finalize upload: %w", closeErr)
	}
	if written > in.maxBytes {
		os.Remove(destPath)
		return "", &ValidationError{
			Reason: fmt.Sprintf("file exceeds %d byte limit", in.maxBytes),
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
