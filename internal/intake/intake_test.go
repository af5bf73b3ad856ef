package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voxtailor/internal/pipeline"
	"voxtailor/internal/store"
)

type fakeProjects struct {
	created    []store.Project
	duplicate  *store.Project
	createErr  error
	failedID   string
	failReason string
}

func (f *fakeProjects) CreateProject(ctx context.Context, p *store.Project) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *p)
	return nil
}

func (f *fakeProjects) GetProjectByChecksum(ctx context.Context, checksum string) (store.Project, error) {
	if f.duplicate != nil {
		return *f.duplicate, nil
	}
	return store.Project{}, errors.New("sql: no rows in result set")
}

func (f *fakeProjects) MarkProjectFailed(ctx context.Context, id string, reason string) error {
	f.failedID = id
	f.failReason = reason
	return nil
}

type fakeSubmitter struct {
	jobs []pipeline.Job
	err  error
}

func (f *fakeSubmitter) Submit(job pipeline.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func newTestIntake(t *testing.T, maxBytes int64) (*Intake, *fakeProjects, *fakeSubmitter, string) {
	t.Helper()
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	projects := &fakeProjects{}
	submitter := &fakeSubmitter{}
	in := NewIntake(projects, submitter, uploadDir, maxBytes, zap.NewNop())
	return in, projects, submitter, uploadDir
}

func TestIntake_Accept(t *testing.T) {
	t.Run("should store the file, create a processing project and enqueue a job", func(t *testing.T) {
		// Arrange
		in, projects, submitter, uploadDir := newTestIntake(t, 1024)
		content := "fake mp4 payload"

		// Act
		project, err := in.Accept(context.Background(), UploadRequest{
			UserID:   "user-1",
			Filename: "interview.mp4",
			MIMEType: "video/mp4",
			Size:     int64(len(content)),
			Body:     strings.NewReader(content),
		})

		// Assert
		require.NoError(t, err)
		assert.NotEmpty(t, project.ID)
		assert.Equal(t, store.StatusProcessing, project.Status)
		assert.Equal(t, store.MediaTypeVideo, project.MediaType)
		assert.Equal(t, "interview.mp4", project.Name)
		assert.Empty(t, project.Language, "language stays unset until detection")
		assert.Len(t, projects.created, 1)

		stored, readErr := os.ReadFile(filepath.Join(uploadDir, project.ID+".mp4"))
		require.NoError(t, readErr)
		assert.Equal(t, content, string(stored))

		require.Len(t, submitter.jobs, 1)
		assert.Equal(t, project.ID, submitter.jobs[0].ProjectID)
		assert.Empty(t, submitter.jobs[0].Language, "auto-detect jobs carry no language")
	})

	t.Run("should forward a caller-supplied language to the job", func(t *testing.T) {
		// Arrange
		in, _, submitter, _ := newTestIntake(t, 1024)

		// Act
		project, err := in.Accept(context.Background(), UploadRequest{
			Filename: "lecture.mp3",
			MIMEType: "audio/mpeg",
			Language: " ES ",
			Body:     strings.NewReader("audio"),
		})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "es", project.Language)
		require.Len(t, submitter.jobs, 1)
		assert.Equal(t, "es", submitter.jobs[0].Language)
	})

	t.Run("should not store the auto sentinel as the project language", func(t *testing.T) {
		// Arrange
		in, projects, submitter, _ := newTestIntake(t, 1024)

		// Act
		project, err := in.Accept(context.Background(), UploadRequest{
			Filename: "a.mp3",
			MIMEType: "audio/mpeg",
			Language: "auto",
			Body:     strings.NewReader("audio"),
		})

		// Assert
		require.NoError(t, err)
		assert.Empty(t, project.Language,
			"clients polling before detection must not see a sentinel code")
		assert.Empty(t, projects.created[0].Language)
		require.Len(t, submitter.jobs, 1)
		assert.Empty(t, submitter.jobs[0].Language)
	})

	t.Run("should compute the same checksum for identical content", func(t *testing.T) {
		// Arrange
		in, projects, _, _ := newTestIntake(t, 1024)

		// Act
		first, err1 := in.Accept(context.Background(), UploadRequest{
			Filename: "a.wav", MIMEType: "audio/wav", Body: strings.NewReader("same bytes"),
		})
		second, err2 := in.Accept(context.Background(), UploadRequest{
			Filename: "b.wav", MIMEType: "audio/wav", Body: strings.NewReader("same bytes"),
		})

		// Assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Len(t, first.Checksum, 64, "hex-encoded 256-bit digest")
		assert.Equal(t, first.Checksum, second.Checksum)
		assert.Len(t, projects.created, 2, "duplicates are logged, not rejected")
	})

	t.Run("should reject an unsupported content type", func(t *testing.T) {
		// Arrange
		in, projects, submitter, uploadDir := newTestIntake(t, 1024)

		// Act
		_, err := in.Accept(context.Background(), UploadRequest{
			Filename: "notes.txt",
			MIMEType: "text/plain",
			Body:     strings.NewReader("hello"),
		})

		// Assert
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Reason, "text/plain")
		assert.Empty(t, projects.created)
		assert.Empty(t, submitter.jobs)
		assert.NoDirExists(t, uploadDir, "nothing written for rejected uploads")
	})

	t.Run("should reject a declared size over the cap", func(t *testing.T) {
		// Arrange
		in, _, _, _ := newTestIntake(t, 10)

		// Act
		_, err := in.Accept(context.Background(), UploadRequest{
			Filename: "big.mp4",
			MIMEType: "video/mp4",
			Size:     11,
			Body:     strings.NewReader("x"),
		})

		// Assert
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Reason, "byte limit")
	})

	t.Run("should reject oversized content even when the declared size lies", func(t *testing.T) {
		// Arrange
		in, projects, _, uploadDir := newTestIntake(t, 10)

		// Act
		_, err := in.Accept(context.Background(), UploadRequest{
			Filename: "big.mp4",
			MIMEType: "video/mp4",
			Size:     5,
			Body:     strings.NewReader(strings.Repeat("x", 100)),
		})

		// Assert
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Empty(t, projects.created)

		entries, readErr := os.ReadDir(uploadDir)
		require.NoError(t, readErr)
		assert.Empty(t, entries, "partial file must be removed")
	})

	t.Run("should mark the project failed when the job queue rejects it", func(t *testing.T) {
		// Arrange
		in, projects, submitter, _ := newTestIntake(t, 1024)
		submitter.err = pipeline.ErrQueueFull

		// Act
		_, err := in.Accept(context.Background(), UploadRequest{
			Filename: "busy.mp3",
			MIMEType: "audio/mpeg",
			Body:     strings.NewReader("audio"),
		})

		// Assert
		require.ErrorIs(t, err, pipeline.ErrQueueFull)
		require.Len(t, projects.created, 1, "project exists so the failure is observable")
		assert.Equal(t, projects.created[0].ID, projects.failedID)
		assert.Contains(t, projects.failReason, "queue")
	})

	t.Run("should remove the stored file when project creation fails", func(t *testing.T) {
		// Arrange
		in, projects, _, uploadDir := newTestIntake(t, 1024)
		projects.createErr = errors.New("database is locked")

		// Act
		_, err := in.Accept(context.Background(), UploadRequest{
			Filename: "a.mp3",
			MIMEType: "audio/mpeg",
			Body:     strings.NewReader("audio"),
		})

		// Assert
		require.Error(t, err)
		entries, readErr := os.ReadDir(uploadDir)
		require.NoError(t, readErr)
		assert.Empty(t, entries)
	})
}
