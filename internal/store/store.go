package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store persists projects, transcript segments and the model catalog in SQLite
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if necessary) the SQLite database at path
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if _, err := db.Exec(`
	PRAGMA busy_timeout  = 10000;
	PRAGMA journal_mode  = WAL;
	PRAGMA synchronous   = NORMAL;
	PRAGMA foreign_keys  = ON;

	create table if not exists projects (
		id            text primary key,
		user_id       text not null,
		name          text not null,
		media_type    text not null,
		status        text not null,
		language      text not null,
		source_path   text not null,
		checksum      text not null,
		duration_sec  real not null default 0,
		error_message text not null default '',
		metadata      text not null default '',
		created_at    timestamp not null,
		updated_at    timestamp not null
	);

	create table if not exists segments (
		project_id text not null references projects(id) on delete cascade,
		position   integer not null,
		start_sec  real not null,
		end_sec    real not null,
		text       text not null,
		confidence real not null,
		speaker_id text not null default '',
		primary key (project_id, position)
	);

	create table if not exists language_models (
		id            text primary key,
		language_code text not null,
		language_name text not null,
		model_name    text not null,
		size_class    text not null,
		file_size_mb  integer not null,
		download_url  text not null,
		is_default    integer not null default 0
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateProject inserts a new project row
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		insert into projects (
			id, user_id, name, media_type, status, language, source_path,
			checksum, duration_sec, error_message, metadata, created_at, updated_at
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.UserID, p.Name, p.MediaType, p.Status, p.Language, p.SourcePath,
		p.Checksum, p.DurationSec, p.ErrorMessage, p.Metadata, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	s.logger.Debug("project created",
		zap.String("project_id", p.ID),
		zap.String("status", p.Status))
	return nil
}

// GetProject loads a single project by id
func (s *Store) GetProject(ctx context.Context, id string) (Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, name, media_type, status, language, source_path,
			checksum, duration_sec, error_message, metadata, created_at, updated_at
		from projects where id = $1`, id).
		Scan(&p.ID, &p.UserID, &p.Name, &p.MediaType, &p.Status, &p.Language,
			&p.SourcePath, &p.Checksum, &p.DurationSec, &p.ErrorMessage,
			&p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, fmt.Errorf("failed to load project %s: %w", id, err)
	}
	return p, nil
}

// GetProjectByChecksum finds a project with the same content hash, if any
func (s *Store) GetProjectByChecksum(ctx context.Context, checksum string) (Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, name, media_type, status, language, source_path,
			checksum, duration_sec, error_message, metadata, created_at, updated_at
		from projects where checksum = $1 limit 1`, checksum).
		Scan(&p.ID, &p.UserID, &p.Name, &p.MediaType, &p.Status, &p.Language,
			&p.SourcePath, &p.Checksum, &p.DurationSec, &p.ErrorMessage,
			&p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, fmt.Errorf("failed to look up project by checksum: %w", err)
	}
	return p, nil
}

// UpdateProjectStatus sets the project's status
func (s *Store) UpdateProjectStatus(ctx context.Context, id string, status string) error {
	res, err := s.db.ExecContext(ctx,
		"update projects set status = $1, updated_at = $2 where id = $3",
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s not found", id)
	}
	return nil
}

// UpdateProjectLanguage persists a detected or downgraded language code
func (s *Store) UpdateProjectLanguage(ctx context.Context, id string, language string) error {
	res, err := s.db.ExecContext(ctx,
		"update projects set language = $1, updated_at = $2 where id = $3",
		language, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update project language: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s not found", id)
	}
	return nil
}

// MarkProjectFailed sets the terminal failed status with a best-effort reason
func (s *Store) MarkProjectFailed(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		"update projects set status = $1, error_message = $2, updated_at = $3 where id = $4",
		StatusFailed, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark project failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s not found", id)
	}
	return nil
}

// RenameProject updates the user-visible project name
func (s *Store) RenameProject(ctx context.Context, id string, name string) error {
	res, err := s.db.ExecContext(ctx,
		"update projects set name = $1, updated_at = $2 where id = $3",
		name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to rename project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s not found", id)
	}
	return nil
}

// DeleteProject removes a project; segments cascade via the foreign key
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "delete from projects where id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s not found", id)
	}
	return nil
}

// CommitTranscription atomically replaces the project's segments with the
// given attempt's output, stores the media duration, and marks the project
// completed. A prior attempt's segments never survive alongside new ones.
func (s *Store) CommitTranscription(ctx context.Context, projectID string, segments []TranscriptionSegment, durationSec float64) error {
	for i := range segments {
		if err := segments[i].Validate(); err != nil {
			return fmt.Errorf("invalid segment at position %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"delete from segments where project_id = $1", projectID); err != nil {
		return fmt.Errorf("failed to clear prior segments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		insert into segments (project_id, position, start_sec, end_sec, text, confidence, speaker_id)
		values ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for i, seg := range segments {
		if _, err := stmt.ExecContext(ctx, projectID, i, seg.StartSec, seg.EndSec,
			seg.Text, seg.Confidence, seg.SpeakerID); err != nil {
			return fmt.Errorf("failed to insert segment %d: %w", i, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		update projects
		set status = $1, duration_sec = $2, error_message = '', updated_at = $3
		where id = $4`,
		StatusCompleted, durationSec, time.Now().UTC(), projectID)
	if err != nil {
		return fmt.Errorf("failed to complete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s not found", projectID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transcription: %w", err)
	}

	s.logger.Info("transcription committed",
		zap.String("project_id", projectID),
		zap.Int("segments", len(segments)),
		zap.Float64("duration_sec", durationSec))
	return nil
}

// ListSegments returns a project's segments ordered by start time
func (s *Store) ListSegments(ctx context.Context, projectID string) ([]TranscriptionSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select project_id, position, start_sec, end_sec, text, confidence, speaker_id
		from segments where project_id = $1
		order by start_sec, position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	var segments []TranscriptionSegment
	for rows.Next() {
		var seg TranscriptionSegment
		if err := rows.Scan(&seg.ProjectID, &seg.Position, &seg.StartSec,
			&seg.EndSec, &seg.Text, &seg.Confidence, &seg.SpeakerID); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read segments: %w", err)
	}
	return segments, nil
}

// SeedModels inserts catalog rows that are not already present
func (s *Store) SeedModels(ctx context.Context, models []LanguageModel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range models {
		if _, err := tx.ExecContext(ctx, `
			insert into language_models (
				id, language_code, language_name, model_name, size_class,
				file_size_mb, download_url, is_default
			) values ($1, $2, $3, $4, $5, $6, $7, $8)
			on conflict (id) do nothing`,
			m.ID, m.LanguageCode, m.LanguageName, m.ModelName, m.SizeClass,
			m.FileSizeMB, m.DownloadURL, m.IsDefault); err != nil {
			return fmt.Errorf("failed to seed model %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit model seed: %w", err)
	}
	return nil
}

// ListModels returns all catalog rows
func (s *Store) ListModels(ctx context.Context) ([]LanguageModel, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, language_code, language_name, model_name, size_class,
			file_size_mb, download_url, is_default
		from language_models order by id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var models []LanguageModel
	for rows.Next() {
		var m LanguageModel
		if err := rows.Scan(&m.ID, &m.LanguageCode, &m.LanguageName, &m.ModelName,
			&m.SizeClass, &m.FileSizeMB, &m.DownloadURL, &m.IsDefault); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read models: %w", err)
	}
	return models, nil
}

// GetModel loads one catalog row by model id
func (s *Store) GetModel(ctx context.Context, id string) (LanguageModel, error) {
	var m LanguageModel
	err := s.db.QueryRowContext(ctx, `
		select id, language_code, language_name, model_name, size_class,
			file_size_mb, download_url, is_default
		from language_models where id = $1`, id).
		Scan(&m.ID, &m.LanguageCode, &m.LanguageName, &m.ModelName,
			&m.SizeClass, &m.FileSizeMB, &m.DownloadURL, &m.IsDefault)
	if err != nil {
		return m, fmt.Errorf("failed to load model %s: %w", id, err)
	}
	return m, nil
}
