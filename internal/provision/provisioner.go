package provision

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"voxtailor/internal/store"
)

// Provisioner ensures speech models are present locally, downloading and
// extracting them from the remote catalog when absent
type Provisioner struct {
	logger    *zap.Logger
	modelsDir string
	client    *http.Client
}

// NewProvisioner creates a new Provisioner instance
func NewProvisioner(logger *zap.Logger, modelsDir string) *Provisioner {
	return &Provisioner{
		logger:    logger,
		modelsDir: modelsDir,
		client: &http.Client{
			Timeout: 10 * time.Minute, // Long timeout for large model downloads
		},
	}
}

// EnsureAvailable checks if the model is installed and downloads it if not.
// Failures are reported without retry; retry policy belongs to the caller.
func (p *Provisioner) EnsureAvailable(ctx context.Context, model store.LanguageModel) error {
	modelPath := filepath.Join(p.modelsDir, model.ModelName)

	if info, err := os.Stat(modelPath); err == nil && info.IsDir() {
		p.logger.Info("model already installed",
			zap.String("model_id", model.ID),
			zap.String("path", modelPath))
		return nil
	}

	p.logger.Info("model not found locally, downloading",
		zap.String("model_id", model.ID),
		zap.String("url", model.DownloadURL))

	if err := os.MkdirAll(p.modelsDir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	archivePath, err := p.downloadArchive(ctx, model)
	if err != nil {
		return err
	}
	defer os.Remove(archivePath)

	if err := p.installFromArchive(archivePath, model); err != nil {
		return err
	}

	p.logger.Info("model installed successfully",
		zap.String("model_id", model.ID),
		zap.String("path", modelPath))
	return nil
}

// downloadArchive fetches the model zip into a temporary file next to the
// models directory so the final extract stays on one filesystem
func (p *Provisioner) downloadArchive(ctx context.Context, model store.LanguageModel) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, model.DownloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", "VoxTailor/1.0 (Go HTTP Client)")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download model: HTTP %d", resp.StatusCode)
	}

	out, err := os.CreateTemp(p.modelsDir, model.ModelName+"-*.zip.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	archivePath := out.Name()

	written, err := p.copyWithProgress(out, resp.Body, resp.ContentLength, model.ID)
	closeErr := out.Close()
	if err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("failed to download model data: %w", err)
	}
	if closeErr != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("failed to finalize archive file: %w", closeErr)
	}

	p.logger.Info("model archive downloaded",
		zap.String("model_id", model.ID),
		zap.Int64("bytes", written))
	return archivePath, nil
}

// copyWithProgress copies data from src to dst with periodic progress logging
func (p *Provisioner) copyWithProgress(dst io.Writer, src io.Reader, totalSize int64, modelID string) (int64, error) {
	const bufferSize = 32 * 1024
	buffer := make([]byte, bufferSize)

	var written int64
	lastLogTime := time.Now()
	logInterval := 10 * time.Second

	for {
		nr, er := src.Read(buffer)
		if nr > 0 {
			nw, ew := dst.Write(buffer[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if ew == nil {
					ew = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, fmt.Errorf("short write")
			}

			now := time.Now()
			if now.Sub(lastLogTime) >= logInterval {
				if totalSize > 0 {
					percentage := float64(written) / float64(totalSize) * 100
					p.logger.Info("download progress",
						zap.String("model_id", modelID),
						zap.Int64("downloaded", written),
						zap.Int64("total", totalSize),
						zap.Float64("percentage", percentage))
				} else {
					p.logger.Info("download progress",
						zap.String("model_id", modelID),
						zap.Int64("downloaded", written))
				}
				lastLogTime = now
			}
		}
		if er != nil {
			if er != io.EOF {
				return written, er
			}
			break
		}
	}
	return written, nil
}

// installFromArchive unpacks the archive into a staging directory and renames
// the model into place. Installed state is probed by stat-ing the model
// directory, so that directory must never exist half-extracted.
func (p *Provisioner) installFromArchive(archivePath string, model store.LanguageModel) error {
	stagingDir, err := os.MkdirTemp(p.modelsDir, model.ModelName+"-*.extract.tmp")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	if err := extractArchive(archivePath, stagingDir); err != nil {
		return fmt.Errorf("failed to extract model %s: %w", model.ID, err)
	}

	// Catalog archives carry the model directory as their single top-level
	// entry; flat archives install from the staging root itself.
	extracted := filepath.Join(stagingDir, model.ModelName)
	if info, statErr := os.Stat(extracted); statErr != nil || !info.IsDir() {
		extracted = stagingDir
	}

	if err := os.Rename(extracted, filepath.Join(p.modelsDir, model.ModelName)); err != nil {
		return fmt.Errorf("failed to install model %s: %w", model.ID, err)
	}
	return nil
}

// extractArchive unpacks a model zip into destDir, rejecting entries that
// would escape it
func extractArchive(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	cleanDest := filepath.Clean(destDir)

	for _, entry := range reader.File {
		target := filepath.Join(cleanDest, entry.Name)
		if !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", entry.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", entry.Name, err)
		}

		if err := extractFile(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(entry *zip.File, target string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to extract %s: %w", entry.Name, err)
	}
	return nil
}
