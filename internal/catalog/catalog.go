package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"voxtailor/internal/store"
)

// ModelSource provides the catalog rows the resolver works against
type ModelSource interface {
	ListModels(ctx context.Context) ([]store.LanguageModel, error)
}

// Catalog resolves language codes to speech models and answers installed-state
// queries against the models directory
type Catalog struct {
	source    ModelSource
	modelsDir string
	logger    *zap.Logger
}

// NewCatalog creates a new Catalog instance
func NewCatalog(source ModelSource, modelsDir string, logger *zap.Logger) *Catalog {
	return &Catalog{
		source:    source,
		modelsDir: modelsDir,
		logger:    logger,
	}
}

// Resolve maps a language code to the model that should transcribe it.
// An exact language-code match wins; otherwise any model sharing the primary
// subtag is used; otherwise the system default model.
func (c *Catalog) Resolve(ctx context.Context, languageCode string) (store.LanguageModel, error) {
	models, err := c.source.ListModels(ctx)
	if err != nil {
		return store.LanguageModel{}, fmt.Errorf("failed to load model catalog: %w", err)
	}
	if len(models) == 0 {
		return store.LanguageModel{}, fmt.Errorf("model catalog is empty")
	}

	code := strings.ToLower(strings.TrimSpace(languageCode))

	for _, m := range models {
		if strings.ToLower(m.LanguageCode) == code && code != "" {
			return m, nil
		}
	}

	if primary := primarySubtag(code); primary != "" {
		for _, m := range models {
			if strings.HasPrefix(strings.ToLower(m.LanguageCode), primary) {
				c.logger.Debug("resolved model via primary subtag",
					zap.String("requested", languageCode),
					zap.String("model_id", m.ID))
				return m, nil
			}
		}
	}

	def, err := c.defaultModel(models)
	if err != nil {
		return store.LanguageModel{}, err
	}
	c.logger.Debug("no model for requested language, using default",
		zap.String("requested", languageCode),
		zap.String("model_id", def.ID))
	return def, nil
}

// DefaultModel returns the catalog's default model
func (c *Catalog) DefaultModel(ctx context.Context) (store.LanguageModel, error) {
	models, err := c.source.ListModels(ctx)
	if err != nil {
		return store.LanguageModel{}, fmt.Errorf("failed to load model catalog: %w", err)
	}
	return c.defaultModel(models)
}

func (c *Catalog) defaultModel(models []store.LanguageModel) (store.LanguageModel, error) {
	for _, m := range models {
		if m.IsDefault {
			return m, nil
		}
	}
	if len(models) > 0 {
		return models[0], nil
	}
	return store.LanguageModel{}, fmt.Errorf("model catalog is empty")
}

// IsInstalled reports whether the model's files are currently on disk.
// This is a point-in-time probe so it always reflects present reality.
func (c *Catalog) IsInstalled(m store.LanguageModel) bool {
	info, err := os.Stat(c.ModelPath(m))
	return err == nil && info.IsDir()
}

// ListInstalled returns the ids of all catalog models currently on disk
func (c *Catalog) ListInstalled(ctx context.Context) ([]string, error) {
	models, err := c.source.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}

	var installed []string
	for _, m := range models {
		if c.IsInstalled(m) {
			installed = append(installed, m.ID)
		}
	}
	return installed, nil
}

// ModelPath returns the directory the model occupies once installed
func (c *Catalog) ModelPath(m store.LanguageModel) string {
	return filepath.Join(c.modelsDir, m.ModelName)
}

// primarySubtag extracts the language part of a BCP 47 style code,
// e.g. "en-gb" yields "en"
func primarySubtag(code string) string {
	if code == "" {
		return ""
	}
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		return code[:idx]
	}
	return code
}
