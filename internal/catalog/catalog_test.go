package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"voxtailor/internal/store"
)

// staticSource serves a fixed model list without a database
type staticSource struct {
	models []store.LanguageModel
}

func (s staticSource) ListModels(ctx context.Context) ([]store.LanguageModel, error) {
	return s.models, nil
}

func testModels() []store.LanguageModel {
	return []store.LanguageModel{
		{ID: "en-us-small", LanguageCode: "en-us", ModelName: "vosk-model-small-en-us-0.15", IsDefault: true},
		{ID: "es-small", LanguageCode: "es", ModelName: "vosk-model-small-es-0.42"},
		{ID: "fr-small", LanguageCode: "fr", ModelName: "vosk-model-small-fr-0.22"},
	}
}

func TestCatalog_Resolve(t *testing.T) {
	t.Run("should resolve exact language code match", func(t *testing.T) {
		// Arrange
		c := NewCatalog(staticSource{testModels()}, t.TempDir(), zap.NewNop())

		// Act
		m, err := c.Resolve(context.Background(), "es")

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, "es-small", m.ID)
	})

	t.Run("should resolve case-insensitively", func(t *testing.T) {
		// Arrange
		c := NewCatalog(staticSource{testModels()}, t.TempDir(), zap.NewNop())

		// Act
		m, err := c.Resolve(context.Background(), "EN-US")

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, "en-us-small", m.ID)
	})

	t.Run("should fall back to primary subtag match", func(t *testing.T) {
		// Arrange
		c := NewCatalog(staticSource{testModels()}, t.TempDir(), zap.NewNop())

		// Act
		m, err := c.Resolve(context.Background(), "en-gb")

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, "en-us-small", m.ID)
	})

	t.Run("should fall back to default model for unsupported language", func(t *testing.T) {
		// Arrange
		c := NewCatalog(staticSource{testModels()}, t.TempDir(), zap.NewNop())

		// Act
		m, err := c.Resolve(context.Background(), "xx-yy")

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, "en-us-small", m.ID)
	})

	t.Run("should fall back to default model for empty language", func(t *testing.T) {
		// Arrange
		c := NewCatalog(staticSource{testModels()}, t.TempDir(), zap.NewNop())

		// Act
		m, err := c.Resolve(context.Background(), "")

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, "en-us-small", m.ID)
	})

	t.Run("should return error for empty catalog", func(t *testing.T) {
		// Arrange
		c := NewCatalog(staticSource{nil}, t.TempDir(), zap.NewNop())

		// Act
		_, err := c.Resolve(context.Background(), "en-us")

		// Assert
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "catalog is empty")
	})
}

func TestCatalog_InstalledState(t *testing.T) {
	t.Run("should report model installed when its directory exists", func(t *testing.T) {
		// Arrange
		modelsDir := t.TempDir()
		c := NewCatalog(staticSource{testModels()}, modelsDir, zap.NewNop())
		m := testModels()[1]
		assert.NoError(t, os.MkdirAll(filepath.Join(modelsDir, m.ModelName), 0755))

		// Act & Assert
		assert.True(t, c.IsInstalled(m))
	})

	t.Run("should report model missing when nothing is on disk", func(t *testing.T) {
		// Arrange
		c := NewCatalog(staticSource{testModels()}, t.TempDir(), zap.NewNop())

		// Act & Assert
		assert.False(t, c.IsInstalled(testModels()[0]))
	})

	t.Run("should not treat a stray file as an installed model", func(t *testing.T) {
		// Arrange
		modelsDir := t.TempDir()
		c := NewCatalog(staticSource{testModels()}, modelsDir, zap.NewNop())
		m := testModels()[0]
		assert.NoError(t, os.WriteFile(filepath.Join(modelsDir, m.ModelName), []byte("junk"), 0644))

		// Act & Assert
		assert.False(t, c.IsInstalled(m))
	})

	t.Run("should list only installed models", func(t *testing.T) {
		// Arrange
		modelsDir := t.TempDir()
		models := testModels()
		c := NewCatalog(staticSource{models}, modelsDir, zap.NewNop())
		assert.NoError(t, os.MkdirAll(filepath.Join(modelsDir, models[0].ModelName), 0755))
		assert.NoError(t, os.MkdirAll(filepath.Join(modelsDir, models[2].ModelName), 0755))

		// Act
		installed, err := c.ListInstalled(context.Background())

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, []string{"en-us-small", "fr-small"}, installed)
	})

	t.Run("should reflect deletion on the next probe", func(t *testing.T) {
		// Arrange
		modelsDir := t.TempDir()
		c := NewCatalog(staticSource{testModels()}, modelsDir, zap.NewNop())
		m := testModels()[0]
		dir := filepath.Join(modelsDir, m.ModelName)
		assert.NoError(t, os.MkdirAll(dir, 0755))
		assert.True(t, c.IsInstalled(m))

		// Act
		assert.NoError(t, os.RemoveAll(dir))

		// Assert
		assert.False(t, c.IsInstalled(m))
	})
}

func TestSeedModels(t *testing.T) {
	t.Run("should seed ten languages with one default", func(t *testing.T) {
		// Act
		models := SeedModels("https://alphacephei.com/vosk/models")

		// Assert
		assert.Len(t, models, 10)
		defaults := 0
		for _, m := range models {
			if m.IsDefault {
				defaults++
				assert.Equal(t, "en-us-small", m.ID)
			}
			assert.Contains(t, m.DownloadURL, m.ModelName)
		}
		assert.Equal(t, 1, defaults)
	})

	t.Run("should root download URLs at the given base", func(t *testing.T) {
		// Act
		models := SeedModels("http://mirror.local/models")

		// Assert
		assert.Equal(t, "http://mirror.local/models/vosk-model-small-en-us-0.15.zip", models[0].DownloadURL)
	})
}
