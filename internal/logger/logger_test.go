package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"voxtailor/internal/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("should create a usable logger", func(t *testing.T) {
		// Act
		logger := NewLogger()

		// Assert
		assert.NotNil(t, logger)
		logger.Info("test message")
	})
}

func TestNewLoggerFromConfig(t *testing.T) {
	t.Run("should return error with nil configuration", func(t *testing.T) {
		// Act
		logger, err := NewLoggerFromConfig(nil)

		// Assert
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "configuration cannot be nil")
	})

	t.Run("should create logger from default configuration", func(t *testing.T) {
		// Arrange
		cfg := config.NewConfiguration()

		// Act
		logger, err := NewLoggerFromConfig(cfg)

		// Assert
		assert.NoError(t, err)
		assert.NotNil(t, logger)
	})
}

func TestNewProductionLogger(t *testing.T) {
	t.Run("should create production logger without error", func(t *testing.T) {
		// Act
		logger, err := NewProductionLogger()

		// Assert
		assert.NoError(t, err)
		assert.NotNil(t, logger)
	})
}

func TestNewDevelopmentLogger(t *testing.T) {
	t.Run("should create development logger without error", func(t *testing.T) {
		// Act
		logger, err := NewDevelopmentLogger()

		// Assert
		assert.NoError(t, err)
		assert.NotNil(t, logger)
	})
}
