package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		log, err := New(nil)
		require.NoError(t, err)
		assert.NotNil(t, log)
	})

	t.Run("console format", func(t *testing.T) {
		log, err := New(&Config{Level: LevelDebug, Format: FormatConsole})
		require.NoError(t, err)
		log.Debugf("debug %s", "message")
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New(&Config{Level: "verbose"})
		assert.ErrorIs(t, err, ErrInvalidLevel)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := New(&Config{Format: "xml"})
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})
}

func TestWith(t *testing.T) {
	log := MustNew(&Config{ServiceName: "outboxkit-test"})
	child := log.With(F("component", "outbox"))
	assert.NotNil(t, child)
	child.Info("message with fields")
}
