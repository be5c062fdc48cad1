package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeRedactsSensitiveKeys(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("login", "username", "ana", "access_token", "abc.def.ghi", "API_KEY", "sk-1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "ana", fields["username"])
	assert.Equal(t, "[REDACTED]", fields["access_token"])
	assert.Equal(t, "[REDACTED]", fields["API_KEY"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWithFile(t *testing.T) {
	l, err := New(Options{Level: "debug", Format: "json", File: filepath.Join(t.TempDir(), "app.log")})
	require.NoError(t, err)
	l.With("conversation_id", "c1").Debug("turn")
	l.Sync()
}
