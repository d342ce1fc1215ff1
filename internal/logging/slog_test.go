package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(NewWithWriter(&buf, slog.LevelInfo), "auth")
	logger.Info("msg")

	assert.Contains(t, buf.String(), "component=auth")
}

func TestErr(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo)

	logger.Info("with error", Err(errors.New("boom")))
	assert.Contains(t, buf.String(), "error=boom")

	buf.Reset()
	logger.Info("without error", Err(nil))
	assert.NotContains(t, buf.String(), "error=")
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))

	masked := SanitizeToken("super-secret-token-value")
	assert.NotContains(t, masked, "super")
	assert.True(t, strings.HasPrefix(masked, "[token:"))
}
