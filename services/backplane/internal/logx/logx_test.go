package logx

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCriticalRendersName(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: ReplaceLevel}))
	Critical(Named(log, "core"), "module table full", "capacity", 20)

	out := buf.String()
	assert.Contains(t, out, "level=CRITICAL")
	assert.Contains(t, out, "component=core")
	assert.Contains(t, out, "capacity=20")
}

func TestReplaceLevelLeavesOthers(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: ReplaceLevel}))
	log.Warn("clamped")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestNamedNilUsesDefault(t *testing.T) {
	assert.NotNil(t, Named(nil, "x"))
}
