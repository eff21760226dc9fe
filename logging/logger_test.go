package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// Interface compliance (compile-time assertions)
var (
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = NoOpLogger{}
	_ Logger = (*ContextLogger)(nil)
)

func TestOrNoOp(t *testing.T) {
	if _, ok := OrNoOp(nil).(NoOpLogger); !ok {
		t.Error("nil should yield a NoOpLogger")
	}
	custom := NewJSONLogger(&bytes.Buffer{}, slog.LevelInfo)
	if OrNoOp(custom) != custom {
		t.Error("non-nil loggers should pass through")
	}
}

func TestJSONLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, slog.LevelWarn)

	logger.Info("invisible", "k", "v")
	logger.Warn("visible", "k", "v")

	out := buf.String()
	if strings.Contains(out, "invisible") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestContextLogger_CarriesContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewContextLogger(&buf, slog.LevelDebug).
		WithComponent("engine").
		WithTurn("u1", "s1")

	logger.Info("something happened")

	out := buf.String()
	for _, want := range []string{`"component":"engine"`, `"user_id":"u1"`, `"session_id":"s1"`, "something happened"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestContextLogger_WithTurnDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewContextLogger(&buf, slog.LevelDebug)
	_ = parent.WithTurn("u1", "s1")

	parent.Info("parent record")
	if strings.Contains(buf.String(), "u1") {
		t.Error("parent logger should not inherit child context")
	}
}

func TestContextLogger_LogModelCall(t *testing.T) {
	var buf bytes.Buffer
	logger := NewContextLogger(&buf, slog.LevelDebug)

	logger.LogModelCall("complete", 120*time.Millisecond, nil)
	if !strings.Contains(buf.String(), `"success":true`) {
		t.Errorf("success call not recorded: %s", buf.String())
	}

	buf.Reset()
	logger.LogModelCall("embed", time.Millisecond, errors.New("down"))
	out := buf.String()
	if !strings.Contains(out, `"success":false`) || !strings.Contains(out, "down") {
		t.Errorf("failed call not recorded: %s", out)
	}
}
