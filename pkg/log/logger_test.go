package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	scierrors "github.com/YuminosukeSato/textclf/pkg/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestZerologLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug, false).With(ModelNameKey, "LogisticRegression")

	logger.Info("vocabulary built", VocabularySizeKey, 4200, SparsityKey, 0.99)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d", len(lines))
	}
	rec := lines[0]
	if rec["level"] != "info" {
		t.Errorf("level = %v, want info", rec["level"])
	}
	if rec["message"] != "vocabulary built" {
		t.Errorf("message = %v", rec["message"])
	}
	if rec[ModelNameKey] != "LogisticRegression" {
		t.Errorf("context field missing: %v", rec)
	}
	if rec[VocabularySizeKey] != 4200.0 {
		t.Errorf("%s = %v, want 4200", VocabularySizeKey, rec[VocabularySizeKey])
	}
	if _, ok := rec["time"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestZerologLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level    Level
		wantRecs int
	}{
		{LevelDebug, 4},
		{LevelInfo, 3},
		{LevelWarn, 2},
		{LevelError, 1},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewZerologLogger(&buf, tt.level, false)
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")
			if got := len(decodeLines(t, &buf)); got != tt.wantRecs {
				t.Errorf("got %d records, want %d", got, tt.wantRecs)
			}
			if !logger.Enabled(context.Background(), LevelError) {
				t.Error("error level should always be enabled")
			}
			if logger.Enabled(context.Background(), LevelDebug) != (tt.level == LevelDebug) {
				t.Error("Enabled(LevelDebug) mismatch")
			}
		})
	}
}

func TestZerologLogger_ErrorWithStacktrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo, false)

	err := scierrors.NewValueError("LogisticRegression.Fit", "y contains a single class")
	logger.Error("fit failed", err, OperationKey, OperationFit)

	rec := decodeLines(t, &buf)[0]
	if msg, _ := rec[ErrAttrKey].(string); !strings.Contains(msg, "single class") {
		t.Errorf("error field = %v", rec[ErrAttrKey])
	}
	if st, _ := rec[StacktraceAttrKey].(string); st == "" {
		t.Error("expected non-empty stacktrace")
	}
	if rec[OperationKey] != OperationFit {
		t.Errorf("%s = %v", OperationKey, rec[OperationKey])
	}
}

func TestZerologLogger_OddFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo, false)
	logger.Info("odd", "a", 1, "dangling")

	rec := decodeLines(t, &buf)[0]
	if rec["dangling"] != "!MISSING" {
		t.Errorf("dangling key not marked: %v", rec)
	}
}

func TestZerologLogger_Pretty(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo, true)
	logger.Info("pretty output", StepKey, "vectorize")
	out := buf.String()
	if !strings.Contains(out, "pretty output") || !strings.Contains(out, "vectorize") {
		t.Errorf("unexpected console output %q", out)
	}
	if json.Valid([]byte(strings.TrimSpace(out))) {
		t.Error("pretty output should not be JSON")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	err := SetupLogger("loud", false)
	var valErr *scierrors.ValidationError
	if !scierrors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestWarningsRoutedToProvider(t *testing.T) {
	provider, logger := NewTestLoggerProvider(LevelDebug)
	SetProvider(provider)
	defer SetProvider(NewProvider(os.Stderr, LevelInfo, false))

	scierrors.Warn(scierrors.NewConvergenceWarning("LogisticRegression", 100, "class 3"))

	if !logger.ContainsMessage("failed to converge") {
		t.Errorf("warning not logged; got %v", logger.Messages())
	}
	if !logger.ContainsField(ComponentKey, "warnings") {
		t.Error("warning should be tagged with the warnings component")
	}
}

func TestGlobalNamedLogger(t *testing.T) {
	provider, logger := NewTestLoggerProvider(LevelInfo)
	SetProvider(provider)
	defer SetProvider(NewProvider(os.Stderr, LevelInfo, false))

	GetLoggerWithName("datasets").Info("loaded", DocumentsKey, 3)
	GetLogger().Debug("hidden")

	if !logger.ContainsField(ComponentKey, "datasets") {
		t.Error("component field missing")
	}
	if logger.ContainsMessage("hidden") {
		t.Error("debug record should be filtered at info level")
	}

	SetLevel(LevelDebug)
	GetLogger().Debug("visible")
	if !logger.ContainsMessage("visible") {
		t.Error("SetLevel should enable debug records")
	}
}

func TestTestLogger_Concurrent(t *testing.T) {
	logger, _ := NewTestLogger(LevelInfo)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.With(ClassKey, i).Info(fmt.Sprintf("class %d done", i))
		}(i)
	}
	wg.Wait()

	entries, err := logger.GetLogEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 20 {
		t.Errorf("expected 20 entries, got %d", len(entries))
	}
}

func TestTestLogger_ErrorFirstField(t *testing.T) {
	logger, _ := NewTestLogger(LevelDebug)
	logger.Error("boom", fmt.Errorf("disk full"), PathKey, "/tmp/out")
	if !logger.ContainsField(ErrAttrKey, "disk full") {
		t.Error("error field not captured")
	}
	if !logger.ContainsField(PathKey, "/tmp/out") {
		t.Error("path field not captured")
	}
	logger.Clear()
	if len(logger.Messages()) != 0 {
		t.Error("Clear should drop captured records")
	}
}

func BenchmarkZerologLogger(b *testing.B) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo, false)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("iteration", IterationKey, i, LossKey, 0.5)
	}
}
