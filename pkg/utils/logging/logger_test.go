package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/k-taniguchi/sidekick/pkg/utils/logging"
)

func TestNewConsole(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", logging.FormatConsole, buf)
	gt.V(t, logger).NotNil()

	logger.Info("test message")
	gt.S(t, buf.String()).Contains("test message")
}

func TestNewJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", logging.FormatJSON, buf)

	logger.Info("archived turn", "thread", "T1")

	var entry map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	gt.Equal(t, entry["msg"], "archived turn")
	gt.Equal(t, entry["thread"], "T1")
	gt.Equal(t, entry["level"], "INFO")
}

func TestLevelFiltering(t *testing.T) {
	testCases := []struct {
		level       string
		expectDebug bool
		expectInfo  bool
		expectWarn  bool
		expectError bool
	}{
		{"debug", true, true, true, true},
		{"info", false, true, true, true},
		{"warn", false, false, true, true},
		{"warning", false, false, true, true},
		{"error", false, false, false, true},
		{"DEBUG", true, true, true, true},
		{"invalid", false, true, true, true}, // Defaults to info
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := logging.New(tc.level, logging.FormatConsole, buf)

			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")

			output := buf.String()
			check := func(expect bool, msg string) {
				if expect {
					gt.S(t, output).Contains(msg)
				} else {
					gt.S(t, output).NotContains(msg)
				}
			}
			check(tc.expectDebug, "debug message")
			check(tc.expectInfo, "info message")
			check(tc.expectWarn, "warn message")
			check(tc.expectError, "error message")
		})
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("warn", logging.FormatJSON, buf)

	logger.Info("suppressed")
	logger.Warn("emitted")

	output := buf.String()
	gt.S(t, output).NotContains("suppressed")
	gt.S(t, output).Contains("emitted")
}

func TestWithAndFrom(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	logger := logging.New("debug", logging.FormatConsole, buf)

	ctx = logging.With(ctx, logger)

	retrieved := logging.From(ctx)
	gt.V(t, retrieved).NotNil()
	gt.Equal(t, retrieved, logger)

	retrieved.Info("context message")
	gt.S(t, buf.String()).Contains("context message")
}

func TestFromWithoutLogger(t *testing.T) {
	logger := logging.From(context.Background())
	gt.V(t, logger).NotNil()
}

func TestFromCarriesAttrs(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	scoped := logging.New("info", logging.FormatConsole, buf).With("role", "status")

	ctx = logging.With(ctx, scoped)
	logging.From(ctx).Info("handing off")

	output := buf.String()
	gt.S(t, output).Contains("handing off")
	gt.S(t, output).Contains("role")
	gt.S(t, output).Contains("status")
}

func TestSetDefault(t *testing.T) {
	original := logging.Default()
	defer logging.SetDefault(original)

	buf := &bytes.Buffer{}
	newLogger := logging.New("debug", logging.FormatConsole, buf)
	logging.SetDefault(newLogger)

	gt.Equal(t, logging.Default(), newLogger)

	// From falls back to the new default when the context carries nothing.
	logging.From(context.Background()).Info("default message")
	gt.S(t, buf.String()).Contains("default message")
}
