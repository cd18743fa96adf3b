package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/scorekeep/internal/config"
)

func newBufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.Output.Writer = &buf
	if mutate != nil {
		mutate(cfg)
	}
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestLogger_LevelsAndConstantFields(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)
	ctx := context.Background()

	logger.Trace(ctx, "trace message")
	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message", zap.Int("tracks", 3))
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 5)
	assert.Equal(t, "info message", lines[2]["msg"])
	assert.Equal(t, float64(3), lines[2]["tracks"])
	assert.Equal(t, "scorekeep", lines[2]["service"])
	assert.Contains(t, lines[2]["caller"], "logger_test.go")
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithProjectID(ctx, "X123")
	ctx = WithRequestID(ctx, "req-1")

	tl.Info(ctx, "project opened")

	tl.AssertLogged(t, zapcore.InfoLevel, "project opened")
	tl.AssertField(t, "project opened", "project_id", "X123")
	tl.AssertField(t, "project opened", "request_id", "req-1")
	tl.AssertField(t, "project opened", "trace_id", sc.TraceID().String())
	tl.AssertField(t, "project opened", "trace_sampled", true)
}

func TestContext_EmptyValuesIgnored(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithProjectID(ctx, ""))
	assert.Equal(t, ctx, WithRequestID(ctx, ""))
	assert.Empty(t, ContextFields(ctx))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "from context")
	tl.AssertLogged(t, zapcore.InfoLevel, "from context")
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()
	child := tl.With(zap.String("component", "watch")).Named("docs")

	child.Info(context.Background(), "child entry")

	entries := tl.FilterMessage("child entry").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "docs", entries[0].LoggerName)
	assert.Equal(t, "watch", entries[0].ContextMap()["component"])
}

func TestLogger_Underlying(t *testing.T) {
	tl := NewTestLogger()
	tl.Underlying().Info("plain zap")
	tl.AssertLogged(t, zapcore.InfoLevel, "plain zap")
}

func TestRedaction(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)
	ctx := context.Background()

	logger.Info(ctx, "connecting",
		zap.String("token", "abc123"),
		zap.String("url", "nats://user:pw@host:4222"),
		zap.String("header", "Bearer xyz"),
		Secret("nats_token", config.Secret("hunter2")),
		zap.String("path", "/a/song.helio"),
	)
	child := logger.With(zap.String("password", "pw"))
	child.Info(ctx, "child")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "[REDACTED]", lines[0]["token"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["url"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["header"])
	assert.Equal(t, map[string]any{"nats_token": "[REDACTED:7]"}, lines[0]["nats_token"])
	assert.Equal(t, "/a/song.helio", lines[0]["path"])
	assert.Equal(t, "[REDACTED]", lines[1]["password"])
	assert.NotContains(t, buf.String(), "hunter2")
	assert.NotContains(t, buf.String(), "abc123")
}

func TestSampling_ErrorsNeverSampled(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) {
		c.Sampling = SamplingConfig{Enabled: true, Tick: time.Minute, Initial: 2, Thereafter: 0}
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		logger.Info(ctx, "noisy")
		logger.Error(ctx, "failure")
	}

	var infos, errs int
	for _, line := range decodeLines(t, buf) {
		switch line["msg"] {
		case "noisy":
			infos++
		case "failure":
			errs++
		}
	}
	assert.Equal(t, 2, infos)
	assert.Equal(t, 10, errs)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad format", func(c *Config) { c.Format = "xml" }, false},
		{"no output", func(c *Config) { c.Output = OutputConfig{} }, false},
		{"zero tick", func(c *Config) { c.Sampling = SamplingConfig{Enabled: true} }, false},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, false},
		{"empty field", func(c *Config) { c.Fields = map[string]string{"k": ""} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "trace", Format: "console", Sampling: true, OTEL: true})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Sampling.Enabled)
	assert.True(t, cfg.Output.Console)
	assert.True(t, cfg.Output.OTEL)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
