package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scorekeep/internal/config"
	"github.com/fyrsmithlabs/scorekeep/internal/logging"
	"github.com/fyrsmithlabs/scorekeep/internal/templates"
	"github.com/fyrsmithlabs/scorekeep/internal/workspace"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NotNil(t, tel.LoggerProvider())
	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	assert.Equal(t, HealthStatus{Degraded: true}, tel.Health())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, true},
		{"local insecure", func(c *Config) { c.Enabled = true }, true},
		{"local ipv6", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, true},
		{"remote insecure", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, false},
		{"remote tls", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "https://otel.example.com:4318"
			c.Insecure = false
			c.Protocol = ProtocolHTTP
		}, true},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, false},
		{"bad ratio", func(c *Config) { c.Enabled = true; c.SampleRatio = 2 }, false},
		{"zero interval", func(c *Config) { c.Enabled = true; c.MetricsInterval = 0 }, false},
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
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:         true,
		Endpoint:        "localhost:4318",
		Protocol:        ProtocolHTTP,
		Insecure:        true,
		SampleRatio:     0.5,
		MetricsInterval: config.Duration(time.Minute),
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, 0.5, cfg.SampleRatio)
	assert.Equal(t, time.Minute, cfg.MetricsInterval)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "scorekeep", cfg.ServiceName)
	assert.NoError(t, cfg.Validate())
}

func TestWorkspaceSpans(t *testing.T) {
	tt := NewTestTelemetry()
	root := workspace.New(workspace.Services{
		DocumentsDir: t.TempDir(),
		Tracer:       tt.Tracer(workspace.InstrumentationName),
	})
	ctx := context.Background()

	p, err := root.CreateExample(ctx)
	require.NoError(t, err)
	_, err = root.Checkout(ctx, "", "")
	require.ErrorIs(t, err, workspace.ErrEmptyProjectID)

	tt.AssertSpanExists(t, "workspace.create_example")
	tt.AssertSpanAttribute(t, "workspace.create_example", "project_id", p.ID())
	tt.AssertSpanAttribute(t, "workspace.create_example", "template", templates.ExampleProject)

	// No-op outcomes are annotated, not recorded as errors.
	tt.AssertSpanExists(t, "workspace.checkout")
	span := tt.SpanByName("workspace.checkout")
	assert.Empty(t, span.Events())
	assert.Equal(t, trace.SpanKindInternal, span.SpanKind())
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	counter, err := tt.Meter("test").Int64Counter("scorekeep.test.calls")
	require.NoError(t, err)
	counter.Add(ctx, 2)

	rm, err := tt.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, rm.ScopeMetrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func TestTestTelemetry_LogBridge(t *testing.T) {
	tt := NewTestTelemetry()

	cfg := logging.NewDefaultConfig()
	cfg.Output = logging.OutputConfig{OTEL: true}
	logger, err := logging.NewLogger(cfg, tt.LoggerProvider())
	require.NoError(t, err)

	logger.Info(context.Background(), "project opened", zap.String("path", "/a/song.helio"))
	require.NoError(t, tt.ForceFlush(context.Background()))

	records := tt.LogExporter.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "project opened", records[0].Body().AsString())
	assert.Equal(t, log.SeverityInfo, records[0].Severity())
}
