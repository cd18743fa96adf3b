// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logger wraps Zap with:
//   - A Trace level (-2, below Debug)
//   - Console output on stderr and optional OpenTelemetry output
//   - Context fields: trace_id, span_id, project_id, request_id
//   - Secret redaction by field name and value pattern
//   - Sampling below error level
//
// # Usage
//
//	cfg, err := logging.FromSettings(appConfig.Logging)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithProjectID(ctx, p.ID())
//	logger.Info(ctx, "project saved", zap.String("path", p.FullPath()))
//
// Packages that only need a *zap.Logger get logger.Underlying().
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "saved", zap.String("path", "/a.helio"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "saved")
//	tl.AssertField(t, "saved", "path", "/a.helio")
package logging
