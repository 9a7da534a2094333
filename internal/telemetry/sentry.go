package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/zfogg/sidechain/feedengine/internal/config"
)

// InitSentry configures error reporting. Without a DSN it is a no-op and
// CaptureError does nothing.
func InitSentry(cfg config.TelemetryConfig, environment, release string) (func(), error) {
	if cfg.SentryDSN == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
		SampleRate:       1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init sentry: %w", err)
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureError reports err with the given tags on a cloned hub so
// concurrent requests do not share scope.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil || sentry.CurrentHub().Client() == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}
