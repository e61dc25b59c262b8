package telemetry

import (
	"context"
	"fmt"
	"time"

	"storefront-payments/config"
	"storefront-payments/internal/core/ports"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// NewSentryHub builds an isolated Sentry hub. It returns (nil, nil) when no
// DSN is configured; the Reporter then only logs.
func NewSentryHub(cfg config.TelemetryConfig) (*sentry.Hub, error) {
	if cfg.SentryDSN == "" {
		return nil, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		ServerName:       cfg.ServiceName,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating sentry client: %w", err)
	}

	return sentry.NewHub(client, sentry.NewScope()), nil
}

// Reporter implements ports.Reporter on top of zerolog and an optional Sentry hub.
//
// Events go to the hub carried by ctx (one clone per request, see
// middleware.SentryHub). Without one, captures use a fresh clone of the base
// hub and breadcrumbs are only logged, so nothing leaks between requests.
type Reporter struct {
	hub *sentry.Hub
	log zerolog.Logger
}

// NewReporter creates a reporter. hub may be nil.
func NewReporter(hub *sentry.Hub, log zerolog.Logger) *Reporter {
	return &Reporter{hub: hub, log: log}
}

// CaptureException logs err at error level and forwards it to Sentry.
func (r *Reporter) CaptureException(ctx context.Context, err error, rc ports.ReportContext) {
	if err == nil {
		return
	}

	r.event(r.log.Error().Err(err), rc).Msg("exception captured")

	hub := r.hubFor(ctx)
	if hub == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		applyContext(scope, rc)
		hub.CaptureException(err)
	})
}

// CaptureMessage logs msg at the given level and forwards it to Sentry.
func (r *Reporter) CaptureMessage(ctx context.Context, level ports.ReportLevel, msg string, rc ports.ReportContext) {
	var ev *zerolog.Event
	switch level {
	case ports.ReportLevelError:
		ev = r.log.Error()
	case ports.ReportLevelWarning:
		ev = r.log.Warn()
	default:
		ev = r.log.Info()
	}
	r.event(ev, rc).Msg(msg)

	hub := r.hubFor(ctx)
	if hub == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		applyContext(scope, rc)
		scope.SetLevel(sentryLevel(level))
		hub.CaptureMessage(msg)
	})
}

// AddBreadcrumb records a trail entry on the request's hub. It is attached
// to later events of the same request only.
func (r *Reporter) AddBreadcrumb(ctx context.Context, category string, message string, data map[string]interface{}) {
	r.log.Debug().Str("category", category).Fields(data).Msg(message)

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		return
	}
	hub.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Data:      data,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}

func (r *Reporter) hubFor(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	if r.hub == nil {
		return nil
	}
	return r.hub.Clone()
}

// Flush waits for buffered events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if r.hub == nil {
		return true
	}
	return r.hub.Flush(timeout)
}

func (r *Reporter) event(ev *zerolog.Event, rc ports.ReportContext) *zerolog.Event {
	if rc.Component != "" {
		ev = ev.Str("component", rc.Component)
	}
	if rc.Operation != "" {
		ev = ev.Str("operation", rc.Operation)
	}
	if rc.Event != "" {
		ev = ev.Str("event", rc.Event)
	}
	if rc.OrderID != "" {
		ev = ev.Str("order_id", rc.OrderID)
	}
	if len(rc.Extra) > 0 {
		ev = ev.Fields(rc.Extra)
	}
	return ev
}

func applyContext(scope *sentry.Scope, rc ports.ReportContext) {
	if rc.Component != "" {
		scope.SetTag("component", rc.Component)
	}
	if rc.Operation != "" {
		scope.SetTag("operation", rc.Operation)
	}
	if rc.Event != "" {
		scope.SetTag("event", rc.Event)
	}
	if rc.OrderID != "" {
		scope.SetTag("order_id", rc.OrderID)
	}
	if len(rc.Extra) > 0 {
		scope.SetContext("payment", rc.Extra)
	}
}

func sentryLevel(level ports.ReportLevel) sentry.Level {
	switch level {
	case ports.ReportLevelError:
		return sentry.LevelError
	case ports.ReportLevelWarning:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}
