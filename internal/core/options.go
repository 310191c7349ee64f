package core

import (
	"context"
	"time"

	blobcore "whalewatcher/internal/blob/core"
	"whalewatcher/pkg/domain"
)

// Logger is the structured logger used by the service. Args are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes action outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, op string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan is ended once per action with its outcome.
type TraceSpan interface {
	End(err error)
}

// Tracer starts a span per action.
type Tracer interface {
	Start(ctx context.Context, op string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopSpan) End(error) {}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

// EventPublisher fans committed audit events and notifications out to
// external consumers. Publishing happens after commit and is best effort.
type EventPublisher interface {
	PublishAudit(ctx context.Context, event domain.AuditEvent) error
	PublishNotification(ctx context.Context, n domain.Notification) error
}

type serviceOptions struct {
	clock           Clock
	logger          Logger
	metrics         MetricsRecorder
	tracer          Tracer
	publisher       EventPublisher
	blobs           blobcore.Store
	seed            *domain.Snapshot
	strictLookups   bool
	symmetricAudit  bool
	demoFailureText string
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:           ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:          noopLogger{},
		metrics:         noopMetricsRecorder{},
		tracer:          noopTracer{},
		demoFailureText: DemoEvidenceFailureReason,
	}
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

// WithClock overrides the service clock. In-memory services share it with their store.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the action metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the action tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithEventPublisher sets the post-commit event sink.
func WithEventPublisher(publisher EventPublisher) ServiceOption {
	return func(o *serviceOptions) {
		o.publisher = publisher
	}
}

// WithBlobStore enables artifact storage for ingested documents.
func WithBlobStore(store blobcore.Store) ServiceOption {
	return func(o *serviceOptions) {
		o.blobs = store
	}
}

// WithSeed sets the fixture restored by ResetDemo and used to hydrate empty stores.
func WithSeed(seed domain.Snapshot) ServiceOption {
	return func(o *serviceOptions) {
		o.seed = &seed
	}
}

// WithStrictLookups makes actions return ErrNotFound instead of silently doing nothing.
func WithStrictLookups(strict bool) ServiceOption {
	return func(o *serviceOptions) {
		o.strictLookups = strict
	}
}

// WithSymmetricAudit makes the demographic-removal and evidence-failure-reset
// paths emit audit events like their counterparts.
func WithSymmetricAudit(symmetric bool) ServiceOption {
	return func(o *serviceOptions) {
		o.symmetricAudit = symmetric
	}
}

// WithDemoFailureReason overrides the reason recorded by ToggleEvidenceFailure.
func WithDemoFailureReason(reason string) ServiceOption {
	return func(o *serviceOptions) {
		if reason != "" {
			o.demoFailureText = reason
		}
	}
}
