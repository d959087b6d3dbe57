package services

import (
	"log/slog"
	"time"

	"github.com/dukex/itemflow/pkg/eventbus"
	"github.com/dukex/itemflow/pkg/metrics"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Option configures the collaborators shared by every service.
type Option func(*settings)

type settings struct {
	publisher eventbus.EventPublisher
	metrics   *metrics.Collector
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// WithPublisher sets where committed changes are announced. Without it no events are sent.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(s *settings) {
		s.publisher = publisher
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(s *settings) {
		s.metrics = collector
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) {
		s.tracer = tracer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithClock overrides the time source for timestamps set by the services.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

func newSettings(module string, opts []Option) settings {
	s := settings{
		tracer: noop.NewTracerProvider().Tracer("itemflow"),
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(&s)
	}

	s.logger = s.logger.With("module", module)

	return s
}

func (s settings) notifier() notifier {
	return notifier{publisher: s.publisher, metrics: s.metrics, logger: s.logger}
}
