package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/adoneabiilesh/mustiapp-sub002/internal/storage"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	misses   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("gatekeeper/storage")
	meter := otel.Meter("gatekeeper/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter(
		"storage.get.misses",
		metric.WithDescription("Number of lookups for absent or expired keys"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
		misses:   misses,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) Get(ctx context.Context, key string) (string, error) {
	ctx, span := s.startSpan(ctx, "Get")
	start := time.Now()
	value, err := s.inner.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		s.misses.Add(ctx, 1)
		span.SetAttributes(attribute.Bool("storage.hit", false))
		s.record(ctx, span, "Get", start, nil)
		return value, err
	}
	s.record(ctx, span, "Get", start, err)
	return value, err
}

func (s *InstrumentedStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, span := s.startSpan(ctx, "Set", attribute.Int64("storage.ttl_ms", ttl.Milliseconds()))
	start := time.Now()
	err := s.inner.Set(ctx, key, value, ttl)
	s.record(ctx, span, "Set", start, err)
	return err
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	ctx, span := s.startSpan(ctx, "Delete")
	start := time.Now()
	err := s.inner.Delete(ctx, key)
	s.record(ctx, span, "Delete", start, err)
	return err
}

func (s *InstrumentedStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, span := s.startSpan(ctx, "Keys", attribute.String("storage.prefix", prefix))
	start := time.Now()
	keys, err := s.inner.Keys(ctx, prefix)
	span.SetAttributes(attribute.Int("storage.key_count", len(keys)))
	s.record(ctx, span, "Keys", start, err)
	return keys, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}

// Ensure InstrumentedStorage implements storage.Storage
var _ storage.Storage = (*InstrumentedStorage)(nil)
