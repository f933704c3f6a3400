package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type instrumented struct {
	next     Store
	duration *prometheus.HistogramVec
	tracer   trace.Tracer
}

// Instrument wraps next so every operation gets a span and a latency
// observation labelled operation, collection and outcome.
func Instrument(next Store, duration *prometheus.HistogramVec, tracer trace.Tracer) Store {
	return &instrumented{next: next, duration: duration, tracer: tracer}
}

func (s *instrumented) start(ctx context.Context, op, collection string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("store.collection", collection)),
	)
	began := time.Now()

	return ctx, func(err error) {
		outcome := "ok"
		switch {
		case errors.Is(err, ErrNotFound):
			outcome = "not_found"
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		s.duration.WithLabelValues(op, collection, outcome).Observe(time.Since(began).Seconds())
		span.End()
	}
}

func (s *instrumented) Create(ctx context.Context, collection string, data map[string]any) (*Document, error) {
	ctx, done := s.start(ctx, "create", collection)
	doc, err := s.next.Create(ctx, collection, data)
	done(err)
	return doc, err
}

func (s *instrumented) Get(ctx context.Context, collection, id string) (*Document, error) {
	ctx, done := s.start(ctx, "get", collection)
	doc, err := s.next.Get(ctx, collection, id)
	done(err)
	return doc, err
}

func (s *instrumented) Replace(ctx context.Context, collection, id string, data map[string]any) (*Document, error) {
	ctx, done := s.start(ctx, "replace", collection)
	doc, err := s.next.Replace(ctx, collection, id, data)
	done(err)
	return doc, err
}

func (s *instrumented) Delete(ctx context.Context, collection, id string) error {
	ctx, done := s.start(ctx, "delete", collection)
	err := s.next.Delete(ctx, collection, id)
	done(err)
	return err
}

func (s *instrumented) Find(ctx context.Context, collection string, q Query) ([]*Document, error) {
	ctx, done := s.start(ctx, "find", collection)
	docs, err := s.next.Find(ctx, collection, q)
	done(err)
	return docs, err
}

func (s *instrumented) Close() error {
	return s.next.Close()
}
