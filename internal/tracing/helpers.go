package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName is the tracer name used by the helpers.
const instrumentationName = "domu/registry"

// StoreOperation names a key/value storage call.
type StoreOperation string

const (
	StoreGet StoreOperation = "get"
	StoreSet StoreOperation = "set"
)

// StartStoreSpan starts a client span for a storage call against backend
// (redis, postgresql, s3, ...). The returned func ends the span, recording err
// when it is non-nil.
//
//	ctx, end := tracing.StartStoreSpan(ctx, "redis", tracing.StoreGet, key)
//	defer func() { end(err) }()
func StartStoreSpan(ctx context.Context, backend string, op StoreOperation, key string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "kv."+string(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", backend),
			attribute.String("db.operation", string(op)),
			attribute.String("kv.key", key),
		),
	)
	return ctx, endFunc(span)
}

// StartSpan starts an internal span with the given name.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, endFunc(span)
}

func endFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
