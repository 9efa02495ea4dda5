package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrWorkflow = attribute.Key("vuload.workflow")
	AttrUsers    = attribute.Key("vuload.users")
	AttrMode     = attribute.Key("vuload.mode")
	AttrUser     = attribute.Key("vuload.user")
	AttrStep     = attribute.Key("vuload.step")
	AttrAction   = attribute.Key("vuload.action")
	AttrAttempts = attribute.Key("vuload.attempts")
	AttrSuccess  = attribute.Key("vuload.success")
)

// StartRunSpan starts the root span of a load test run.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, workflow string, users int, mode string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "load test "+workflow,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrWorkflow.String(workflow),
			AttrUsers.Int(users),
			AttrMode.String(mode),
		),
	)
}

// StartUserSpan starts the span covering one virtual user.
func StartUserSpan(ctx context.Context, tracer trace.Tracer, user int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "virtual user",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrUser.Int(user)),
	)
}

// StartStepSpan starts a client span for one workflow step, retries included.
func StartStepSpan(ctx context.Context, tracer trace.Tracer, step, action string) (context.Context, trace.Span) {
	name := action + " step"
	if step != "" {
		name = action + " " + step
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrStep.String(step), AttrAction.String(action)),
	)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
