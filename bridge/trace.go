package bridge

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer names the span namespace a State uses for outbound calls and
// flushes, grounded on vango-go-vango's go.opentelemetry.io/otel wiring —
// generalized from HTTP request spans to bridge call spans so a caller can
// see a remote method call's latency in the same trace as the code that
// issued it.
var tracer = otel.Tracer("github.com/bridgekit/bridge")

func startCallSpan(ctx context.Context, method string, callID int64, externalID ExternalCallID) (context.Context, trace.Span) {
	return tracer.Start(ctx, "bridge.Call",
		trace.WithAttributes(
			attribute.String("bridge.method", method),
			attribute.Int64("bridge.call_id", callID),
			attribute.String("bridge.external_call_id", string(externalID)),
		),
	)
}

func startFlushSpan(ctx context.Context) (context.Context, trace.Span) {
	return tracer.Start(ctx, "bridge.Flush")
}
