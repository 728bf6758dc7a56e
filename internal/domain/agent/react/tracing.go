package react

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScopeReact = "memoh.react"

	traceSpanTurn = "memoh.react.turn"
	traceSpanStep = "memoh.react.step"
	traceSpanTool = "memoh.tool.execute"

	traceAttrModel    = "memoh.llm.model"
	traceAttrStep     = "memoh.step"
	traceAttrToolName = "memoh.tool_name"
)

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(traceScopeReact).Start(ctx, name, trace.WithAttributes(attrs...))
}

func markSpanResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
