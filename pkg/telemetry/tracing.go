package telemetry

import (
	"context"
	"encoding/json"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	TracerName  = "litmuschaos.io/attrition-go"
	TraceParent = "TRACE_PARENT"
)

// GetTraceParentContext rebuilds the caller's span context from the
// TRACE_PARENT carrier the orchestrator injects into the job environment.
// Without the carrier the returned context starts a fresh trace.
func GetTraceParentContext() context.Context {
	traceParent := os.Getenv(TraceParent)
	if traceParent == "" {
		return context.Background()
	}

	pro := otel.GetTextMapPropagator()
	carrier := make(map[string]string)
	if err := json.Unmarshal([]byte(traceParent), &carrier); err != nil {
		return context.Background()
	}

	return pro.Extract(context.Background(), propagation.MapCarrier(carrier))
}
