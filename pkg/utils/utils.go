package utils

const (
	// OTELExporterOTLPEndpoint names the env var carrying the OTLP collector
	// endpoint, tracing stays off when it is unset
	OTELExporterOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)
