package logger

// Fields is the structured field map accepted by the logger.
type Fields map[string]interface{}

// Tracing fields, carried on the context through a call chain.
const (
	FieldRequestID = "request_id"
	FieldRoastID   = "roast_id"
	FieldVersion   = "roast_version"
	FieldComponent = "component"
	FieldStep      = "step"
	FieldWorker    = "worker"
)

// Metric fields, attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)
