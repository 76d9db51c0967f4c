package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldRunID     = "run_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldAttempt   = "attempt"

	// Garment data fields
	FieldDataset   = "dataset"
	FieldDatapoint = "datapoint"
	FieldPanel     = "panel"
	FieldTemplate  = "template"
	FieldSection   = "section"

	// Path fields
	FieldPath      = "path"
	FieldFinalPath = "final_path"
)
