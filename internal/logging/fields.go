package logging

// Standardized attribute keys. Handlers and log consumers key off these, so
// new call sites should prefer them over ad hoc names.
const (
	FieldComponent = "component"
	FieldJobID     = "job_id"
	FieldStage     = "stage"
	FieldEventType = "event_type"
	FieldRequestID = "request_id"
)
