package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldGroupID   = "group_id"
	FieldOperation = "operation"
	FieldErrorCode = "error_code"
	FieldEventType = "event_type"
	FieldField     = "field"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
	FieldCount     = "count"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// UserID returns a slog attribute for the user ID.
func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

// GroupID returns a slog attribute for the group ID.
func GroupID(id string) slog.Attr {
	return slog.String(FieldGroupID, id)
}

// Operation returns a slog attribute for the requested operation.
func Operation(op string) slog.Attr {
	return slog.String(FieldOperation, op)
}

// ErrorCode returns a slog attribute for a pipeline error code.
func ErrorCode(code string) slog.Attr {
	return slog.String(FieldErrorCode, code)
}

// EventType returns a slog attribute for an audit event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// Field returns a slog attribute naming a payload field path.
func Field(path string) slog.Attr {
	return slog.String(FieldField, path)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Count returns a slog attribute for an item count.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}
