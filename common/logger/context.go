package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment, enabling zero-touch
// logging where a turn's business context (session, student, question,
// turn number, FSM state) is automatically included in every log statement
// downstream of the pipeline stage that set it.
type LogFields struct {
	SessionID   *int64  // Tutoring session ID
	StudentID   *string // Student ID
	QuestionID  *string // Question ID
	TurnNumber  *int    // Turn number within the session
	FSMState    *string // FSM state at the time of the log line
	Component   string  // Component name (OTel semantic convention style, e.g. "tutorcore.dialog.engine")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'new'.
func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.SessionID != nil {
		result.SessionID = new.SessionID
	}
	if new.StudentID != nil {
		result.StudentID = new.StudentID
	}
	if new.QuestionID != nil {
		result.QuestionID = new.QuestionID
	}
	if new.TurnNumber != nil {
		result.TurnNumber = new.TurnNumber
	}
	if new.FSMState != nil {
		result.FSMState = new.FSMState
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{SessionID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like student transcripts or prompts.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
