package logger

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// enrichHandler decorates a slog.Handler so every record downstream of
// the dialog pipeline carries the active trace/span ids plus whatever
// tutoring context (session, student, question, turn, FSM state) was
// attached to the context via WithLogFields, without each call site
// threading those fields by hand.
type enrichHandler struct {
	slog.Handler
}

func newEnrichHandler(h slog.Handler) *enrichHandler {
	return &enrichHandler{Handler: h}
}

func (h *enrichHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	fields := GetLogFields(ctx)
	if fields.SessionID != nil {
		r.AddAttrs(slog.Int64("session_id", *fields.SessionID))
	}
	if fields.StudentID != nil {
		r.AddAttrs(slog.String("student_id", *fields.StudentID))
	}
	if fields.QuestionID != nil {
		r.AddAttrs(slog.String("question_id", *fields.QuestionID))
	}
	if fields.TurnNumber != nil {
		r.AddAttrs(slog.Int("turn_number", *fields.TurnNumber))
	}
	if fields.FSMState != nil {
		r.AddAttrs(slog.String("fsm_state", *fields.FSMState))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}

	return h.Handler.Handle(ctx, r)
}

func (h *enrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &enrichHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *enrichHandler) WithGroup(name string) slog.Handler {
	return &enrichHandler{Handler: h.Handler.WithGroup(name)}
}
