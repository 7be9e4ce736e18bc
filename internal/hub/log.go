package hub

import "log/slog"

const previewLimit = 120

// Preview shortens s for logs and listings.
func Preview(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}

// LogSubscriber logs every event with LogEvent.
type LogSubscriber struct{}

func (LogSubscriber) ID() string    { return "log" }
func (LogSubscriber) Kinds() []Kind { return nil }
func (LogSubscriber) Send(e Event)  { LogEvent(e) }

// LogEvent logs history and capture events at INFO and prompts, with a text
// preview of up to 120 chars, at DEBUG.
func LogEvent(e Event) {
	switch e.Kind {
	case KindHistory:
		if h := e.History; h != nil {
			slog.Info("history changed", "op", h.Op, "items", h.Len, "pruned", len(h.Pruned))
		}
	case KindPrompt:
		if c := e.Capture; c != nil {
			slog.Debug("prompt "+c.State, "prompt", c.PromptID, "read_only", c.ReadOnly, "preview", Preview(c.Text, previewLimit))
		}
	case KindCapture:
		c := e.Capture
		if c == nil {
			return
		}
		attrs := []any{"state", c.State, "trigger", c.Trigger}
		if c.PromptID != "" {
			attrs = append(attrs, "prompt", c.PromptID)
		}
		if c.Stage != "" {
			attrs = append(attrs, "stage", c.Stage)
		}
		if c.Err != "" {
			attrs = append(attrs, "err", c.Err)
		}
		slog.Info("capture", attrs...)
	}
}
