package capture

import (
	"context"
	"log/slog"

	"go.klb.dev/popstash/internal/hub"
)

// HubPopup publishes prompts on the hub as KindPrompt events. An external UI
// watching the event stream renders them and answers through the control
// API.
type HubPopup struct {
	Events Publisher
}

func (h HubPopup) Show(p Prompt) {
	h.Events.Publish(hub.Event{Kind: hub.KindPrompt, Capture: &hub.CaptureChange{
		State:       "shown",
		PromptID:    p.ID,
		Trigger:     p.Trigger.String(),
		Stage:       string(p.Stage),
		Text:        p.Text,
		ItemID:      p.ItemID,
		ReadOnly:    p.ReadOnly,
		FromHistory: p.FromHistory,
	}})
}

func (h HubPopup) Dismiss(promptID string) {
	h.Events.Publish(hub.Event{Kind: hub.KindPrompt, Capture: &hub.CaptureChange{
		State:    "dismissed",
		PromptID: promptID,
	}})
}

// AutoConfirm confirms every editable prompt with its text as soon as it is
// shown. It is used when no UI is attached. The answer is sent from its own
// goroutine, after Show has returned.
type AutoConfirm struct {
	o *Orchestrator
}

// Bind sets the orchestrator to answer. The popup is created before the
// orchestrator it answers, so it is bound afterwards.
func (a *AutoConfirm) Bind(o *Orchestrator) { a.o = o }

func (a *AutoConfirm) Show(p Prompt) {
	if a.o == nil || p.ReadOnly {
		return
	}
	go func() {
		if err := a.o.Confirm(context.Background(), p.ID, p.Text); err != nil {
			slog.Warn("auto-confirm failed", "prompt", p.ID, "err", err)
		}
	}()
}

func (a *AutoConfirm) Dismiss(string) {}

// Popups shows and dismisses on every member in order.
type Popups []Popup

func (ps Popups) Show(p Prompt) {
	for _, x := range ps {
		x.Show(p)
	}
}

func (ps Popups) Dismiss(id string) {
	for _, x := range ps {
		x.Dismiss(id)
	}
}
