// Package capture drives a capture from trigger to confirmation.
//
//	Idle → Capturing → Resolved → AwaitingConfirmation → Committed | Reverted
//	                            ↘ Discarded (terminal message)
//
// Committed, Reverted and Discarded are announced and then fall back to Idle.
// A trigger while Capturing or Resolved fails with ErrBusy. A trigger while
// AwaitingConfirmation reverts and dismisses the pending prompt, then starts
// a new capture.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.klb.dev/popstash/internal/history"
	"go.klb.dev/popstash/internal/hub"
	"go.klb.dev/popstash/internal/resolve"
)

// Editor is the source stamped on items the user confirmed through a prompt.
var Editor = history.Source{Name: "PopStash", BundleID: "dev.klb.popstash"}

// Resolver decides the text for a trigger.
type Resolver interface {
	Resolve(ctx context.Context) (resolve.Resolution, error)
}

// Store is the part of the history the orchestrator mutates.
type Store interface {
	Insert(c history.Content, src history.Source) string
	FinalizeEdit(original *history.Item, text string, editor, frontmost history.Source) string
	Get(id string) (history.Item, bool)
}

// Clipboard is the write side of the system clipboard.
type Clipboard interface {
	WriteText(text string) error
	WriteImage(png []byte) error
}

// Monitor is the clipboard monitor as seen by captures. SuppressNext is
// called before each programmatic clipboard write. Hold and Release bracket
// resolution so the copy keystroke is not recorded as an external change.
type Monitor interface {
	SuppressNext()
	Hold()
	Release()
}

// Frontmost names the application owning focus.
type Frontmost interface {
	Frontmost(ctx context.Context) history.Source
}

// Publisher receives capture events.
type Publisher interface {
	Publish(hub.Event)
}

// Popup shows prompts. Answers come back through Confirm and Cancel.
// Show and Dismiss are called in the order of the state changes they follow,
// one at a time, without the orchestrator's lock held. They must not call
// back into the orchestrator synchronously.
type Popup interface {
	Show(p Prompt)
	Dismiss(promptID string)
}

// Config holds the orchestrator's collaborators. Popup, Monitor, Front and
// Events may be nil.
type Config struct {
	Resolver  Resolver
	Store     Store
	Clipboard Clipboard
	Monitor   Monitor
	Front     Frontmost
	Popup     Popup
	Events    Publisher

	Now   func() time.Time
	NewID func() string
}

// Orchestrator is the capture state machine.
type Orchestrator struct {
	cfg Config

	mu           sync.Mutex
	state        State
	pending      *Prompt
	lastTerminal string

	// popMu is taken before mu is released, so popup calls keep state order.
	popMu sync.Mutex
}

// New returns an idle Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Orchestrator{cfg: cfg}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Pending returns the prompt awaiting an answer, if any.
func (o *Orchestrator) Pending() (Prompt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return Prompt{}, false
	}
	return *o.pending, true
}

// Trigger runs a capture and shows its prompt. It returns the prompt shown,
// resolve.ErrPermissionDenied when accessibility is not granted, or ErrBusy.
func (o *Orchestrator) Trigger(ctx context.Context, kind Kind) (Prompt, error) {
	o.mu.Lock()
	var superseded string
	switch o.state {
	case Capturing, Resolved:
		o.mu.Unlock()
		return Prompt{}, ErrBusy
	case AwaitingConfirmation:
		superseded = o.pending.ID
		o.pending = nil
		o.setStateLocked(Reverted, hub.CaptureChange{PromptID: superseded, Trigger: kind.String()})
	}
	o.setStateLocked(Capturing, hub.CaptureChange{Trigger: kind.String()})
	if superseded != "" {
		slog.Info("pending prompt superseded by new trigger", "prompt", superseded)
		o.unlockThen(func(p Popup) { p.Dismiss(superseded) })
	} else {
		o.mu.Unlock()
	}

	var front history.Source
	if o.cfg.Front != nil {
		front = o.cfg.Front.Frontmost(ctx)
	}
	o.hold()
	res, err := o.cfg.Resolver.Resolve(ctx)
	o.release()

	if err != nil {
		if errors.Is(err, resolve.ErrPermissionDenied) {
			slog.Warn("capture aborted: accessibility permission required")
		}
		o.mu.Lock()
		o.setStateLocked(Idle, hub.CaptureChange{Trigger: kind.String(), Err: err.Error()})
		o.mu.Unlock()
		return Prompt{}, fmt.Errorf("capture: %w", err)
	}

	p := Prompt{
		ID:          o.cfg.NewID(),
		Trigger:     kind,
		Text:        res.Text,
		Stage:       res.Stage,
		ReadOnly:    res.Terminal,
		FromHistory: res.FromHistory,
		Source:      front,
		CreatedAt:   o.cfg.Now(),
	}
	o.mu.Lock()
	o.setStateLocked(Resolved, o.change(p))
	o.mu.Unlock()

	// Resolved keeps other triggers out while the store writes.
	if !res.Terminal && !res.FromHistory {
		p.ItemID = o.cfg.Store.Insert(history.Text(res.Text), front)
	}

	o.mu.Lock()
	if res.Terminal {
		o.lastTerminal = p.ID
		o.setStateLocked(Discarded, o.change(p))
		o.setStateLocked(Idle, hub.CaptureChange{Trigger: kind.String()})
	} else {
		pending := p
		o.pending = &pending
		o.setStateLocked(AwaitingConfirmation, o.change(p))
	}
	o.unlockThen(func(pop Popup) { pop.Show(p) })
	return p, nil
}

// Confirm answers the pending prompt with text, which may differ from the
// prompt's text. The clipboard is overwritten with text and, unless the
// prompt came from history, the confirmed text is recorded with Editor as
// its source. Confirming the terminal message is a no-op.
func (o *Orchestrator) Confirm(ctx context.Context, promptID, text string) error {
	o.mu.Lock()
	if o.isTerminalLocked(promptID) {
		o.unlockThen(func(pop Popup) { pop.Dismiss(promptID) })
		return nil
	}
	p, err := o.takeLocked(promptID)
	if err != nil {
		o.mu.Unlock()
		return err
	}

	o.writeText(text)
	var itemID string
	if !p.FromHistory {
		var original *history.Item
		if p.ItemID != "" {
			if it, ok := o.cfg.Store.Get(p.ItemID); ok {
				original = &it
			}
		}
		itemID = o.cfg.Store.FinalizeEdit(original, text, Editor, p.Source)
	}
	c := o.change(p)
	c.Text, c.ItemID = text, itemID
	o.setStateLocked(Committed, c)
	o.setStateLocked(Idle, hub.CaptureChange{Trigger: p.Trigger.String()})
	o.unlockThen(func(pop Popup) { pop.Dismiss(promptID) })
	return nil
}

// Cancel drops the pending prompt. The optimistic history item stays.
// Cancelling the terminal message is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, promptID string) error {
	o.mu.Lock()
	if o.isTerminalLocked(promptID) {
		o.unlockThen(func(pop Popup) { pop.Dismiss(promptID) })
		return nil
	}
	p, err := o.takeLocked(promptID)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	o.setStateLocked(Reverted, o.change(p))
	o.setStateLocked(Idle, hub.CaptureChange{Trigger: p.Trigger.String()})
	o.unlockThen(func(pop Popup) { pop.Dismiss(promptID) })
	return nil
}

// CopyItem writes a history item back to the clipboard without recording it
// as a new capture.
func (o *Orchestrator) CopyItem(id string) error {
	it, ok := o.cfg.Store.Get(id)
	if !ok {
		return history.ErrNotFound
	}
	o.suppress()
	if it.Content.IsImage() {
		err := o.cfg.Clipboard.WriteImage(it.Content.ImageData())
		if err != nil {
			return fmt.Errorf("write image to clipboard: %w", err)
		}
		return nil
	}
	if err := o.cfg.Clipboard.WriteText(it.Content.Text()); err != nil {
		return fmt.Errorf("write text to clipboard: %w", err)
	}
	return nil
}

func (o *Orchestrator) takeLocked(promptID string) (Prompt, error) {
	if o.state != AwaitingConfirmation || o.pending == nil || o.pending.ID != promptID {
		return Prompt{}, fmt.Errorf("%w: %s", ErrNoPrompt, promptID)
	}
	p := *o.pending
	o.pending = nil
	return p, nil
}

func (o *Orchestrator) isTerminalLocked(promptID string) bool {
	return promptID != "" && promptID == o.lastTerminal
}

func (o *Orchestrator) writeText(text string) {
	o.suppress()
	if err := o.cfg.Clipboard.WriteText(text); err != nil {
		slog.Warn("clipboard write failed", "err", err)
	}
}

func (o *Orchestrator) suppress() {
	if o.cfg.Monitor != nil {
		o.cfg.Monitor.SuppressNext()
	}
}

// unlockThen releases mu and runs fn on the popup. popMu is taken before mu
// is released, so popup calls happen in the order of the state changes.
func (o *Orchestrator) unlockThen(fn func(Popup)) {
	o.popMu.Lock()
	o.mu.Unlock()
	defer o.popMu.Unlock()
	if o.cfg.Popup != nil {
		fn(o.cfg.Popup)
	}
}

func (o *Orchestrator) hold() {
	if o.cfg.Monitor != nil {
		o.cfg.Monitor.Hold()
	}
}

func (o *Orchestrator) release() {
	if o.cfg.Monitor != nil {
		o.cfg.Monitor.Release()
	}
}

func (o *Orchestrator) change(p Prompt) hub.CaptureChange {
	return hub.CaptureChange{
		PromptID:    p.ID,
		Trigger:     p.Trigger.String(),
		Stage:       string(p.Stage),
		ItemID:      p.ItemID,
		ReadOnly:    p.ReadOnly,
		FromHistory: p.FromHistory,
	}
}

func (o *Orchestrator) setStateLocked(s State, c hub.CaptureChange) {
	o.state = s
	if o.cfg.Events == nil {
		return
	}
	c.State = s.String()
	o.cfg.Events.Publish(hub.Event{Kind: hub.KindCapture, Capture: &c})
}
