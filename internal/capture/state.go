package capture

import (
	"errors"
	"time"

	"go.klb.dev/popstash/internal/history"
	"go.klb.dev/popstash/internal/resolve"
)

var (
	// ErrBusy is returned by Trigger while a capture is still resolving.
	ErrBusy = errors.New("capture already in progress")
	// ErrNoPrompt is returned when confirming or cancelling a prompt that is
	// not pending.
	ErrNoPrompt = errors.New("no such pending prompt")
)

// State is the orchestrator's state.
type State int

const (
	Idle State = iota
	Capturing
	Resolved
	AwaitingConfirmation
	Committed
	Reverted
	Discarded
)

var stateNames = [...]string{
	Idle:                 "idle",
	Capturing:            "capturing",
	Resolved:             "resolved",
	AwaitingConfirmation: "awaiting_confirmation",
	Committed:            "committed",
	Reverted:             "reverted",
	Discarded:            "discarded",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Kind distinguishes the two trigger signals.
type Kind int

const (
	Primary Kind = iota
	Secondary
)

func (k Kind) String() string {
	if k == Secondary {
		return "secondary"
	}
	return "primary"
}

// Prompt is what the popup shows. ItemID is the optimistically inserted
// history item, empty when nothing was inserted.
type Prompt struct {
	ID          string
	Trigger     Kind
	Text        string
	Stage       resolve.Stage
	ReadOnly    bool
	FromHistory bool
	ItemID      string
	Source      history.Source
	CreatedAt   time.Time
}
