// Package resolve decides which text a capture trigger should offer.
//
// Stages run strictly in order and the first one that yields text wins:
//
//  1. accessibility: the focused element's selected text
//  2. copy: synthesize a copy keystroke, wait CopyDelay, compare clipboards
//  3. history: the preview of the item added last
//
// Text from stages 1 and 2 is trimmed of surrounding whitespace, the same
// normalization the clipboard monitor applies, so both paths record equal
// content.
//  4. terminal: a fixed, read-only message
//
// A missing accessibility permission aborts the whole resolution before any
// stage runs. The CopyDelay wait in stage 2 is the only suspension point.
package resolve

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.klb.dev/popstash/internal/history"
)

// CopyDelay is how long stage 2 waits after the copy keystroke before
// re-reading the clipboard.
const CopyDelay = 250 * time.Millisecond

// TerminalMessage is offered when nothing could be found.
const TerminalMessage = "No text selected and clipboard is empty.\nTry selecting some text first."

// HistoryImagePreview is offered when the newest history item is an image.
const HistoryImagePreview = "Image content"

// ErrPermissionDenied is returned when the accessibility permission is not
// granted. A permission request has already been issued.
var ErrPermissionDenied = errors.New("accessibility permission not granted")

// Stage names the step that produced a Resolution.
type Stage string

const (
	StageAccessibility Stage = "accessibility"
	StageCopy          Stage = "copy"
	StageClipboard     Stage = "clipboard"
	StageHistory       Stage = "history"
	StageTerminal      Stage = "terminal"
)

// Resolution is the resolver's answer.
type Resolution struct {
	Text  string
	Stage Stage
	// FromHistory is set when the text already lives in history; callers
	// must not insert it again.
	FromHistory bool
	// Terminal marks the read-only fallback message.
	Terminal bool
}

// Accessibility queries the focused UI element.
type Accessibility interface {
	PermissionGranted() bool
	RequestPermission()
	SelectedText(ctx context.Context) (string, error)
}

// Keystroker sends a copy shortcut to the foreground application.
type Keystroker interface {
	SendCopy(ctx context.Context) error
}

// Clipboard is the read side of the system clipboard.
type Clipboard interface {
	ReadText() (string, error)
}

// History is the read-only view of the history the resolver falls back to.
type History interface {
	MostRecent() (history.Item, bool)
}

// Resolver runs the fallback chain. Construct with New.
type Resolver struct {
	ax      Accessibility
	keys    Keystroker
	clip    Clipboard
	history History
	sleep   func(ctx context.Context, d time.Duration) error
	observe func(Stage)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSleep replaces the CopyDelay wait. Tests use it to avoid real sleeps.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Resolver) { r.sleep = fn }
}

// WithObserver is called with the stage of every successful resolution.
func WithObserver(fn func(Stage)) Option {
	return func(r *Resolver) { r.observe = fn }
}

// New returns a Resolver over the given capabilities.
func New(ax Accessibility, keys Keystroker, clip Clipboard, h History, opts ...Option) *Resolver {
	r := &Resolver{ax: ax, keys: keys, clip: clip, history: h, sleep: sleepCtx}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve runs the chain. The only errors are ErrPermissionDenied and the
// context's error if it ends during the copy wait.
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	if !r.ax.PermissionGranted() {
		r.ax.RequestPermission()
		return Resolution{}, ErrPermissionDenied
	}

	res, ok, err := r.resolve(ctx)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		res = Resolution{Text: TerminalMessage, Stage: StageTerminal, Terminal: true}
	}
	slog.Debug("selection resolved", "stage", res.Stage, "len", len(res.Text))
	if r.observe != nil {
		r.observe(res.Stage)
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context) (Resolution, bool, error) {
	if text, ok := r.fromAccessibility(ctx); ok {
		return Resolution{Text: text, Stage: StageAccessibility}, true, nil
	}

	res, ok, err := r.fromCopy(ctx)
	if err != nil || ok {
		return res, ok, err
	}

	if res, ok := r.fromHistory(); ok {
		return res, true, nil
	}
	return Resolution{}, false, nil
}

func (r *Resolver) fromAccessibility(ctx context.Context) (string, bool) {
	text, err := r.ax.SelectedText(ctx)
	if err != nil {
		slog.Debug("accessibility query failed", "err", err)
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

func (r *Resolver) fromCopy(ctx context.Context) (Resolution, bool, error) {
	original := r.readClipboard()

	if err := r.keys.SendCopy(ctx); err != nil {
		slog.Warn("synthetic copy failed", "err", err)
	}
	if err := r.sleep(ctx, CopyDelay); err != nil {
		return Resolution{}, false, err
	}

	after := r.readClipboard()
	switch {
	case !isEmpty(after) && after != original:
		return Resolution{Text: strings.TrimSpace(after), Stage: StageCopy}, true, nil
	case !isEmpty(original):
		return Resolution{Text: strings.TrimSpace(original), Stage: StageClipboard}, true, nil
	}
	return Resolution{}, false, nil
}

func (r *Resolver) fromHistory() (Resolution, bool) {
	if r.history == nil {
		return Resolution{}, false
	}
	it, ok := r.history.MostRecent()
	if !ok {
		return Resolution{}, false
	}
	text := it.Preview()
	if it.Content.IsImage() {
		text = HistoryImagePreview
	}
	return Resolution{Text: text, Stage: StageHistory, FromHistory: true}, true
}

func (r *Resolver) readClipboard() string {
	s, err := r.clip.ReadText()
	if err != nil {
		slog.Debug("clipboard read failed", "err", err)
		return ""
	}
	return s
}

func isEmpty(s string) bool { return strings.TrimSpace(s) == "" }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
