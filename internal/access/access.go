// Package access provides the desktop capabilities a capture needs besides
// the clipboard: reading the focused element's selection, sending the copy
// shortcut, and naming the frontmost application.
//
//	access_darwin.go  Accessibility API, CGEvent and NSWorkspace via cgo
//	access_linux.go   PRIMARY selection and xdotool/wtype helpers via exec
//	access_other.go   always granted, nothing selected, no keystrokes
package access

import (
	"context"
	"errors"

	"go.klb.dev/popstash/internal/history"
)

// ErrUnsupported is returned when the platform cannot perform an action.
var ErrUnsupported = errors.New("not supported on this platform")

// Desktop bundles the platform capabilities.
type Desktop interface {
	Name() string

	PermissionGranted() bool
	RequestPermission()
	SelectedText(ctx context.Context) (string, error)

	SendCopy(ctx context.Context) error

	Frontmost(ctx context.Context) history.Source
}

// Static is a Desktop with fixed answers. It backs headless runs and tests.
type Static struct {
	Granted   bool
	Selection string
	App       history.Source
	// OnCopy runs when SendCopy is called; nil means copying is unsupported.
	OnCopy func() error
}

func (s *Static) Name() string                                 { return "static" }
func (s *Static) PermissionGranted() bool                      { return s.Granted }
func (s *Static) RequestPermission()                           {}
func (s *Static) SelectedText(context.Context) (string, error) { return s.Selection, nil }
func (s *Static) Frontmost(context.Context) history.Source     { return s.App }

func (s *Static) SendCopy(context.Context) error {
	if s.OnCopy == nil {
		return ErrUnsupported
	}
	return s.OnCopy()
}
