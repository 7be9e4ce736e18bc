//go:build !darwin && !linux

package access

import (
	"context"

	"go.klb.dev/popstash/internal/history"
)

type otherDesktop struct{}

// New returns a desktop that never finds a selection. Captures on these
// platforms fall through to the clipboard and history stages.
func New() Desktop { return otherDesktop{} }

func (otherDesktop) Name() string                                 { return "generic" }
func (otherDesktop) PermissionGranted() bool                      { return true }
func (otherDesktop) RequestPermission()                           {}
func (otherDesktop) SelectedText(context.Context) (string, error) { return "", nil }
func (otherDesktop) SendCopy(context.Context) error               { return ErrUnsupported }
func (otherDesktop) Frontmost(context.Context) history.Source     { return history.Source{} }
