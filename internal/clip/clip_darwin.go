//go:build darwin

package clip

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa
// #import <Cocoa/Cocoa.h>
//
// NSInteger popstash_change_count() {
//     return [[NSPasteboard generalPasteboard] changeCount];
// }
import "C"

import (
	"log/slog"

	"golang.design/x/clipboard"
)

type darwinBackend struct{}

// New returns the macOS clipboard backend.
// clipboard.Init is called here rather than in init() so that CLI sub-commands
// that never construct a Backend don't log spurious warnings.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard init failed", "err", err)
	}
	return darwinBackend{}
}

func (darwinBackend) Name() string { return "macOS NSPasteboard" }

func (darwinBackend) ReadText() (string, error) {
	return string(clipboard.Read(clipboard.FmtText)), nil
}

func (darwinBackend) ReadImage() ([]byte, error) {
	return clipboard.Read(clipboard.FmtImage), nil
}

func (darwinBackend) WriteText(text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

func (darwinBackend) WriteImage(png []byte) error {
	clipboard.Write(clipboard.FmtImage, png)
	return nil
}

// ChangeCount is NSPasteboard's own counter; reading it does not touch the
// payload.
func (darwinBackend) ChangeCount() int64 { return int64(C.popstash_change_count()) }

func (darwinBackend) Close() {}
