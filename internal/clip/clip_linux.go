//go:build linux

package clip

import (
	"log/slog"

	"golang.design/x/clipboard"
)

type linuxBackend struct {
	counter contentCounter
}

// New returns the Linux clipboard backend, or a headless no-op backend if
// the display environment is unavailable (e.g. a headless server without X11
// or Wayland). clipboard.Init is called here rather than in init() so that
// CLI sub-commands that never construct a Backend don't log the warning.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return headlessBackend{}
	}
	b := &linuxBackend{}
	b.counter.observe(clipboard.Read(clipboard.FmtText), clipboard.Read(clipboard.FmtImage))
	return b
}

func (b *linuxBackend) Name() string { return "Linux clipboard (poll)" }

func (b *linuxBackend) ReadText() (string, error) {
	return string(clipboard.Read(clipboard.FmtText)), nil
}

func (b *linuxBackend) ReadImage() ([]byte, error) {
	return clipboard.Read(clipboard.FmtImage), nil
}

func (b *linuxBackend) WriteText(text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	b.counter.wrote([]byte(text), nil)
	return nil
}

func (b *linuxBackend) WriteImage(png []byte) error {
	clipboard.Write(clipboard.FmtImage, png)
	b.counter.wrote(nil, png)
	return nil
}

// ChangeCount reads both payloads, so it is as expensive as a full read.
// X11 and Wayland offer no cheap sequence number.
func (b *linuxBackend) ChangeCount() int64 {
	return b.counter.observe(clipboard.Read(clipboard.FmtText), clipboard.Read(clipboard.FmtImage))
}

func (b *linuxBackend) Close() {}
