//go:build windows

package clip

import (
	"log/slog"

	"golang.design/x/clipboard"
	"golang.org/x/sys/windows"
)

var procGetClipboardSequenceNumber = windows.NewLazySystemDLL("user32.dll").NewProc("GetClipboardSequenceNumber")

type windowsBackend struct{}

// New returns the Windows clipboard backend.
// clipboard.Init is called here rather than in init() so that CLI sub-commands
// that never construct a Backend don't log spurious warnings.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard init failed", "err", err)
	}
	return windowsBackend{}
}

func (windowsBackend) Name() string { return "Windows Clipboard" }

func (windowsBackend) ReadText() (string, error) {
	return string(clipboard.Read(clipboard.FmtText)), nil
}

func (windowsBackend) ReadImage() ([]byte, error) {
	return clipboard.Read(clipboard.FmtImage), nil
}

func (windowsBackend) WriteText(text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

func (windowsBackend) WriteImage(png []byte) error {
	clipboard.Write(clipboard.FmtImage, png)
	return nil
}

// ChangeCount returns the system clipboard sequence number.
func (windowsBackend) ChangeCount() int64 {
	n, _, _ := procGetClipboardSequenceNumber.Call()
	return int64(n)
}

func (windowsBackend) Close() {}
