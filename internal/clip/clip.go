// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the appropriate implementation:
//
//	clip_darwin.go   macOS via golang.design/x/clipboard + cgo changeCount
//	clip_windows.go  Windows via golang.design/x/clipboard + GetClipboardSequenceNumber
//	clip_linux.go    Linux via golang.design/x/clipboard, content-derived count
//	clip_other.go    headless / container stub
//
// memory.go holds an in-process backend used by tests and headless runs.
package clip

// Backend is the interface that all platform clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// ReadText returns the current text payload, or "" if there is none.
	ReadText() (string, error)

	// ReadImage returns the current PNG payload, or nil if there is none.
	ReadImage() ([]byte, error)

	// WriteText replaces the clipboard with text.
	WriteText(text string) error

	// WriteImage replaces the clipboard with PNG data.
	WriteImage(png []byte) error

	// ChangeCount is a counter that increases on every clipboard write,
	// including the backend's own.
	ChangeCount() int64

	// Close releases any resources held by the backend.
	Close()
}

// headlessBackend is a no-op clipboard backend for environments without a
// display server (headless Linux servers, containers, etc.).
// It never changes and silently discards writes.
type headlessBackend struct{}

func (headlessBackend) Name() string               { return "headless (no-op)" }
func (headlessBackend) ReadText() (string, error)  { return "", nil }
func (headlessBackend) ReadImage() ([]byte, error) { return nil, nil }
func (headlessBackend) WriteText(string) error     { return nil }
func (headlessBackend) WriteImage([]byte) error    { return nil }
func (headlessBackend) ChangeCount() int64         { return 0 }
func (headlessBackend) Close()                     {}
