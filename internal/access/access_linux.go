//go:build linux

package access

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.klb.dev/popstash/internal/history"
)

// toolTimeout bounds every helper invocation.
const toolTimeout = 500 * time.Millisecond

type command struct {
	name string
	args []string
}

var (
	waylandSelection = []command{{"wl-paste", []string{"--primary", "--no-newline"}}}
	x11Selection     = []command{
		{"xclip", []string{"-o", "-selection", "primary"}},
		{"xsel", []string{"--primary", "--output"}},
	}
	waylandCopy = []command{{"wtype", []string{"-M", "ctrl", "c", "-m", "ctrl"}}}
	x11Copy     = []command{{"xdotool", []string{"key", "--clearmodifiers", "ctrl+c"}}}
)

type linuxDesktop struct {
	wayland  bool
	procRoot string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// New returns the Linux desktop. The PRIMARY selection stands in for the
// focused element's selected text, so no permission is ever needed.
func New() Desktop {
	return &linuxDesktop{
		wayland:  os.Getenv("WAYLAND_DISPLAY") != "",
		procRoot: "/proc",
		lookPath: exec.LookPath,
		run:      runTool,
	}
}

func (d *linuxDesktop) Name() string {
	if d.wayland {
		return "Linux (Wayland)"
	}
	return "Linux (X11)"
}

func (d *linuxDesktop) PermissionGranted() bool { return true }
func (d *linuxDesktop) RequestPermission()      {}

func (d *linuxDesktop) SelectedText(ctx context.Context) (string, error) {
	chain := x11Selection
	if d.wayland {
		chain = slices.Concat(waylandSelection, x11Selection)
	}
	out, err := d.first(ctx, chain)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (d *linuxDesktop) SendCopy(ctx context.Context) error {
	chain := x11Copy
	if d.wayland {
		chain = slices.Concat(waylandCopy, x11Copy)
	}
	_, err := d.first(ctx, chain)
	return err
}

// Frontmost names the process owning the active X11 window. Wayland
// compositors do not expose it; the result is then empty.
func (d *linuxDesktop) Frontmost(ctx context.Context) history.Source {
	if _, err := d.lookPath("xdotool"); err != nil {
		return history.Source{}
	}
	out, err := d.run(ctx, "xdotool", "getactivewindow", "getwindowpid")
	if err != nil {
		return history.Source{}
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || pid <= 0 {
		return history.Source{}
	}
	return d.processSource(pid)
}

func (d *linuxDesktop) processSource(pid int) history.Source {
	dir := filepath.Join(d.procRoot, strconv.Itoa(pid))
	var src history.Source
	if comm, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
		src.Name = strings.TrimSpace(string(comm))
	}
	if exe, err := os.Readlink(filepath.Join(dir, "exe")); err == nil {
		src.BundleID = exe
	}
	return src
}

// first runs the first installed tool of chain.
func (d *linuxDesktop) first(ctx context.Context, chain []command) ([]byte, error) {
	var names []string
	for _, c := range chain {
		if _, err := d.lookPath(c.name); err != nil {
			names = append(names, c.name)
			continue
		}
		return d.run(ctx, c.name, c.args...)
	}
	return nil, fmt.Errorf("%w: install one of %s", ErrUnsupported, strings.Join(names, ", "))
}

func runTool(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
