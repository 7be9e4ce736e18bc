// Package ipc provides the local IPC channel between the popstash daemon and
// its CLI sub-commands (and any external hotkey or popup layer).
//
// The channel carries gRPC and HTTP multiplexed on one listener: a Unix
// domain socket on Linux and macOS, a named pipe on Windows.
package ipc

import (
	"context"
	"net"
	"os"
	"time"
)

// SocketPath returns the platform-appropriate path for the IPC socket.
//
//   - Linux:   $XDG_RUNTIME_DIR/popstash.sock, else $TMPDIR/popstash.sock
//   - macOS:   $TMPDIR/popstash.sock
//   - Windows: \\.\pipe\popstash
//
// $POPSTASH_SOCKET overrides the path on Unix.
func SocketPath() string {
	if s := os.Getenv("POPSTASH_SOCKET"); s != "" {
		return s
	}
	return socketPath()
}

// Listen creates a listener on the IPC socket path, removing any stale
// socket from a previous run first.
func Listen() (net.Listener, error) {
	return listenIPC(SocketPath())
}

// Dial connects to the IPC socket.
func Dial(ctx context.Context) (net.Conn, error) {
	return dialIPC(ctx, SocketPath())
}

// IsRunning reports whether a daemon appears to be listening on the IPC
// socket. It does a cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	c, err := Dial(ctx)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}
