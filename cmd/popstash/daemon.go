package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soheilhy/cmux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"go.klb.dev/popstash/internal/access"
	"go.klb.dev/popstash/internal/capture"
	"go.klb.dev/popstash/internal/clip"
	"go.klb.dev/popstash/internal/gateway"
	"go.klb.dev/popstash/internal/grpcservice"
	"go.klb.dev/popstash/internal/history"
	"go.klb.dev/popstash/internal/hub"
	"go.klb.dev/popstash/internal/ipc"
	"go.klb.dev/popstash/internal/metrics"
	"go.klb.dev/popstash/internal/monitor"
	"go.klb.dev/popstash/internal/persist"
	"go.klb.dev/popstash/internal/resolve"
	"go.klb.dev/popstash/internal/tlsconf"
)

func newDaemonCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the clipboard monitor, history and capture service",
		Long: `Starts popstash in the foreground. The daemon watches the system clipboard,
keeps the history file up to date and serves the control API on the local IPC
socket (gRPC and HTTP/JSON on the same socket). Hotkey and popup layers drive
captures through that API, or through "popstash capture".

Config file search order:
  /etc/popstash/popstash.toml
  $HOME/.config/popstash/popstash.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → POPSTASH_* env vars → flags

Changes to max-history-items, unpin-moves-to-top, record-external and
capture-images in the config file are applied without a restart.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runDaemon(v) },
	}

	f := cmd.Flags()
	f.Int("max-history-items", history.DefaultMaxItems, "number of history items kept")
	f.Bool("unpin-moves-to-top", false, "sort unpinned items by the time they were unpinned")
	f.Duration("poll-interval", monitor.DefaultInterval, "clipboard poll interval")
	f.Bool("record-external", true, "record clipboard changes made by other applications")
	f.Bool("capture-images", false, "record image clipboard contents")
	f.String("history-file", "", "history file (default $XDG_DATA_HOME/popstash/history.json)")
	f.String("history-passphrase", "", "encrypt the history file with this passphrase")
	f.Bool("clear-on-exit", false, "erase the history when the daemon stops")
	f.Bool("auto-confirm", false, "confirm every capture with its text as soon as it is resolved")
	f.String("http-addr", "", "also serve the HTTP API and /metrics on this TCP address")
	f.Bool("http-tls", false, "serve http-addr over TLS keyed by --token (clients pin the derived key)")
	f.String("token", "", "shared secret required from API clients (empty = no auth)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runDaemon(v *viper.Viper) error {
	setupLogging(v)

	if ipc.IsRunning() {
		return fmt.Errorf("a daemon is already listening on %s", ipc.SocketPath())
	}

	backend := clip.New()
	defer backend.Close()

	d, err := newDaemon(v, backend, access.New())
	if err != nil {
		return err
	}

	ln, err := ipc.Listen()
	if err != nil {
		return fmt.Errorf("ipc: %w", err)
	}
	watchSettings(v, d.settings, d.store.Reconfigure)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.run(ctx, ln)
}

// daemon owns every long-lived component. Nothing here is global; each
// collaborator is handed what it needs.
type daemon struct {
	v        *viper.Viper
	settings *settings
	ticker   monitor.Ticker

	store   *history.Store
	file    *persist.Gateway
	hub     *hub.Hub
	metrics *metrics.Metrics
	clip    clip.Backend
	desk    access.Desktop
	mon     *monitor.Monitor
	orch    *capture.Orchestrator
	svc     *grpcservice.Service
	mux     http.Handler
}

func newDaemon(v *viper.Viper, backend clip.Backend, desk access.Desktop) (*daemon, error) {
	d := &daemon{
		v:        v,
		settings: newSettings(v),
		hub:      hub.New(),
		metrics:  metrics.New(),
		clip:     backend,
		desk:     desk,
	}
	file, err := persist.New(v.GetString("history-file"), persist.WithPassphrase(v.GetString("history-passphrase")))
	if err != nil {
		return nil, fmt.Errorf("history file: %w", err)
	}
	d.file = file

	items, err := file.Load()
	switch {
	case errors.Is(err, persist.ErrEncrypted):
		return nil, err
	case err != nil:
		slog.Error("history could not be loaded, starting empty", "path", file.Path(), "err", err)
	}

	d.hub.Register(d.metrics)
	d.hub.Register(hub.LogSubscriber{})

	d.store = history.New(d.settings,
		history.WithPersister(d.metrics.WrapPersister(file)),
		history.WithChangeHook(func(c history.Change) { d.hub.Publish(hub.HistoryEvent(c)) }),
	)
	d.store.Seed(items)
	d.metrics.HistoryItems.Set(float64(d.store.Len()))

	d.mon = monitor.New(backend, 16)

	res := resolve.New(desk, desk, backend, d.store, resolve.WithObserver(d.metrics.ObserveStage))

	popups := capture.Popups{capture.HubPopup{Events: d.hub}}
	var auto *capture.AutoConfirm
	if v.GetBool("auto-confirm") {
		auto = &capture.AutoConfirm{}
		popups = append(popups, auto)
	}
	d.orch = capture.New(capture.Config{
		Resolver:  res,
		Store:     d.store,
		Clipboard: backend,
		Monitor:   d.mon,
		Front:     desk,
		Popup:     popups,
		Events:    d.hub,
	})
	if auto != nil {
		auto.Bind(d.orch)
	}

	d.svc = grpcservice.New(grpcservice.Config{
		Capture: d.orch,
		History: d.store,
		Events:  d.hub,
		Token:   v.GetString("token"),
		Info: grpcservice.Info{
			Version:     Version,
			Clipboard:   backend.Name(),
			Desktop:     desk.Name(),
			HistoryFile: file.Path(),
			Encrypted:   file.Encrypted(),
			StartedAt:   time.Now(),
		},
	})
	mux, err := gateway.New(d.svc, d.metrics.Handler())
	if err != nil {
		return nil, err
	}
	d.mux = mux

	slog.Info("popstash daemon starting",
		"version", Version,
		"clipboard", backend.Name(),
		"desktop", desk.Name(),
		"history_file", file.Path(),
		"items", d.store.Len(),
		"encrypted", file.Encrypted(),
	)
	return d, nil
}

// run serves ln (gRPC and HTTP multiplexed) and runs the monitor until ctx
// ends or a component fails.
func (d *daemon) run(ctx context.Context, ln net.Listener) error {
	var tcp net.Listener
	if addr := d.v.GetString("http-addr"); addr != "" {
		var err error
		if tcp, err = net.Listen("tcp", addr); err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		if d.v.GetBool("http-tls") {
			if tcp, err = listenTLS(tcp, d.v.GetString("token")); err != nil {
				_ = ln.Close()
				return err
			}
		}
		slog.Info("http api listening", "addr", tcp.Addr().String(), "tls", d.v.GetBool("http-tls"))
	}
	if d.ticker == nil {
		d.ticker = monitor.NewTicker(d.v.GetDuration("poll-interval"))
	}

	g, ctx := errgroup.WithContext(ctx)

	m := cmux.New(ln)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.Any())

	srv := grpc.NewServer()
	grpcservice.Register(srv, d.svc)

	g.Go(func() error { return d.mon.Run(ctx, d.ticker) })
	g.Go(func() error { return d.consume(ctx) })
	g.Go(func() error { return quiet(ctx, srv.Serve(grpcL)) })
	g.Go(func() error { return quiet(ctx, gateway.Serve(ctx, httpL, d.mux)) })
	g.Go(func() error { return quiet(ctx, m.Serve()) })

	if tcp != nil {
		g.Go(func() error { return quiet(ctx, gateway.Serve(ctx, tcp, d.mux)) })
	}

	g.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		_ = ln.Close()
		return nil
	})

	slog.Info("ipc listening", "addr", ln.Addr().String())
	err := g.Wait()
	d.shutdown()
	return err
}

// listenTLS wraps ln with the identity derived from token.
func listenTLS(ln net.Listener, token string) (net.Listener, error) {
	secret := token
	if secret == "" {
		secret = tlsconf.DefaultSecret
		slog.Warn("http-tls without a token: traffic is encrypted but any client can connect")
	}
	cfg, err := tlsconf.ServerConfig(secret)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	if pin, err := tlsconf.PinnedKey(secret); err == nil {
		slog.Info("http api tls key", "pinnedpubkey", pin)
	}
	return tls.NewListener(ln, cfg), nil
}

// consume records external clipboard changes in history.
func (d *daemon) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-d.mon.Captures():
			if !d.settings.RecordExternal() {
				continue
			}
			if c.Content.IsImage() && !d.settings.CaptureImages() {
				slog.Debug("image clipboard change ignored", "bytes", c.Content.Size())
				continue
			}
			src := d.desk.Frontmost(ctx)
			id := d.store.Insert(c.Content, src)
			d.metrics.ObserveExternal(c.Content)
			slog.Debug("external clipboard change recorded",
				"id", id,
				"kind", c.Content.Kind().String(),
				"preview", hub.Preview(c.Content.Preview(), 40),
				"source", src.Name,
			)
		}
	}
}

func (d *daemon) shutdown() {
	if d.v.GetBool("clear-on-exit") {
		d.store.Clear()
		slog.Info("history cleared on exit")
	}
	slog.Info("popstash daemon stopped")
}

// quiet drops the errors listeners return once shutdown has begun.
func quiet(ctx context.Context, err error) error {
	if err == nil || ctx.Err() != nil {
		return nil
	}
	return err
}
