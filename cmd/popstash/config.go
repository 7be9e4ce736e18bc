package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/popstash/internal/history"
	"go.klb.dev/popstash/internal/logging"
)

// envKeyReplacer maps flag names onto env var names: max-history-items is
// read from POPSTASH_MAX_HISTORY_ITEMS.
var envKeyReplacer = strings.NewReplacer("-", "_")

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and POPSTASH_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → POPSTASH_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("popstash")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/popstash/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "popstash"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("POPSTASH")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addClientFlags adds the flags shared by commands that talk to the daemon.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("token", "", "shared secret (must match the daemon's)")
	cmd.Flags().Duration("timeout", 5*time.Second, "request timeout")
	addConfigFlag(cmd)
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	opts := logging.Options{
		Format: logging.ParseFormat(v.GetString("log-format")),
		Level:  v.GetString("log-level"),
	}
	if v.GetBool("no-background") {
		opts.Format = logging.FormatText
		if opts.Level == "" {
			opts.Level = "debug"
		}
	}
	logging.Setup(opts)
}

// settings holds the preferences the daemon applies live. Reload swaps
// values atomically so readers never lock.
type settings struct {
	maxItems       atomic.Int64
	unpinToTop     atomic.Bool
	recordExternal atomic.Bool
	captureImages  atomic.Bool
}

var _ history.Settings = (*settings)(nil)

func newSettings(v *viper.Viper) *settings {
	s := &settings{}
	s.reload(v)
	return s
}

func (s *settings) reload(v *viper.Viper) {
	s.maxItems.Store(int64(v.GetInt("max-history-items")))
	s.unpinToTop.Store(v.GetBool("unpin-moves-to-top"))
	s.recordExternal.Store(v.GetBool("record-external"))
	s.captureImages.Store(v.GetBool("capture-images"))
}

func (s *settings) MaxHistoryItems() int  { return int(s.maxItems.Load()) }
func (s *settings) UnpinMovesToTop() bool { return s.unpinToTop.Load() }
func (s *settings) RecordExternal() bool  { return s.recordExternal.Load() }
func (s *settings) CaptureImages() bool   { return s.captureImages.Load() }

// watchSettings reloads s whenever the config file changes and calls apply
// afterwards. It is a no-op when no config file was found.
func watchSettings(v *viper.Viper, s *settings, apply func()) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		s.reload(v)
		slog.Info("config reloaded",
			"file", e.Name,
			"max_history_items", s.MaxHistoryItems(),
			"unpin_moves_to_top", s.UnpinMovesToTop(),
			"record_external", s.RecordExternal(),
			"capture_images", s.CaptureImages(),
		)
		apply()
	})
	v.WatchConfig()
	slog.Debug("watching config", "file", v.ConfigFileUsed())
}
