// Package persist stores the clipboard history as a single JSON document.
//
// The document is an array of item records, written atomically (temp file
// plus rename) after every history mutation. When a passphrase is configured
// the array is sealed with internal/crypto and written base64 armored. Plain
// documents are always readable, so turning encryption on migrates the file
// on the next save.
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"go.klb.dev/popstash/internal/crypto"
	"go.klb.dev/popstash/internal/history"
)

// FileName is the history document's base name.
const FileName = "history.json"

// ErrEncrypted is returned by Load when the file is sealed and no passphrase
// was configured.
var ErrEncrypted = errors.New("history file is encrypted; set history-passphrase")

// Gateway reads and writes one history document.
type Gateway struct {
	path string
	key  *crypto.Key
	now  func() time.Time
}

// Option configures a Gateway.
type Option func(*config)

type config struct {
	passphrase string
	now        func() time.Time
}

// WithPassphrase enables at-rest encryption. An empty passphrase disables it.
func WithPassphrase(p string) Option { return func(c *config) { c.passphrase = p } }

// WithClock overrides the time used for missing dateAdded values.
func WithClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

// New returns a Gateway for path. An empty path selects DefaultPath.
func New(path string, opts ...Option) (*Gateway, error) {
	cfg := config{now: time.Now}
	for _, o := range opts {
		o(&cfg)
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	g := &Gateway{path: path, now: cfg.now}
	if cfg.passphrase != "" {
		key, err := crypto.DeriveKey(cfg.passphrase)
		if err != nil {
			return nil, err
		}
		g.key = key
	}
	return g, nil
}

// DefaultPath returns $XDG_DATA_HOME/popstash/history.json, falling back to
// the user config directory.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "popstash", FileName), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate data dir: %w", err)
	}
	return filepath.Join(dir, "popstash", FileName), nil
}

// Path returns the document location.
func (g *Gateway) Path() string { return g.path }

// Encrypted reports whether saves are sealed.
func (g *Gateway) Encrypted() bool { return g.key != nil }

// Save writes items in order. It satisfies history.Persister.
func (g *Gateway) Save(items []history.Item) error {
	recs := make([]record, len(items))
	for i, it := range items {
		recs[i] = fromItem(it)
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if g.key != nil {
		if data, err = g.key.Armor(data); err != nil {
			return fmt.Errorf("seal history: %w", err)
		}
	}
	return writeAtomic(g.path, data)
}

// Load reads the document. A missing file yields no items and no error.
// Records that cannot be decoded are skipped with a warning.
func (g *Gateway) Load() ([]history.Item, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] != '[' {
		if g.key == nil {
			return nil, ErrEncrypted
		}
		if data, err = g.key.Unarmor(data); err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	now := g.now()
	seen := make(map[string]struct{}, len(raws))
	items := make([]history.Item, 0, len(raws))
	for i, raw := range raws {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			slog.Warn("skipping unreadable history record", "index", i, "err", err)
			continue
		}
		it, err := r.toItem(now)
		if err != nil {
			slog.Warn("skipping history record", "index", i, "err", err)
			continue
		}
		if _, dup := seen[it.ID]; dup {
			it.ID = uuid.NewString()
		}
		seen[it.ID] = struct{}{}
		items = append(items, it)
	}
	return items, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
