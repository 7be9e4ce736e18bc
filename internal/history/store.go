// Package history holds the ordered, pin-aware clipboard history.
//
// All mutations are serialized by a single mutex. After every mutation the
// store re-runs the ordering policy and prunes to the configured maximum,
// so the ordering invariant holds at all times, not only on read:
//
//	pinned items first, ascending by pin time
//	  (items pinned without a timestamp follow, newest first)
//	then unpinned items, newest first
//	  (or by max(unpinnedAt, dateAdded) in recency-boost mode)
//
// The store has no reference to its callers. Each committed mutation is
// handed to an optional Persister and then reported to an optional change
// hook.
package history

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxItems is used when the configured maximum is not positive.
const DefaultMaxItems = 100

// ErrNotFound is returned for operations on an unknown item id.
var ErrNotFound = errors.New("history: item not found")

// Settings is the read-only view of the preferences the store depends on.
// It is consulted on every mutation so live changes take effect on the next
// write (or on Reconfigure).
type Settings interface {
	MaxHistoryItems() int
	UnpinMovesToTop() bool
}

// Persister receives a snapshot of the full ordered list after each
// mutation. Errors are logged; the in-memory list stays authoritative.
type Persister interface {
	Save(items []Item) error
}

// Op names the mutation that produced a Change.
type Op string

const (
	OpInsert      Op = "insert"
	OpEdit        Op = "edit"
	OpPin         Op = "pin"
	OpUnpin       Op = "unpin"
	OpDelete      Op = "delete"
	OpClear       Op = "clear"
	OpReconfigure Op = "reconfigure"
)

// Change describes a committed mutation.
type Change struct {
	Op          Op
	IDs         []string
	Pruned      []string
	Len         int
	LastAddedID string
}

// Option configures a Store.
type Option func(*Store)

// WithPersister sets the write-through persister.
func WithPersister(p Persister) Option { return func(s *Store) { s.persister = p } }

// WithChangeHook registers fn to be called after every committed mutation.
// fn runs on the mutating goroutine, outside the store lock.
func WithChangeHook(fn func(Change)) Option { return func(s *Store) { s.onChange = fn } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithIDFunc overrides the id generator.
func WithIDFunc(fn func() string) Option { return func(s *Store) { s.newID = fn } }

// Store is the clipboard history.
type Store struct {
	settings  Settings
	persister Persister
	onChange  func(Change)
	now       func() time.Time
	newID     func() string

	mu        sync.RWMutex
	items     []Item
	lastAdded string
	seq       uint64

	saveMu       sync.Mutex
	attemptedSeq uint64
}

// New returns an empty Store.
func New(settings Settings, opts ...Option) *Store {
	s := &Store{
		settings: settings,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Seed replaces the contents with items loaded from disk without writing
// them back. Duplicate ids and duplicate content keep the first occurrence;
// the list is then reordered and pruned.
func (s *Store) Seed(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = s.items[:0]
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup || s.indexOfContentLocked(it.Content) >= 0 {
			continue
		}
		seen[it.ID] = struct{}{}
		s.items = append(s.items, it)
	}
	s.reorderLocked()
	s.pruneLocked()
}

// Insert adds content at the front of the history. Any existing item with
// equal content is removed first. Returns the new item's id.
func (s *Store) Insert(c Content, src Source) string {
	var id string
	s.mutate(func() (Op, []string) {
		id = s.insertLocked(c, src, src)
		return OpInsert, []string{id}
	})
	return id
}

// FinalizeEdit records text that was confirmed (possibly after editing).
// The new item's source is the editor itself; the original source is carried
// forward from original, or taken from frontmost when there is no prior item.
func (s *Store) FinalizeEdit(original *Item, text string, editor, frontmost Source) string {
	origin := frontmost
	if original != nil {
		origin = original.OriginalSource
		if origin.IsZero() {
			origin = original.Source
		}
	}
	var id string
	s.mutate(func() (Op, []string) {
		id = s.insertLocked(Text(text), editor, origin)
		return OpEdit, []string{id}
	})
	return id
}

// TogglePin flips the pin state of id and returns the new state.
func (s *Store) TogglePin(id string) (bool, error) {
	var (
		pinned bool
		err    error
	)
	s.mutate(func() (Op, []string) {
		i := s.indexOfIDLocked(id)
		if i < 0 {
			err = ErrNotFound
			return "", nil
		}
		now := s.now()
		it := &s.items[i]
		it.IsPinned = !it.IsPinned
		pinned = it.IsPinned
		if !pinned {
			it.PinnedAt = time.Time{}
			it.UnpinnedAt = now
			return OpUnpin, []string{id}
		}
		it.PinnedAt = now
		it.UnpinnedAt = time.Time{}
		return OpPin, []string{id}
	})
	return pinned, err
}

// Delete removes id.
func (s *Store) Delete(id string) error {
	var err error
	s.mutate(func() (Op, []string) {
		i := s.indexOfIDLocked(id)
		if i < 0 {
			err = ErrNotFound
			return "", nil
		}
		s.items = slices.Delete(s.items, i, i+1)
		if id == s.lastAdded {
			s.lastAdded = ""
		}
		return OpDelete, []string{id}
	})
	return err
}

// DeleteMany removes every listed id that exists and returns how many were
// removed. Unknown ids are ignored.
func (s *Store) DeleteMany(ids []string) int {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var removed []string
	s.mutate(func() (Op, []string) {
		s.items = slices.DeleteFunc(s.items, func(it Item) bool {
			if _, ok := want[it.ID]; ok {
				removed = append(removed, it.ID)
				return true
			}
			return false
		})
		if len(removed) == 0 {
			return "", nil
		}
		if _, ok := want[s.lastAdded]; ok {
			s.lastAdded = ""
		}
		return OpDelete, removed
	})
	return len(removed)
}

// Clear removes every item.
func (s *Store) Clear() {
	s.mutate(func() (Op, []string) {
		ids := make([]string, len(s.items))
		for i, it := range s.items {
			ids[i] = it.ID
		}
		s.items = nil
		s.lastAdded = ""
		return OpClear, ids
	})
}

// Reconfigure re-applies ordering and the size limit after a settings change.
func (s *Store) Reconfigure() {
	s.mutate(func() (Op, []string) { return OpReconfigure, nil })
}

// Query returns the items whose preview contains substr, case-insensitively,
// in store order. An empty substr matches everything.
func (s *Store) Query(substr string) []Item {
	needle := strings.ToLower(substr)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Item
	for _, it := range s.items {
		if strings.Contains(strings.ToLower(it.Preview()), needle) {
			out = append(out, it)
		}
	}
	return out
}

// Items returns a copy of the ordered list.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Get returns the item with id.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOfIDLocked(id); i >= 0 {
		return s.items[i], true
	}
	return Item{}, false
}

// MostRecent returns the item added last, wherever pins place it in order.
func (s *Store) MostRecent() (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return Item{}, false
	}
	best := 0
	for i, it := range s.items[1:] {
		if it.DateAdded.After(s.items[best].DateAdded) {
			best = i + 1
		}
	}
	return s.items[best], true
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// LastAddedID is the id of the most recently created item, or "" if it has
// since been removed.
func (s *Store) LastAddedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAdded
}

// mutate runs fn under the write lock, restores the ordering invariant,
// prunes, then persists and reports outside the lock. fn returns an empty Op
// when it changed nothing.
func (s *Store) mutate(fn func() (Op, []string)) {
	s.mu.Lock()
	op, ids := fn()
	if op == "" {
		s.mu.Unlock()
		return
	}
	s.reorderLocked()
	pruned := s.pruneLocked()
	s.seq++
	seq := s.seq
	snap := slices.Clone(s.items)
	ch := Change{
		Op:          op,
		IDs:         ids,
		Pruned:      pruned,
		Len:         len(s.items),
		LastAddedID: s.lastAdded,
	}
	s.mu.Unlock()

	s.persist(seq, snap)
	if s.onChange != nil {
		s.onChange(ch)
	}
}

// persist saves snapshots in commit order. A snapshot older than one already
// attempted is skipped, even when that attempt failed.
func (s *Store) persist(seq uint64, snap []Item) {
	if s.persister == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if seq <= s.attemptedSeq {
		return
	}
	s.attemptedSeq = seq
	if err := s.persister.Save(snap); err != nil {
		slog.Warn("history save failed, keeping in-memory state", "err", err, "items", len(snap))
	}
}

func (s *Store) insertLocked(c Content, src, origin Source) string {
	if i := s.indexOfContentLocked(c); i >= 0 {
		s.items = slices.Delete(s.items, i, i+1)
	}
	if origin.IsZero() {
		origin = src
	}
	it := Item{
		ID:             s.newID(),
		Content:        c,
		DateAdded:      s.now(),
		Source:         src,
		OriginalSource: origin,
	}
	s.items = slices.Insert(s.items, 0, it)
	s.lastAdded = it.ID
	return it.ID
}

func (s *Store) reorderLocked() {
	pinned := make([]Item, 0, len(s.items))
	unpinned := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if it.IsPinned {
			pinned = append(pinned, it)
		} else {
			unpinned = append(unpinned, it)
		}
	}

	slices.SortStableFunc(pinned, comparePinned)

	boost := s.settings != nil && s.settings.UnpinMovesToTop()
	slices.SortStableFunc(unpinned, func(a, b Item) int {
		return b.sortKey(boost).Compare(a.sortKey(boost))
	})

	s.items = append(pinned, unpinned...)
}

// comparePinned orders by pin time ascending; items without a pin time come
// after, newest first.
func comparePinned(a, b Item) int {
	aHas, bHas := !a.PinnedAt.IsZero(), !b.PinnedAt.IsZero()
	switch {
	case aHas && bHas:
		return a.PinnedAt.Compare(b.PinnedAt)
	case aHas:
		return -1
	case bHas:
		return 1
	default:
		return b.DateAdded.Compare(a.DateAdded)
	}
}

func (s *Store) pruneLocked() []string {
	limit := DefaultMaxItems
	if s.settings != nil {
		if n := s.settings.MaxHistoryItems(); n > 0 {
			limit = n
		}
	}
	if len(s.items) <= limit {
		return nil
	}
	var dropped []string
	for _, it := range s.items[limit:] {
		dropped = append(dropped, it.ID)
		if it.ID == s.lastAdded {
			s.lastAdded = ""
		}
	}
	s.items = slices.Clip(s.items[:limit])
	return dropped
}

func (s *Store) indexOfIDLocked(id string) int {
	return slices.IndexFunc(s.items, func(it Item) bool { return it.ID == id })
}

func (s *Store) indexOfContentLocked(c Content) int {
	return slices.IndexFunc(s.items, func(it Item) bool { return it.Content.Equal(c) })
}
