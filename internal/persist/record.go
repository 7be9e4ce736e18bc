package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go.klb.dev/popstash/internal/history"
)

// record is the on-disk form of one history.Item. Every field except content
// is optional on load; absent fields are filled from the defaults table in
// toItem. Optional fields are omitted on save when unset, never written as
// null.
type record struct {
	ID                        string    `json:"id,omitempty"`
	Content                   *content  `json:"content,omitempty"`
	DateAdded                 *flexTime `json:"dateAdded,omitempty"`
	IsPinned                  *bool     `json:"isPinned,omitempty"`
	PinnedAt                  *flexTime `json:"pinnedAt,omitempty"`
	UnpinnedAt                *flexTime `json:"unpinnedAt,omitempty"`
	SourceAppName             *string   `json:"sourceAppName,omitempty"`
	SourceAppBundleID         *string   `json:"sourceAppBundleID,omitempty"`
	OriginalSourceAppName     *string   `json:"originalSourceAppName,omitempty"`
	OriginalSourceAppBundleID *string   `json:"originalSourceAppBundleID,omitempty"`
}

func fromItem(it history.Item) record {
	pinned := it.IsPinned
	added := flexTime(it.DateAdded)
	r := record{
		ID:                        it.ID,
		Content:                   &content{c: it.Content},
		DateAdded:                 &added,
		IsPinned:                  &pinned,
		PinnedAt:                  optTime(it.PinnedAt),
		UnpinnedAt:                optTime(it.UnpinnedAt),
		SourceAppName:             optString(it.Source.Name),
		SourceAppBundleID:         optString(it.Source.BundleID),
		OriginalSourceAppName:     optString(it.OriginalSource.Name),
		OriginalSourceAppBundleID: optString(it.OriginalSource.BundleID),
	}
	return r
}

// toItem applies the load defaults:
//
//	field                      when absent
//	-------------------------  ------------------------------------------
//	id                         new UUID (also when duplicated in the file)
//	content                    record is skipped
//	dateAdded                  load time
//	isPinned                   false
//	pinnedAt, unpinnedAt       unset
//	sourceApp*                 unset
//	originalSourceApp*         copied from sourceApp*
func (r record) toItem(now time.Time) (history.Item, error) {
	if r.Content == nil {
		return history.Item{}, errors.New("missing content")
	}
	it := history.Item{
		ID:        r.ID,
		Content:   r.Content.c,
		DateAdded: now,
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if r.DateAdded != nil {
		it.DateAdded = r.DateAdded.Time()
	}
	if r.IsPinned != nil {
		it.IsPinned = *r.IsPinned
	}
	if r.PinnedAt != nil {
		it.PinnedAt = r.PinnedAt.Time()
	}
	if r.UnpinnedAt != nil {
		it.UnpinnedAt = r.UnpinnedAt.Time()
	}
	it.Source = history.Source{Name: deref(r.SourceAppName), BundleID: deref(r.SourceAppBundleID)}

	it.OriginalSource = it.Source
	if r.OriginalSourceAppName != nil || r.OriginalSourceAppBundleID != nil {
		it.OriginalSource = history.Source{
			Name:     deref(r.OriginalSourceAppName),
			BundleID: deref(r.OriginalSourceAppBundleID),
		}
	}
	return it, nil
}

// content encodes history.Content as {"text": "..."} or {"image": "<base64>"}.
// The keyed-container form {"text": {"_0": "..."}} is accepted on decode.
type content struct {
	c history.Content
}

type contentWire struct {
	Text  *string `json:"text,omitempty"`
	Image []byte  `json:"image,omitempty"`
}

func (c content) MarshalJSON() ([]byte, error) {
	if c.c.IsImage() {
		return json.Marshal(contentWire{Image: c.c.ImageData()})
	}
	s := c.c.Text()
	return json.Marshal(contentWire{Text: &s})
}

func (c *content) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	if raw, ok := m["text"]; ok {
		var s string
		if err := unwrapPayload(raw, &s); err != nil {
			return fmt.Errorf("content text: %w", err)
		}
		c.c = history.Text(s)
		return nil
	}
	if raw, ok := m["image"]; ok {
		var b []byte
		if err := unwrapPayload(raw, &b); err != nil {
			return fmt.Errorf("content image: %w", err)
		}
		c.c = history.Image(b)
		return nil
	}
	return errors.New("content: neither text nor image")
}

// unwrapPayload decodes raw directly into v, or from its "_0" member.
func unwrapPayload(raw json.RawMessage, v any) error {
	if t := bytes.TrimSpace(raw); len(t) > 0 && t[0] == '{' {
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(t, &keyed); err != nil {
			return err
		}
		inner, ok := keyed["_0"]
		if !ok {
			return errors.New(`keyed payload without "_0"`)
		}
		raw = inner
	}
	return json.Unmarshal(raw, v)
}

// referenceDate is the epoch of numeric timestamps written by the Apple
// Foundation encoder (seconds since 2001-01-01T00:00:00Z).
var referenceDate = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// flexTime is written as RFC 3339 and read from either RFC 3339 or a
// reference-date number.
type flexTime time.Time

func (t flexTime) Time() time.Time { return time.Time(t) }

func (t flexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		*t = flexTime(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = flexTime(referenceDate.Add(time.Duration(secs * float64(time.Second))))
	return nil
}

func optTime(t time.Time) *flexTime {
	if t.IsZero() {
		return nil
	}
	ft := flexTime(t)
	return &ft
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
