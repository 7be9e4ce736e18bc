package history

import (
	"bytes"
	"time"
)

// Kind identifies the content variant of an item.
type Kind int

const (
	KindText Kind = iota
	KindImage
)

func (k Kind) String() string {
	if k == KindImage {
		return "image"
	}
	return "text"
}

// ImagePreview is the preview text shown for image items.
const ImagePreview = "Image"

// Content is a captured payload: either text or raw image bytes.
// The zero value is empty text.
type Content struct {
	kind  Kind
	text  string
	image []byte
}

// Text returns text content.
func Text(s string) Content { return Content{kind: KindText, text: s} }

// Image returns image content. The slice is copied.
func Image(data []byte) Content {
	return Content{kind: KindImage, image: bytes.Clone(data)}
}

func (c Content) Kind() Kind        { return c.kind }
func (c Content) IsImage() bool     { return c.kind == KindImage }
func (c Content) Text() string      { return c.text }
func (c Content) ImageData() []byte { return c.image }

// Equal reports structural equality: same variant and identical payload.
func (c Content) Equal(o Content) bool {
	if c.kind != o.kind {
		return false
	}
	if c.kind == KindImage {
		return bytes.Equal(c.image, o.image)
	}
	return c.text == o.text
}

// Preview returns the text verbatim, or ImagePreview for images.
func (c Content) Preview() string {
	if c.kind == KindImage {
		return ImagePreview
	}
	return c.text
}

// Size is the payload length in bytes.
func (c Content) Size() int {
	if c.kind == KindImage {
		return len(c.image)
	}
	return len(c.text)
}

// Source identifies the application that owned focus when content was
// captured. Empty fields are absent.
type Source struct {
	Name     string
	BundleID string
}

func (s Source) IsZero() bool { return s.Name == "" && s.BundleID == "" }

// Item is one entry of the clipboard history.
//
// ID, Content and DateAdded never change after creation. Only the pin fields
// are mutated in place. PinnedAt and UnpinnedAt are zero when unset.
type Item struct {
	ID             string
	Content        Content
	DateAdded      time.Time
	IsPinned       bool
	PinnedAt       time.Time
	UnpinnedAt     time.Time
	Source         Source
	OriginalSource Source
}

// Preview returns the item's preview text.
func (it Item) Preview() string { return it.Content.Preview() }

// sortKey is the unpinned ordering key for the given mode.
func (it Item) sortKey(recencyBoost bool) time.Time {
	if recencyBoost && it.UnpinnedAt.After(it.DateAdded) {
		return it.UnpinnedAt
	}
	return it.DateAdded
}
