package clip

import (
	"crypto/sha256"
	"sync"
)

// contentCounter derives a change count from clipboard content on platforms
// that do not expose one. Each observed content change and each write made
// through the backend bumps the count by one.
type contentCounter struct {
	mu    sync.Mutex
	last  [sha256.Size]byte
	seen  bool
	count int64
}

func digest(text, img []byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write(text)
	h.Write([]byte{0})
	h.Write(img)
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// observe records the current content and returns the count.
func (c *contentCounter) observe(text, img []byte) int64 {
	d := digest(text, img)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seen {
		c.seen, c.last = true, d
		return c.count
	}
	if d != c.last {
		c.last = d
		c.count++
	}
	return c.count
}

// wrote records content the backend itself just wrote.
func (c *contentCounter) wrote(text, img []byte) int64 {
	d := digest(text, img)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen, c.last = true, d
	c.count++
	return c.count
}
