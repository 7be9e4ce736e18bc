package clip

import (
	"bytes"
	"sync"
)

// Memory is an in-process clipboard. Every write bumps the change count,
// the same way a system pasteboard does. The zero value is ready to use.
type Memory struct {
	mu    sync.Mutex
	text  string
	image []byte
	count int64
}

// NewMemory returns an empty in-memory clipboard.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Name() string { return "memory" }

func (m *Memory) ReadText() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *Memory) ReadImage() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.image), nil
}

func (m *Memory) WriteText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text, m.image = text, nil
	m.count++
	return nil
}

func (m *Memory) WriteImage(png []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text, m.image = "", bytes.Clone(png)
	m.count++
	return nil
}

func (m *Memory) ChangeCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *Memory) Close() {}
