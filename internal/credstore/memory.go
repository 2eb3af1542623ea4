package credstore

import "sync"

// MemoryBackend holds records in process memory. It is used by tests and by
// ephemeral runs that must not touch the OS keychain.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[Key][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[Key][]byte)}
}

// Get returns a copy of the record at key.
func (m *MemoryBackend) Get(key Key) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Set stores a copy of data at key.
func (m *MemoryBackend) Set(key Key, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = append([]byte(nil), data...)
	return nil
}

// Delete removes the record at key.
func (m *MemoryBackend) Delete(key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// Len returns the number of stored records.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
