package credentials

import (
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process store whose entries expire after a TTL. It
// holds values that must not outlive one authorization round trip, such as
// the PKCE verifier.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[Key]memoryEntry
	nowTime func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.nowTime = nowFunc
	}
}

// NewMemoryStore creates a store whose entries live for ttl. A ttl of zero
// keeps entries until removed.
func NewMemoryStore(ttl time.Duration, options ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		ttl:     ttl,
		entries: make(map[Key]memoryEntry),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(ms)
	}
	return ms
}

func (ms *MemoryStore) Get(key Key) (string, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	e, ok := ms.entries[key]
	if !ok || ms.expired(e) {
		return "", false
	}
	return e.value, true
}

func (ms *MemoryStore) Set(key Key, value string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e := memoryEntry{value: value}
	if ms.ttl > 0 {
		e.expiresAt = ms.nowTime().Add(ms.ttl)
	}
	ms.entries[key] = e
	return nil
}

func (ms *MemoryStore) Remove(key Key) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.entries, key)
	return nil
}

// Cleanup removes expired entries.
func (ms *MemoryStore) Cleanup() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for k, e := range ms.entries {
		if ms.expired(e) {
			delete(ms.entries, k)
		}
	}
}

// Len returns the number of live entries.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	n := 0
	for _, e := range ms.entries {
		if !ms.expired(e) {
			n++
		}
	}
	return n
}

func (ms *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !ms.nowTime().Before(e.expiresAt)
}
