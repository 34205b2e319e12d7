package staging

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. It is the single-process
// backend: entries do not survive a restart and are not shared between
// replicas.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	payload   Payload
	createdAt time.Time
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Evictor = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Put stores a copy of payload under key.
func (s *MemoryStore) Put(ctx context.Context, key string, payload Payload) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	entry := memoryEntry{payload: clonePayload(payload), createdAt: s.now()}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// TakeOnce removes and returns the entry for key.
func (s *MemoryStore) TakeOnce(ctx context.Context, key string) (Payload, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	return entry.payload, nil
}

// Delete removes key if present.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Evict removes entries created before olderThan.
func (s *MemoryStore) Evict(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, entry := range s.entries {
		if entry.createdAt.Before(olderThan) {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// clonePayload deep-copies maps and slices so callers cannot mutate stored state.
func clonePayload(p Payload) Payload {
	out := make(Payload, len(p))
	for i, rec := range p {
		out[i] = cloneMap(rec)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
