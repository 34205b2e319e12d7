package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/google/uuid"
)

// Transaction is a committed row as kept by MemoryStore.
type Transaction struct {
	ID string
	mapping.ValidatedRow
	CreatedAt time.Time
}

// MemoryStore keeps transactions in process. It backs LEDGER_BACKEND=memory
// and tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows []Transaction

	// FailWith, when set, is returned by the next InsertBatch calls.
	FailWith error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertBatch(ctx context.Context, rows []mapping.ValidatedRow) (int64, error) {
	if err := checkBatch(rows); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return 0, fmt.Errorf("insert transactions: %w", s.FailWith)
	}

	now := time.Now().UTC()
	for _, r := range rows {
		s.rows = append(s.rows, Transaction{ID: uuid.NewString(), ValidatedRow: r, CreatedAt: now})
	}
	return int64(len(rows)), nil
}

// Transactions returns a copy of everything inserted so far.
func (s *MemoryStore) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transaction(nil), s.rows...)
}

// MemoryPresetStore keeps presets in process.
type MemoryPresetStore struct {
	mu      sync.RWMutex
	presets map[string]mapping.Preset
}

var _ PresetStore = (*MemoryPresetStore)(nil)

// NewMemoryPresetStore returns an empty preset store.
func NewMemoryPresetStore() *MemoryPresetStore {
	return &MemoryPresetStore{presets: make(map[string]mapping.Preset)}
}

func (s *MemoryPresetStore) CreatePreset(_ context.Context, p mapping.Preset) (mapping.Preset, error) {
	if err := checkPreset(p); err != nil {
		return mapping.Preset{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.presets {
		if existing.Name == p.Name {
			return mapping.Preset{}, fmt.Errorf("%w: %q", ErrPresetExists, p.Name)
		}
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Headers = append([]string(nil), p.Headers...)
	p.Mapping = p.Mapping.Clone()
	s.presets[p.ID] = p
	return p, nil
}

func (s *MemoryPresetStore) GetPreset(_ context.Context, id string) (mapping.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.presets[id]
	if !ok {
		return mapping.Preset{}, ErrPresetNotFound
	}
	return p, nil
}

func (s *MemoryPresetStore) ListPresets(_ context.Context) ([]mapping.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]mapping.Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryPresetStore) DeletePreset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.presets[id]; !ok {
		return ErrPresetNotFound
	}
	delete(s.presets, id)
	return nil
}
