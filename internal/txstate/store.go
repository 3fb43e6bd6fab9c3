package txstate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	// DefaultMaxSize is the encoded size bound of the store in bytes
	DefaultMaxSize = 2_000_000
	// removePercent of the entries are evicted once the high-water mark is reached
	removePercent = 20
)

// Store remembers the ids of recorded deposits.
// Once it holds maxSize/100 ids the oldest 20% (by the timestamp suffix) are evicted.
// Ids without a parseable timestamp are never evicted.
type Store struct {
	mu      sync.RWMutex
	ids     map[string]struct{}
	maxSize int
}

// New creates an empty store bounded to maxSize bytes (DefaultMaxSize when <= 0)
func New(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{
		ids:     make(map[string]struct{}),
		maxSize: maxSize,
	}
}

// HighWaterMark returns the cardinality that triggers eviction
func (s *Store) HighWaterMark() int {
	return s.maxSize / 100
}

// AddTransaction inserts id. Inserting a known id is a no-op.
func (s *Store) AddTransaction(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ids) >= s.HighWaterMark() {
		s.evictLocked()
	}
	s.ids[id] = struct{}{}
}

// TransactionExists reports whether id was recorded
func (s *Store) TransactionExists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of recorded ids
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns recorded ids in lexical order
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type stamped struct {
	ts int64
	id string
}

func (s *Store) evictLocked() {
	removeCount := len(s.ids) * removePercent / 100
	if removeCount == 0 {
		return
	}

	parsed := make([]stamped, 0, len(s.ids))
	for id := range s.ids {
		if ts, ok := Timestamp(id); ok {
			parsed = append(parsed, stamped{ts: ts, id: id})
		}
	}
	sort.Slice(parsed, func(i, j int) bool {
		if parsed[i].ts != parsed[j].ts {
			return parsed[i].ts < parsed[j].ts
		}
		return parsed[i].id < parsed[j].id
	})

	if removeCount > len(parsed) {
		removeCount = len(parsed)
	}
	for _, p := range parsed[:removeCount] {
		delete(s.ids, p.id)
	}
	slog.Debug("evicted recorded deposits", "removed", removeCount, "remaining", len(s.ids))
}

// Timestamp parses the last hyphen-delimited field of id
func Timestamp(id string) (int64, bool) {
	i := strings.LastIndexByte(id, '-')
	if i < 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

type snapshot struct {
	Processed []string `json:"processed_transactions"`
}

var emptySnapshot = []byte(`{"processed_transactions":[]}`)

// MarshalBinary encodes the store, failing when the encoding exceeds the size bound
func (s *Store) MarshalBinary() ([]byte, error) {
	data, err := json.Marshal(snapshot{Processed: s.IDs()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction state: %w", err)
	}
	if len(data) > s.maxSize {
		return nil, fmt.Errorf("transaction state is %d bytes, limit %d", len(data), s.maxSize)
	}
	return data, nil
}

// Bytes encodes the store, degrading to an encoded empty store on failure
func (s *Store) Bytes() []byte {
	data, err := s.MarshalBinary()
	if err != nil {
		slog.Error("transaction state serialization failed, storing empty state", "error", err)
		return append([]byte(nil), emptySnapshot...)
	}
	return data
}

// FromBytes decodes a store, degrading to an empty store on malformed input
func FromBytes(data []byte, maxSize int) *Store {
	s := New(maxSize)
	if len(data) == 0 {
		return s
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Error("transaction state deserialization failed, starting empty", "error", err)
		return s
	}
	for _, id := range snap.Processed {
		s.ids[id] = struct{}{}
	}
	return s
}
