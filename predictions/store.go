// Package predictions keeps an audit log of served predictions.
package predictions

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/chronopulse/features"
)

// ErrNotFound is returned by Get when no record has the requested ID
var ErrNotFound = errors.New("prediction not found")

// DefaultListLimit is used when ListRecent is called with a non-positive limit
const DefaultListLimit = 50

// MaxListLimit caps ListRecent
const MaxListLimit = 500

// Record is one logged prediction
type Record struct {
	ID              uuid.UUID          `json:"id"`
	Input           features.Record    `json:"input"`
	Prediction      string             `json:"prediction"`
	Confidence      map[string]float64 `json:"confidence"`
	Recommendations []string           `json:"recommendations"`
	ModelName       string             `json:"model_name"`
	ModelVersion    string             `json:"model_version,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Store persists prediction records
type Store interface {
	// Add assigns an ID and CreatedAt when they are unset and saves rec
	Add(ctx context.Context, rec *Record) error

	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// ListRecent returns up to limit records, newest first
	ListRecent(ctx context.Context, limit int) ([]*Record, error)
}

func prepare(rec *Record) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}

// InMemoryStore implements Store with a map; it is lost on restart.
// It retains a fixed number of records and evicts the oldest first.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
	ring    []uuid.UUID // insertion order, oldest at next once full
	next    int
	count   int
}

// NewInMemoryStore returns a store retaining the MaxListLimit newest records
func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithRetention(MaxListLimit)
}

// NewInMemoryStoreWithRetention returns a store retaining the newest
// retention records. A non-positive retention means MaxListLimit.
func NewInMemoryStoreWithRetention(retention int) *InMemoryStore {
	if retention <= 0 {
		retention = MaxListLimit
	}
	return &InMemoryStore{
		records: make(map[uuid.UUID]*Record, retention),
		ring:    make([]uuid.UUID, retention),
	}
}

// Retention returns how many records the store keeps
func (s *InMemoryStore) Retention() int {
	return len(s.ring)
}

func (s *InMemoryStore) Add(_ context.Context, rec *Record) error {
	prepare(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ring) == 0 {
		return fmt.Errorf("in-memory prediction log is not initialized")
	}
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("prediction with ID %s already exists", rec.ID)
	}
	if s.count == len(s.ring) {
		delete(s.records, s.ring[s.next])
	} else {
		s.count++
	}
	s.records[rec.ID] = clone(rec)
	s.ring[s.next] = rec.ID
	s.next = (s.next + 1) % len(s.ring)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(rec), nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]*Record, error) {
	limit = clampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, min(limit, s.count))
	for i := 1; i <= s.count && len(out) < limit; i++ {
		id := s.ring[(s.next-i+len(s.ring))%len(s.ring)]
		out = append(out, clone(s.records[id]))
	}
	return out, nil
}

func clone(rec *Record) *Record {
	c := *rec
	c.Confidence = maps.Clone(rec.Confidence)
	c.Recommendations = slices.Clone(rec.Recommendations)
	return &c
}
