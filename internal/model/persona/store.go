package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborchat/companion/internal/blobstore"
)

// Store exposes persona retrieval and lifecycle operations.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
	Save(ctx context.Context, p Persona) (Persona, error)
	Delete(ctx context.Context, id string) (bool, error)
}

const personasKey = "personas"

// BlobStore implements Store on top of the key-value persistence collaborator.
// Invalid personas found in the blob are dropped silently on load.
type BlobStore struct {
	mu    sync.RWMutex
	blobs blobstore.Store
	log   *zap.Logger
	items []Persona
}

// NewBlobStore loads persisted personas, falling back to the seeded defaults
// when nothing has been stored yet.
func NewBlobStore(ctx context.Context, blobs blobstore.Store, log *zap.Logger) (*BlobStore, error) {
	s := &BlobStore{blobs: blobs, log: log}

	raw, ok, err := blobs.Get(ctx, personasKey)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}

	if !ok {
		s.items = Seed()
		if err := s.persist(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}

	var loaded []Persona
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("decode personas: %w", err)
	}

	s.items = make([]Persona, 0, len(loaded))
	for _, p := range loaded {
		if err := p.Validate(); err != nil {
			log.Debug("dropping invalid persona", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		if !p.Mood.Valid() {
			p.Mood = MoodNeutral
		}
		s.items = append(s.items, p)
	}

	return s, nil
}

// List returns a copy of all valid personas.
func (s *BlobStore) List() []Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *BlobStore) FindByID(id string) (Persona, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// Save validates and upserts a persona, assigning an id on create.
func (s *BlobStore) Save(ctx context.Context, p Persona) (Persona, error) {
	if err := p.Validate(); err != nil {
		return Persona{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if !p.Mood.Valid() {
		p.Mood = MoodNeutral
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, item := range s.items {
		if item.ID == p.ID {
			s.items[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		s.items = append(s.items, p)
	}

	if err := s.persist(ctx); err != nil {
		return Persona{}, err
	}
	return p, nil
}

// Delete removes a persona. Cascade deletion of the persona's message history
// and learned phrases is handled by the conversation service.
func (s *BlobStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true, s.persist(ctx)
		}
	}
	return false, nil
}

// persist writes the current items; callers must hold the write lock.
func (s *BlobStore) persist(ctx context.Context) error {
	raw, err := json.Marshal(s.items)
	if err != nil {
		return fmt.Errorf("encode personas: %w", err)
	}
	if err := s.blobs.Set(ctx, personasKey, raw); err != nil {
		return fmt.Errorf("persist personas: %w", err)
	}
	return nil
}

// MemoryStore implements Store with an in-memory slice, suitable for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
// Invalid entries are dropped silently, mirroring BlobStore load behavior.
func NewMemoryStore(items []Persona) *MemoryStore {
	kept := make([]Persona, 0, len(items))
	for _, p := range items {
		if p.Validate() == nil {
			kept = append(kept, p)
		}
	}
	return &MemoryStore{items: kept}
}

func (s *MemoryStore) List() []Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Persona(nil), s.items...)
}

func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

func (s *MemoryStore) Save(_ context.Context, p Persona) (Persona, error) {
	if err := p.Validate(); err != nil {
		return Persona{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.ID == p.ID {
			s.items[i] = p
			return p, nil
		}
	}
	s.items = append(s.items, p)
	return p, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
