package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps containers in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	containers map[int64]*memContainer
	byNumber   map[string]int64
}

type memContainer struct {
	c       Container
	history []Status
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:     1,
		containers: make(map[int64]*memContainer),
		byNumber:   make(map[string]int64),
	}
}

// List returns a copy of every container ordered by id.
func (s *MemoryStore) List(ctx context.Context) ([]Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Container, 0, len(s.containers))
	for _, mc := range s.containers {
		result = append(result, mc.snapshot())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Get looks up a container by id.
func (s *MemoryStore) Get(ctx context.Context, id int64) (Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mc, ok := s.containers[id]
	if !ok {
		return Container{}, ErrNotFound
	}
	return mc.snapshot(), nil
}

// FindByNumber looks up a container by its number, case-insensitively.
func (s *MemoryStore) FindByNumber(ctx context.Context, number string) (Container, error) {
	nc, err := normalizeNew(NewContainer{Number: number, Type: "-"})
	if err != nil {
		return Container{}, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNumber[nc.Number]
	if !ok {
		return Container{}, ErrNotFound
	}
	return s.containers[id].snapshot(), nil
}

// Search returns up to limit containers whose number starts with prefix.
func (s *MemoryStore) Search(ctx context.Context, prefix string, limit int) ([]Container, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []Container{}
	for number, id := range s.byNumber {
		if strings.HasPrefix(number, prefix) {
			result = append(result, s.containers[id].snapshot())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Create registers a new container.
func (s *MemoryStore) Create(ctx context.Context, nc NewContainer) (Container, error) {
	nc, err := normalizeNew(nc)
	if err != nil {
		return Container{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byNumber[nc.Number]; ok {
		return Container{}, ErrDuplicateNumber
	}

	mc := &memContainer{c: Container{
		ID:        s.nextID,
		Number:    nc.Number,
		Type:      nc.Type,
		CreatedAt: time.Now().UTC(),
	}}
	if nc.Initial != nil {
		mc.history = append(mc.history, *nc.Initial)
	}
	s.containers[mc.c.ID] = mc
	s.byNumber[nc.Number] = mc.c.ID
	s.nextID++
	return mc.snapshot(), nil
}

// AddStatus appends a status entry to a container's history.
func (s *MemoryStore) AddStatus(ctx context.Context, id int64, st Status) error {
	st, err := normalizeStatus(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mc, ok := s.containers[id]
	if !ok {
		return ErrNotFound
	}
	mc.history = append(mc.history, st)
	return nil
}

// AddStatusMany appends st to each id in order, recording missing ids as
// failures.
func (s *MemoryStore) AddStatusMany(ctx context.Context, ids []int64, st Status) (UpdateResult, error) {
	res := UpdateResult{Updated: []int64{}, Failed: []Failure{}}
	st, err := normalizeStatus(st)
	if err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		mc, ok := s.containers[id]
		if !ok {
			res.Failed = append(res.Failed, Failure{ID: id, Reason: ReasonNotFound})
			continue
		}
		mc.history = append(mc.history, st)
		res.Updated = append(res.Updated, id)
	}
	return res, nil
}

// Delete removes a container and its history.
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.deleteLocked(id) {
		return ErrNotFound
	}
	return nil
}

// DeleteMany removes each id in order, recording missing ids as failures.
// Cancellation is only observed before the batch starts.
func (s *MemoryStore) DeleteMany(ctx context.Context, ids []int64) (DeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return DeleteResult{Deleted: []int64{}, Failed: []Failure{}}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := DeleteResult{Deleted: []int64{}, Failed: []Failure{}}
	for _, id := range ids {
		if s.deleteLocked(id) {
			res.Deleted = append(res.Deleted, id)
		} else {
			res.Failed = append(res.Failed, Failure{ID: id, Reason: ReasonNotFound})
		}
	}
	return res, nil
}

func (s *MemoryStore) deleteLocked(id int64) bool {
	mc, ok := s.containers[id]
	if !ok {
		return false
	}
	delete(s.containers, id)
	delete(s.byNumber, mc.c.Number)
	return true
}

// Ping always succeeds for the memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (mc *memContainer) snapshot() Container {
	c := mc.c
	if n := len(mc.history); n > 0 {
		latest := mc.history[n-1]
		c.Status = &latest
	}
	return c
}
