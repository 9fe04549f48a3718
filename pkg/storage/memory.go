package storage

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/absmach/fedagg/pkg/errors"
)

type inMemoryStorage[T any] struct {
	mu   sync.RWMutex
	data map[string]T
}

func NewInMemoryStorage[T any]() Storage[T] {
	return &inMemoryStorage[T]{
		data: make(map[string]T),
	}
}

func (s *inMemoryStorage[T]) Create(_ context.Context, key string, value T) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; ok {
		return errors.ErrEntityExists
	}
	s.data[key] = value

	return nil
}

func (s *inMemoryStorage[T]) Get(_ context.Context, key string) (T, error) {
	var zero T
	if key == "" {
		return zero, errors.ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	if !ok {
		return zero, errors.ErrNotFound
	}

	return val, nil
}

func (s *inMemoryStorage[T]) Update(_ context.Context, key string, value T) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return errors.ErrNotFound
	}
	s.data[key] = value

	return nil
}

// List pages over the entries in key order.
func (s *inMemoryStorage[T]) List(_ context.Context, offset, limit uint64) ([]T, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := slices.Sorted(maps.Keys(s.data))
	total := uint64(len(keys))
	if offset >= total {
		return []T{}, total, nil
	}

	page := keys[offset:min(offset+limit, total)]
	result := make([]T, len(page))
	for i, k := range page {
		result[i] = s.data[k]
	}

	return result, total, nil
}

func (s *inMemoryStorage[T]) Delete(_ context.Context, key string) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)

	return nil
}
