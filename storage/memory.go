package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStorage struct {
	mu          sync.RWMutex
	images      map[int64]Image
	nextID      int64
	generations map[string]Generation
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		images:      make(map[int64]Image),
		generations: make(map[string]Generation),
	}
}

func (m *MemoryStorage) GetImageByID(_ context.Context, id int64) (*Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	img, ok := m.images[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &img, nil
}

func (m *MemoryStorage) GetImagesByIDs(_ context.Context, ids []int64) ([]Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int64]bool, len(ids))
	var images []Image
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if img, ok := m.images[id]; ok {
			images = append(images, img)
		}
	}
	sort.Slice(images, func(i, j int) bool { return images[i].ID < images[j].ID })
	return images, nil
}

func (m *MemoryStorage) ListImages(_ context.Context, limit int) ([]Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	images := make([]Image, 0, len(m.images))
	for _, img := range m.images {
		images = append(images, img)
	}
	sort.Slice(images, func(i, j int) bool {
		if images[i].CreatedAt.Equal(images[j].CreatedAt) {
			return images[i].ID > images[j].ID
		}
		return images[i].CreatedAt.After(images[j].CreatedAt)
	})
	if l := listLimit(limit); len(images) > l {
		images = images[:l]
	}
	return images, nil
}

func (m *MemoryStorage) AddImage(_ context.Context, img *Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if img.ID == 0 {
		m.nextID++
		img.ID = m.nextID
	} else if img.ID > m.nextID {
		m.nextID = img.ID
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	m.images[img.ID] = *img
	return nil
}

func (m *MemoryStorage) DeleteImage(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.images[id]; !ok {
		return ErrNotFound
	}
	delete(m.images, id)
	return nil
}

func (m *MemoryStorage) CreateGeneration(_ context.Context, g *Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generations[g.ID] = *g
	return nil
}

func (m *MemoryStorage) UpdateGeneration(_ context.Context, g *Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.generations[g.ID]; !ok {
		return ErrNotFound
	}
	g.UpdatedAt = time.Now().UTC()
	m.generations[g.ID] = *g
	return nil
}

func (m *MemoryStorage) ListGenerations(_ context.Context, limit int) ([]Generation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]Generation, 0, len(m.generations))
	for _, g := range m.generations {
		list = append(list, g)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if l := listLimit(limit); len(list) > l {
		list = list[:l]
	}
	return list, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
