package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/reviewground/internal/models"
)

// MemoryStore is a brute-force cosine index used by tests and by offline
// runs without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	dim    int
	points map[string]models.IndexedPoint
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		dim:    dim,
		points: make(map[string]models.IndexedPoint),
	}
}

func (m *MemoryStore) EnsureCollection(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) CountByPaperID(ctx context.Context, paperID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, p := range m.points {
		if p.Payload.PaperID == paperID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) UpsertBatch(ctx context.Context, points []models.IndexedPoint) error {
	for _, p := range points {
		if m.dim > 0 && len(p.Vector) != m.dim {
			return fmt.Errorf("%w: point %s has %d, want %d", ErrDimensionMismatch, p.ID, len(p.Vector), m.dim)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		p.Vector = vec
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, vector []float32, paperID string, limit int) ([]models.SearchResult, error) {
	if m.dim > 0 && len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), m.dim)
	}
	if limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	results := make([]models.SearchResult, 0)
	for _, p := range m.points {
		if p.Payload.PaperID != paperID {
			continue
		}
		results = append(results, models.SearchResult{
			ID:          p.ID,
			Score:       cosine(vector, p.Vector),
			Content:     p.Payload.Text,
			PaperID:     p.Payload.PaperID,
			SectionName: p.Payload.Section,
		})
	}
	m.mu.RUnlock()

	// Ties fall back to id so results are stable across map iteration order.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
