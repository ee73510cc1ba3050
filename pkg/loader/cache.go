package loader

import (
	"context"
	"errors"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/internal/types"
	"golang.org/x/sync/singleflight"
)

var (
	ErrPaperIndexOutOfRange = errors.New("paper index out of range")
	ErrPaperNotFound        = errors.New("paper not found")
)

const papersKey = "papers"

// Cache loads the paper set from its source once and serves it from memory.
// Concurrent first callers share a single load.
type Cache struct {
	source types.PaperSource
	store  *gocache.Cache
	flight singleflight.Group
}

func NewCache(source types.PaperSource) *Cache {
	return &Cache{
		source: source,
		store:  gocache.New(gocache.NoExpiration, 0),
	}
}

// Papers returns the cached set, loading it on first use. The load is
// detached from any one caller's cancellation since other callers may be
// waiting on it.
func (c *Cache) Papers(ctx context.Context) ([]models.Paper, error) {
	if v, ok := c.store.Get(papersKey); ok {
		return v.([]models.Paper), nil
	}

	ch := c.flight.DoChan(papersKey, func() (any, error) {
		if v, ok := c.store.Get(papersKey); ok {
			return v, nil
		}
		papers, err := c.source.LoadPapers(context.WithoutCancel(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to load papers: %w", err)
		}
		c.store.Set(papersKey, papers, gocache.NoExpiration)
		return papers, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.Paper), nil
	}
}

func (c *Cache) Paper(ctx context.Context, index int) (models.Paper, error) {
	papers, err := c.Papers(ctx)
	if err != nil {
		return models.Paper{}, err
	}
	if index < 0 || index >= len(papers) {
		return models.Paper{}, fmt.Errorf("%w: index %d, loaded %d papers", ErrPaperIndexOutOfRange, index, len(papers))
	}
	return papers[index], nil
}

// PaperByID looks a paper up by id and reports its index.
func (c *Cache) PaperByID(ctx context.Context, id string) (models.Paper, int, error) {
	papers, err := c.Papers(ctx)
	if err != nil {
		return models.Paper{}, 0, err
	}
	for i, p := range papers {
		if p.ID == id {
			return p, i, nil
		}
	}
	return models.Paper{}, 0, fmt.Errorf("%w: %q", ErrPaperNotFound, id)
}

func (c *Cache) List(ctx context.Context) ([]models.PaperSummary, error) {
	papers, err := c.Papers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.PaperSummary, len(papers))
	for i, p := range papers {
		out[i] = p.Summary(i)
	}
	return out, nil
}

// Invalidate drops the cached set so the next call reloads it.
func (c *Cache) Invalidate() {
	c.store.Delete(papersKey)
}

// Sources concatenates papers from several sources in order.
type Sources []types.PaperSource

func (s Sources) LoadPapers(ctx context.Context) ([]models.Paper, error) {
	var papers []models.Paper
	for _, src := range s {
		loaded, err := src.LoadPapers(ctx)
		if err != nil {
			return nil, err
		}
		papers = append(papers, loaded...)
	}
	return papers, nil
}
