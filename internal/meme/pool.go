package meme

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/chatreel/internal/media"
)

// Pool holds memes fetched during a run, available for later injection.
type Pool struct {
	mu     sync.Mutex
	assets []*media.Asset
	paths  map[string]bool
}

func NewPool() *Pool {
	return &Pool{paths: make(map[string]bool)}
}

func (p *Pool) Add(a *media.Asset) {
	if a == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paths[a.Path] {
		return
	}
	p.paths[a.Path] = true
	p.assets = append(p.assets, a)
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.assets)
}

func (p *Pool) Assets() []*media.Asset {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*media.Asset, len(p.assets))
	copy(out, p.assets)
	return out
}

// Prefetch fetches up to size random queries with at most workers in flight. Failed queries are
// logged and dropped. Assets are added in query order regardless of completion order.
func (p *Pool) Prefetch(ctx context.Context, f *Fetcher, rng *rand.Rand, queries []string, size, workers int, logger *slog.Logger) int {
	if len(queries) == 0 || size <= 0 {
		return 0
	}
	picked := make([]string, size)
	for i := range picked {
		picked[i] = queries[rng.Intn(len(queries))]
	}

	results := make([]*media.Asset, len(picked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, q := range picked {
		g.Go(func() error {
			a, err := f.Fetch(gctx, q)
			if err != nil {
				logger.Warn("meme prefetch failed", "query", q, "error", err)
				return nil
			}
			results[i] = a
			return nil
		})
	}
	_ = g.Wait()

	added := 0
	for _, a := range results {
		if a != nil {
			p.Add(a)
			added++
		}
	}
	return added
}
