// Package meme resolves meme queries to local files and keeps the per-run pool of fetched memes.
package meme

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ivlev/chatreel/internal/media"
	"github.com/ivlev/chatreel/internal/xcall"
)

var ErrNotFound = errors.New("no meme matches query")

// Resolver is the media-search collaborator: query text in, local file path out.
type Resolver interface {
	Resolve(ctx context.Context, query string) (string, error)
}

// LocalResolver searches a meme directory by filename keywords and copies the best match into
// OutDir under a unique name.
type LocalResolver struct {
	Dir    string
	OutDir string
}

func NewLocalResolver(dir, outDir string) *LocalResolver {
	return &LocalResolver{Dir: dir, OutDir: outDir}
}

func (r *LocalResolver) Resolve(ctx context.Context, query string) (string, error) {
	best, err := r.Find(query)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.OutDir, 0755); err != nil {
		return "", errors.WithStack(err)
	}
	dst := filepath.Join(r.OutDir, UniqueName(query, filepath.Ext(best)))
	if err := copyFile(best, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Find scores every supported file by how many query words appear in its name and returns the
// highest score, shortest name first on ties.
func (r *LocalResolver) Find(query string) (string, error) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return "", errors.Wrap(ErrNotFound, "empty query")
	}

	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read meme dir %s", r.Dir)
	}

	type candidate struct {
		score int
		name  string
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !media.Supported(e.Name()) {
			continue
		}
		name := strings.ToLower(e.Name())
		score := 0
		for _, w := range words {
			if strings.Contains(name, w) {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, candidate{score, e.Name()})
		}
	}
	if len(candidates) == 0 {
		return "", errors.Wrapf(ErrNotFound, "query %q", query)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if len(a.name) != len(b.name) {
			return len(a.name) < len(b.name)
		}
		return a.name < b.name
	})
	return filepath.Join(r.Dir, candidates[0].name), nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// UniqueName builds "<slug>_<8 hex><ext>" for a query.
func UniqueName(query, ext string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(query), "_"), "_")
	if slug == "" {
		slug = "meme"
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return slug + "_" + suffix + strings.ToLower(ext)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "failed to copy %s", src)
	}
	return out.Close()
}

// Fetcher resolves a query and measures the result. Resolution runs under the search timeout.
type Fetcher struct {
	Resolver Resolver
	Loader   *media.Loader
	Timeout  time.Duration
	Logger   *slog.Logger
}

func NewFetcher(resolver Resolver, loader *media.Loader, timeout time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{Resolver: resolver, Loader: loader, Timeout: timeout, Logger: logger}
}

func (f *Fetcher) Fetch(ctx context.Context, query string) (*media.Asset, error) {
	path, err := xcall.Do(ctx, f.Timeout, "", func(ctx context.Context) (string, error) {
		return f.Resolver.Resolve(ctx, query)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %q", query)
	}
	return f.Loader.Load(ctx, path, query)
}
