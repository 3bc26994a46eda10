package discovery

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/marionette/marionette/pkg/logger"
	"github.com/marionette/marionette/pkg/types"
)

// FileDiscoverer reads candidates from a fixed set of manifest files
type FileDiscoverer struct {
	paths  []string
	logger logger.Logger
}

// NewFileDiscoverer creates a discoverer over the given manifest paths
func NewFileDiscoverer(log logger.Logger, paths ...string) *FileDiscoverer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &FileDiscoverer{paths: paths, logger: log}
}

// Paths returns the manifest paths this discoverer reads
func (d *FileDiscoverer) Paths() []string {
	out := make([]string, len(d.paths))
	copy(out, d.paths)
	return out
}

// Discover loads every manifest concurrently and merges the candidate
// batches in path order. A reference declared by two files is an
// error.
func (d *FileDiscoverer) Discover(ctx context.Context) ([]types.Candidate, error) {
	batches := make([][]types.Candidate, len(d.paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range d.paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := LoadManifest(path)
			if err != nil {
				return err
			}
			cands, err := m.Candidates()
			if err != nil {
				return fmt.Errorf("manifest %s: %w", path, err)
			}
			d.logger.Debug("Loaded manifest",
				logger.WithField("path", path),
				logger.WithField("units", len(cands)))
			batches[i] = cands
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	var merged []types.Candidate
	for i, batch := range batches {
		for _, c := range batch {
			key := c.Ref.String()
			if prev, ok := seen[key]; ok {
				return nil, fmt.Errorf("unit %s declared in both %s and %s", key, prev, d.paths[i])
			}
			seen[key] = d.paths[i]
			merged = append(merged, c)
		}
	}
	return merged, nil
}

// StaticDiscoverer serves a pre-built candidate batch, useful for
// units assembled in code rather than from manifests
type StaticDiscoverer struct {
	candidates []types.Candidate
}

// NewStaticDiscoverer creates a discoverer over a fixed batch
func NewStaticDiscoverer(candidates ...types.Candidate) *StaticDiscoverer {
	return &StaticDiscoverer{candidates: candidates}
}

// Discover returns a copy of the configured batch
func (d *StaticDiscoverer) Discover(_ context.Context) ([]types.Candidate, error) {
	out := make([]types.Candidate, len(d.candidates))
	copy(out, d.candidates)
	return out, nil
}
