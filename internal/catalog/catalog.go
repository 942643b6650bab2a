package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"workshops.nibm.studio/internal/catalog/github"
	"workshops.nibm.studio/internal/config"
	"workshops.nibm.studio/internal/database"
	"workshops.nibm.studio/internal/workshop"
)

var (
	// ErrEmptyReadme is returned when a README was served but has no content.
	ErrEmptyReadme = errors.New("readme is empty")
	// ErrNoStore is returned by operations that need the snapshot store.
	ErrNoStore = errors.New("snapshot store not configured")
)

// Catalog aggregates the GitHub client, the assembler and the optional
// snapshot store, and keeps the most recent snapshot in memory.
type Catalog struct {
	gh  *github.Client
	db  *database.Database
	asm *Assembler

	mu      sync.RWMutex
	current *Snapshot
}

// ClientSetOptions holds configuration for initializing a Catalog.
type ClientSetOptions struct {
	github    []github.GitHubClientOption
	assembler []AssemblerOption
	db        *database.Database
}

// ClientSetOption applies a configuration to ClientSetOptions.
type ClientSetOption func(*ClientSetOptions)

// WithGitHubOptions forwards GitHub client options into the Catalog configuration.
func WithGitHubOptions(opts ...github.GitHubClientOption) ClientSetOption {
	return func(o *ClientSetOptions) { o.github = append(o.github, opts...) }
}

// WithAssemblerOptions forwards assembler options into the Catalog configuration.
func WithAssemblerOptions(opts ...AssemblerOption) ClientSetOption {
	return func(o *ClientSetOptions) { o.assembler = append(o.assembler, opts...) }
}

// WithDatabase enables the snapshot store.
func WithDatabase(db *database.Database) ClientSetOption {
	return func(o *ClientSetOptions) { o.db = db }
}

// NewForConfig builds a Catalog from cfg. The snapshot store is only
// opened when a database is configured.
func NewForConfig(cfg *config.Config) (*Catalog, error) {
	org := cfg.GetOrganization()
	ghOpts := []github.GitHubClientOption{
		github.WithOrganization(org),
		github.WithRawContentURL(cfg.GetRawContentURL()),
	}
	if token := cfg.GetGitHubToken(); token != "" {
		ghOpts = append(
			ghOpts,
			github.WithToken(token),
			github.WithLimiter(github.NewGitHubLimiter(true)),
		)
	}
	if u := cfg.GetGitHubAPIURL(); u != "" {
		ghOpts = append(ghOpts, github.WithBaseURL(u))
	}
	if repos := cfg.GetFallbackRepos(); len(repos) > 0 {
		ghOpts = append(ghOpts, github.WithFallbackRepos(repos))
	}
	opts := []ClientSetOption{
		WithGitHubOptions(ghOpts...),
		WithAssemblerOptions(
			WithOrganization(org),
			WithFetchTimeout(cfg.GetFetchTimeout()),
			WithBatchTimeout(cfg.GetBatchTimeout()),
			WithMaxConcurrency(cfg.GetMaxConcurrency()),
		),
	}
	if cfg.HasDatabase() {
		db, err := database.NewForConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDatabase(db))
	}
	return New(opts...)
}

// New constructs a Catalog with the given options.
func New(opts ...ClientSetOption) (*Catalog, error) {
	var o ClientSetOptions
	for _, opt := range opts {
		opt(&o)
	}
	gh, err := github.NewClient(o.github...)
	if err != nil {
		return nil, err
	}
	return &Catalog{
		gh:  gh,
		db:  o.db,
		asm: NewAssembler(gh, gh, o.assembler...),
	}, nil
}

// GitHub returns the configured GitHub client.
func (c *Catalog) GitHub() *github.Client { return c.gh }

// Assembler returns the assembler backing the catalog.
func (c *Catalog) Assembler() *Assembler { return c.asm }

// Database returns the snapshot store, or nil if not configured.
func (c *Catalog) Database() *database.Database { return c.db }

// Now returns the current time of the catalog's clock.
func (c *Catalog) Now() time.Time { return c.asm.Now() }

// Current returns the most recent snapshot, or nil before the first refresh.
func (c *Catalog) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Collections returns the collections of the current snapshot, empty
// before the first refresh.
func (c *Catalog) Collections() workshop.Collections {
	if snap := c.Current(); snap != nil {
		return snap.Collections
	}
	return workshop.Partition(nil)
}

// Refresh re-lists and re-assembles the catalog, replaces the current
// snapshot and archives it when a store is configured. A failed archive
// is logged and does not fail the refresh.
func (c *Catalog) Refresh(ctx context.Context) (*Snapshot, error) {
	snap, err := c.asm.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.current = snap
	c.mu.Unlock()

	if c.db != nil {
		id, err := c.db.SaveSnapshot(ctx, toSnapshotArgs(snap))
		if err != nil {
			slog.ErrorContext(ctx, "failed to archive snapshot", "error", err)
		} else {
			slog.DebugContext(ctx, "snapshot archived", "snapshot_id", id)
		}
	}
	return snap, nil
}

// Warm loads the latest archived snapshot into memory. It is a no-op
// without a store or when nothing was archived yet.
func (c *Catalog) Warm(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	stored, err := c.db.LatestSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	if stored == nil {
		return nil
	}
	snap := &Snapshot{
		Organization: stored.Organization,
		AssembledAt:  stored.AssembledAt,
		Repos:        stored.Repos,
		Collections:  workshop.Partition(stored.Workshops),
		Readmes:      map[string][]byte{},
	}
	c.mu.Lock()
	if c.current == nil {
		c.current = snap
	}
	c.mu.Unlock()
	slog.InfoContext(ctx, "catalog warmed from store", "snapshot_id", stored.ID, "workshops", snap.Collections.Len())
	return nil
}

// Inspect fetches and extracts a single repository.
func (c *Catalog) Inspect(ctx context.Context, id string) (*workshop.Workshop, error) {
	return c.asm.Inspect(ctx, id)
}

// InspectArchived re-extracts a repository from the README archived with a
// stored snapshot, classified against the current clock.
func (c *Catalog) InspectArchived(ctx context.Context, snapshotID uint64, id string) (*workshop.Workshop, error) {
	if c.db == nil {
		return nil, ErrNoStore
	}
	body, err := c.db.GetReadme(ctx, snapshotID, id)
	if err != nil {
		return nil, err
	}
	if body == "" {
		return nil, fmt.Errorf("snapshot %d: %s: %w", snapshotID, id, github.ErrReadmeNotFound)
	}
	return c.asm.Extract(id, []byte(body))
}

// Close releases the snapshot store.
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies that all configured clients are reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Ping(ctx); err != nil {
		return fmt.Errorf("datastore ping failed: %w", err)
	}
	return nil
}

func toSnapshotArgs(snap *Snapshot) database.SaveSnapshotArgs {
	ws := make([]*workshop.Workshop, 0, snap.Collections.Len())
	ws = append(ws, snap.Collections.Upcoming...)
	ws = append(ws, snap.Collections.Past...)
	readmes := make(map[string]string, len(snap.Readmes))
	for id, body := range snap.Readmes {
		readmes[id] = string(body)
	}
	return database.SaveSnapshotArgs{
		Organization: snap.Organization,
		AssembledAt:  snap.AssembledAt,
		Repos:        snap.Repos,
		Workshops:    ws,
		Readmes:      readmes,
	}
}
