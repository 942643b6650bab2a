package catalog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"workshops.nibm.studio/internal/encoding"
	"workshops.nibm.studio/internal/workshop"
)

const (
	DefaultFetchTimeout   = 10 * time.Second
	DefaultBatchTimeout   = 60 * time.Second
	DefaultMaxConcurrency = 8
)

// ReadmeFetcher retrieves the README text of a repository.
type ReadmeFetcher interface {
	GetReadme(ctx context.Context, repo string) ([]byte, error)
}

// RepositoryLister returns the candidate repositories of the organization.
// It never fails; implementations substitute a fallback list instead.
type RepositoryLister interface {
	ListRepositoriesOrFallback(ctx context.Context) []string
}

// Snapshot is the result of one assembly.
type Snapshot struct {
	Organization string
	AssembledAt  time.Time
	Repos        []string
	Collections  workshop.Collections
	// Readmes holds the raw README of every repository that produced a record.
	Readmes map[string][]byte
}

// Assembler turns repository names into classified workshop collections.
type Assembler struct {
	readmes      ReadmeFetcher
	lister       RepositoryLister
	org          string
	fetchTimeout time.Duration
	batchTimeout time.Duration
	concurrency  int
	now          func() time.Time
}

// AssemblerOptions holds configuration for an Assembler.
type AssemblerOptions struct {
	org          string
	fetchTimeout time.Duration
	batchTimeout time.Duration
	concurrency  int
	now          func() time.Time
}

// AssemblerOption applies a configuration to AssemblerOptions.
type AssemblerOption func(*AssemblerOptions)

// WithOrganization sets the organization used to build repository URLs.
func WithOrganization(org string) AssemblerOption {
	return func(o *AssemblerOptions) { o.org = org }
}

// WithFetchTimeout bounds each README fetch.
func WithFetchTimeout(d time.Duration) AssemblerOption {
	return func(o *AssemblerOptions) { o.fetchTimeout = d }
}

// WithBatchTimeout bounds a whole assembly.
func WithBatchTimeout(d time.Duration) AssemblerOption {
	return func(o *AssemblerOptions) { o.batchTimeout = d }
}

// WithMaxConcurrency limits the number of READMEs fetched at once.
func WithMaxConcurrency(n int) AssemblerOption {
	return func(o *AssemblerOptions) { o.concurrency = n }
}

// WithClock sets the time source used for classification.
func WithClock(now func() time.Time) AssemblerOption {
	return func(o *AssemblerOptions) { o.now = now }
}

// NewAssembler constructs an Assembler. lister may be nil when only
// Assemble and Inspect are used.
func NewAssembler(readmes ReadmeFetcher, lister RepositoryLister, opts ...AssemblerOption) *Assembler {
	o := AssemblerOptions{
		org:          encoding.DefaultOrganization,
		fetchTimeout: DefaultFetchTimeout,
		batchTimeout: DefaultBatchTimeout,
		concurrency:  DefaultMaxConcurrency,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	return &Assembler{
		readmes:      readmes,
		lister:       lister,
		org:          o.org,
		fetchTimeout: o.fetchTimeout,
		batchTimeout: o.batchTimeout,
		concurrency:  o.concurrency,
		now:          o.now,
	}
}

// Now returns the current time of the assembler's clock.
func (a *Assembler) Now() time.Time { return a.now() }

// Organization returns the organization records are attributed to.
func (a *Assembler) Organization() string { return a.org }

// Assemble fetches, extracts and classifies every repository in ids and
// partitions the records into upcoming and past collections. Repositories
// without a README are skipped. Order within each collection follows ids.
func (a *Assembler) Assemble(ctx context.Context, ids []string) (workshop.Collections, error) {
	snap, err := a.AssembleSnapshot(ctx, ids)
	if err != nil {
		return workshop.Partition(nil), err
	}
	return snap.Collections, nil
}

// AssembleSnapshot is Assemble that also keeps the raw READMEs.
func (a *Assembler) AssembleSnapshot(ctx context.Context, ids []string) (*Snapshot, error) {
	tracer := otel.Tracer("workshops/catalog")
	ctx, span := tracer.Start(ctx, "Assembler.Assemble")
	span.SetAttributes(attribute.Int("repos_len", len(ids)))
	defer span.End()

	batchCtx, cancel := context.WithTimeout(ctx, a.batchTimeout)
	defer cancel()

	now := a.now()
	records := make([]*workshop.Workshop, len(ids))
	readmes := make([][]byte, len(ids))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			w, body, err := a.fetchOne(batchCtx, id, now)
			if err != nil {
				slog.WarnContext(ctx, "skipping repository", "repo", id, "error", err)
				return nil
			}
			records[i] = w
			readmes[i] = body
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("assembly aborted: %w", err)
	}

	snap := &Snapshot{
		Organization: a.org,
		AssembledAt:  now,
		Repos:        append([]string(nil), ids...),
		Collections:  workshop.Partition(records),
		Readmes:      make(map[string][]byte),
	}
	for i, body := range readmes {
		if records[i] != nil {
			snap.Readmes[ids[i]] = body
		}
	}
	span.SetAttributes(
		attribute.Int("upcoming_len", len(snap.Collections.Upcoming)),
		attribute.Int("past_len", len(snap.Collections.Past)),
	)
	slog.InfoContext(
		ctx,
		"catalog assembled",
		"repos", len(ids),
		"upcoming", len(snap.Collections.Upcoming),
		"past", len(snap.Collections.Past),
	)
	return snap, nil
}

// Refresh lists the organization's repositories and assembles them.
func (a *Assembler) Refresh(ctx context.Context) (*Snapshot, error) {
	if a.lister == nil {
		return nil, fmt.Errorf("repository lister not configured")
	}
	return a.AssembleSnapshot(ctx, a.lister.ListRepositoriesOrFallback(ctx))
}

// Inspect fetches, extracts and classifies a single repository.
func (a *Assembler) Inspect(ctx context.Context, id string) (*workshop.Workshop, error) {
	tracer := otel.Tracer("workshops/catalog")
	ctx, span := tracer.Start(ctx, "Assembler.Inspect")
	span.SetAttributes(attribute.String("repo", id))
	defer span.End()

	w, _, err := a.fetchOne(ctx, id, a.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return w, nil
}

func (a *Assembler) fetchOne(ctx context.Context, id string, now time.Time) (*workshop.Workshop, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	body, err := a.readmes.GetReadme(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	w, err := a.extract(id, body, now)
	if err != nil {
		return nil, nil, err
	}
	return w, body, nil
}

// Extract builds and classifies a workshop from README text that was
// obtained elsewhere, such as an archived snapshot.
func (a *Assembler) Extract(id string, body []byte) (*workshop.Workshop, error) {
	return a.extract(id, body, a.now())
}

func (a *Assembler) extract(id string, body []byte, now time.Time) (*workshop.Workshop, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrEmptyReadme)
	}
	w := encoding.UnmarshalWorkshop(body, id, encoding.WithOrganization(a.org))
	return workshop.Classify(w, now), nil
}
