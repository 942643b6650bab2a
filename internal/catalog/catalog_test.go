package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"workshops.nibm.studio/internal/catalog/github"
	"workshops.nibm.studio/internal/database"
	"workshops.nibm.studio/internal/workshop"
)

// newTestCatalog serves an organization listing and raw READMEs from one
// httptest server.
func newTestCatalog(t *testing.T, repos []string, readmes map[string]string) *Catalog {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "[")
		for i, name := range repos {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"name":%q}`, name)
		}
		fmt.Fprint(w, "]")
	})
	mux.HandleFunc("/raw/acme/", func(w http.ResponseWriter, r *http.Request) {
		body, ok := readmes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(
		WithGitHubOptions(
			github.WithBaseURL(srv.URL),
			github.WithRawContentURL(srv.URL+"/raw"),
			github.WithOrganization("acme"),
			github.WithLimiter(rate.NewLimiter(rate.Inf, 1)),
			github.WithHTTPClient(srv.Client()),
		),
		WithAssemblerOptions(WithOrganization("acme"), WithClock(clock)),
	)
	require.NoError(t, err)
	return c
}

func TestCatalogRefresh(t *testing.T) {
	c := newTestCatalog(t,
		[]string{"intro-to-git", "ui-ux-bootcamp", "empty-repo"},
		map[string]string{
			"/raw/acme/intro-to-git/main/README.md":     "# Intro to Git 🚀\n\nHappening on 2025-01-10.\n",
			"/raw/acme/ui-ux-bootcamp/master/README.md": "# UI/UX Bootcamp\n\n**Design better.** Learn Figma.\n\n📅 12 April 2025\n",
		},
	)
	assert.Nil(t, c.Current())
	assert.Zero(t, c.Collections().Len())

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, c.Current())
	assert.Equal(t, "acme", snap.Organization)

	cols := c.Collections()
	require.Len(t, cols.Past, 1)
	require.Len(t, cols.Upcoming, 1)
	assert.Equal(t, "Intro to Git", cols.Past[0].Title)

	ui, ok := cols.Find("ui-ux-bootcamp")
	require.True(t, ok)
	assert.Equal(t, workshop.TopicDesign, ui.Topic)
	assert.Equal(t, "Design better. Learn Figma.", ui.Description)
	assert.Equal(t, "2025-04-12", ui.DateString())

	_, ok = cols.Find("empty-repo")
	assert.False(t, ok)
}

func TestCatalogInspect(t *testing.T) {
	c := newTestCatalog(t, nil, map[string]string{
		"/raw/acme/research-101/README.md": "# Research 101\n\nAcademic writing, Beginner friendly.\n",
	})
	w, err := c.Inspect(context.Background(), "research-101")
	require.NoError(t, err)
	assert.Equal(t, workshop.TopicResearch, w.Topic)
	assert.Equal(t, workshop.LevelBeginner, w.Level)
	assert.Equal(t, workshop.StatusUpcoming, w.Status)

	_, err = c.Inspect(context.Background(), "nope")
	require.ErrorIs(t, err, github.ErrReadmeNotFound)
}

func TestCatalogWithoutDatabase(t *testing.T) {
	c := newTestCatalog(t, nil, nil)
	assert.Nil(t, c.Database())
	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.Warm(context.Background()))
	_, err := c.InspectArchived(context.Background(), 1, "intro-to-git")
	require.ErrorIs(t, err, ErrNoStore)
	require.NoError(t, c.Close())
}

func TestCatalogInspectArchived(t *testing.T) {
	dsn := os.Getenv("WORKSHOPS_TEST_DSN")
	if dsn == "" {
		t.Skip("WORKSHOPS_TEST_DSN not set")
	}
	ctx := context.Background()
	pg, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	mg, err := database.NewMigrator(pg)
	require.NoError(t, err)
	require.NoError(t, mg.Down())
	require.NoError(t, mg.Up())

	readmes := map[string]string{
		"/raw/acme/intro-to-git/main/README.md": "# Intro to Git\n\nHeld on 2025-01-10.\n",
	}
	c := newTestCatalog(t, []string{"intro-to-git"}, readmes)
	c.db = database.NewClient(pg)

	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	summaries, err := c.Database().ListSnapshots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	// The archived copy is used even after the upstream README changes.
	readmes["/raw/acme/intro-to-git/main/README.md"] = "# Renamed\n"
	w, err := c.InspectArchived(ctx, summaries[0].ID, "intro-to-git")
	require.NoError(t, err)
	assert.Equal(t, "Intro to Git", w.Title)
	assert.Equal(t, workshop.StatusPast, w.Status)

	_, err = c.InspectArchived(ctx, summaries[0].ID, "unknown")
	require.ErrorIs(t, err, github.ErrReadmeNotFound)
}
