package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"workshops.nibm.studio/internal/catalog"
	"workshops.nibm.studio/internal/catalog/github"
	"workshops.nibm.studio/internal/workshop"
)

var now = time.Date(2025, time.March, 15, 17, 45, 0, 0, time.UTC)

var readmes = map[string]string{
	"/raw/acme/intro-to-git/main/README.md": "# Intro to Git 🚀\n\n**Learn Git.** Branches and merges.\n\nHeld on 2025-01-10.\n",
	"/raw/acme/marketing-101/main/README.md": `# Marketing 101

**Grow your brand.** Marketing strategy for startups.

📅 April 2, 2025

## Featured Experts

- **Ms. Anoma Silva** (Marketing Lead)

[Register Now](https://forms.example.com/marketing)
`,
	"/raw/acme/design-sprint/master/README.md": "# Design Sprint\n\nA UX design workshop on 20/03/2025.\n",
}

type fixture struct {
	srv        *httptest.Server
	listings   atomic.Int32
	catalog    *catalog.Catalog
	serverImpl *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	gh := stdhttp.NewServeMux()
	gh.HandleFunc("/orgs/acme/repos", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		f.listings.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"name":"intro-to-git"},{"name":"marketing-101"},{"name":"design-sprint"},{"name":"no-readme"}]`)
	})
	gh.HandleFunc("/raw/acme/", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		body, ok := readmes[r.URL.Path]
		if !ok {
			stdhttp.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	})
	upstream := httptest.NewServer(gh)
	t.Cleanup(upstream.Close)

	c, err := catalog.New(
		catalog.WithGitHubOptions(
			github.WithBaseURL(upstream.URL),
			github.WithRawContentURL(upstream.URL+"/raw"),
			github.WithOrganization("acme"),
			github.WithLimiter(rate.NewLimiter(rate.Inf, 1)),
			github.WithHTTPClient(upstream.Client()),
		),
		catalog.WithAssemblerOptions(
			catalog.WithOrganization("acme"),
			catalog.WithClock(func() time.Time { return now }),
		),
	)
	require.NoError(t, err)
	f.catalog = c
	f.serverImpl = NewServer(c)
	f.srv = httptest.NewServer(f.serverImpl.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string) (*stdhttp.Response, string) {
	t.Helper()
	resp, err := f.srv.Client().Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestListWorkshops(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/api/workshops")
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got listResponse
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got.Upcoming, 2)
	require.Len(t, got.Past, 1)
	assert.Equal(t, "marketing-101", got.Upcoming[0].ID)
	assert.Equal(t, workshop.TopicBusiness, got.Upcoming[0].Topic)
	assert.Equal(t, "https://forms.example.com/marketing", got.Upcoming[0].RegistrationLink)
	assert.Equal(t, "design-sprint", got.Upcoming[1].ID)
	assert.Equal(t, "2025-03-20", got.Upcoming[1].DateString())
	assert.Equal(t, "intro-to-git", got.Past[0].ID)
	assert.True(t, now.Equal(got.AssembledAt))

	// The snapshot is reused.
	f.get(t, "/api/workshops")
	assert.Equal(t, int32(1), f.listings.Load())
}

func TestListWorkshopsFilters(t *testing.T) {
	f := newFixture(t)

	_, body := f.get(t, "/api/workshops?topic=design")
	var got listResponse
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got.Upcoming, 1)
	assert.Equal(t, "design-sprint", got.Upcoming[0].ID)
	assert.Empty(t, got.Past)

	_, body = f.get(t, "/api/workshops?q=branches")
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Empty(t, got.Upcoming)
	require.Len(t, got.Past, 1)
}

func TestGetWorkshop(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/api/workshops/marketing-101")
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	var w workshop.Workshop
	require.NoError(t, json.Unmarshal([]byte(body), &w))
	assert.Equal(t, "Marketing 101", w.Title)
	assert.Equal(t, "Grow your brand. Marketing strategy for startups.", w.Description)
	assert.Equal(t, []workshop.Expert{{Name: "Ms. Anoma Silva", Role: "Marketing Lead"}}, w.FeaturedExperts)
	assert.Equal(t, workshop.StatusUpcoming, w.Status)

	resp, body = f.get(t, "/api/workshops/no-readme")
	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "readme not found")
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)

	resp, err := f.srv.Client().Post(f.srv.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var got refreshResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, refreshResponse{AssembledAt: now, Repos: 4, Upcoming: 2, Past: 1}, got)
	assert.NotNil(t, f.catalog.Current())

	resp2, _ := f.get(t, "/api/refresh")
	assert.Equal(t, stdhttp.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestIndexPage(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/")
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "acme Workshops")
	assert.Contains(t, body, "Marketing 101")
	assert.Contains(t, body, "18 days away")
	assert.Contains(t, body, "fa-briefcase")
	assert.Contains(t, body, `href="https://forms.example.com/marketing"`)
	assert.Contains(t, body, "Intro to Git")
	assert.Contains(t, body, "January 10, 2025")

	_, body = f.get(t, "/?topic=research")
	assert.Contains(t, body, "No workshops found matching your criteria.")
	assert.Contains(t, body, "Marketing 101")

	_, body = f.get(t, "/?upcoming_topic=research")
	assert.Contains(t, body, "No upcoming workshops.")
	assert.Contains(t, body, "Intro to Git")

	resp, _ = f.get(t, "/missing")
	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)
}

func TestIndexPageRendersAssemblyError(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(stdhttp.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.serverImpl.Handler().ServeHTTP(rec, req)

	require.Equal(t, stdhttp.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `role="alert">Failed to load workshops: assembly aborted: context canceled`)
	assert.Contains(t, body, "No upcoming workshops.")
	assert.Contains(t, body, "No workshops found matching your criteria.")
	assert.NotContains(t, body, "Marketing 101")
	assert.Nil(t, f.catalog.Current())

	req = httptest.NewRequest(stdhttp.MethodGet, "/api/workshops", nil).WithContext(ctx)
	rec = httptest.NewRecorder()
	f.serverImpl.Handler().ServeHTTP(rec, req)
	assert.Equal(t, stdhttp.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "context canceled")
}

func TestCalendarFeed(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/workshops.ics")
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
	assert.Contains(t, body, "UID:marketing-101@acme\r\n")
	assert.Contains(t, body, "DTSTART;VALUE=DATE:20250402\r\n")
	assert.NotContains(t, body, "intro-to-git@acme")
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	for _, service := range []string{"", CatalogServiceName} {
		resp, err := f.srv.Client().Post(
			f.srv.URL+"/grpc.health.v1.Health/Check",
			"application/json",
			strings.NewReader(fmt.Sprintf(`{"service":%q}`, service)),
		)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, stdhttp.StatusOK, resp.StatusCode, service)
		assert.Contains(t, string(body), "SERVING", service)
	}

	resp, err := f.srv.Client().Post(
		f.srv.URL+"/grpc.health.v1.Health/Check",
		"application/json",
		strings.NewReader(`{"service":"unknown.Service"}`),
	)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)
}
