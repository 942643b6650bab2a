package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	stdhttp "net/http"
	"time"

	"connectrpc.com/connect"
	grpchealth "connectrpc.com/grpchealth"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"workshops.nibm.studio/internal/catalog"
	"workshops.nibm.studio/internal/catalog/github"
	"workshops.nibm.studio/internal/config"
	"workshops.nibm.studio/internal/ical"
	"workshops.nibm.studio/internal/workshop"
)

// CatalogServiceName is the service reported by the gRPC health endpoint.
const CatalogServiceName = "workshops.v1.CatalogService"

//go:embed templates/*.html.tmpl
var templatesFS embed.FS

var topics = []workshop.Topic{
	workshop.TopicTechnology,
	workshop.TopicBusiness,
	workshop.TopicDesign,
	workshop.TopicResearch,
}

// Server holds handlers and dependencies for the catalog HTTP server.
type Server struct {
	catalog *catalog.Catalog
	mux     *stdhttp.ServeMux
	page    *template.Template
}

// NewServer initializes a Server and mounts the page, the JSON API, the
// calendar feed and the gRPC health handler.
func NewServer(c *catalog.Catalog) *Server {
	s := &Server{catalog: c, mux: stdhttp.NewServeMux()}
	s.page = template.Must(template.New("index.html.tmpl").Funcs(template.FuncMap{
		"dateStatus": func(w *workshop.Workshop) string { return workshop.DateStatus(w, c.Now()) },
	}).ParseFS(templatesFS, "templates/index.html.tmpl"))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/workshops", s.handleListWorkshops)
	s.mux.HandleFunc("GET /api/workshops/{id}", s.handleGetWorkshop)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /workshops.ics", s.handleCalendar)
	hpath, hhandler := grpchealth.NewHandler(HealthChecker{catalog: c})
	s.mux.Handle(hpath, hhandler)
	return s
}

// NewServerForConfig builds the catalog from cfg and returns a configured Server.
func NewServerForConfig(cfg *config.Config) (*Server, error) {
	c, err := catalog.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewServer(c), nil
}

// Catalog returns the catalog served by s.
func (s *Server) Catalog() *catalog.Catalog { return s.catalog }

// Handler returns the instrumented root handler.
func (s *Server) Handler() stdhttp.Handler {
	return otelhttp.NewHandler(s.mux, "http.server")
}

// Close gracefully shuts down the server and closes database connections
func (s *Server) Close() error {
	if s.catalog != nil {
		return s.catalog.Close()
	}
	return nil
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &stdhttp.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		slog.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

type pageData struct {
	Organization  string
	AssembledAt   time.Time
	Error         string
	Topics        []workshop.Topic
	Topic         string
	Query         string
	UpcomingTopic string
	Upcoming      []*workshop.Workshop
	Past          []*workshop.Workshop
}

func (s *Server) handleIndex(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	data := pageData{
		Organization:  s.catalog.Assembler().Organization(),
		Topics:        topics,
		Topic:         orAll(q.Get("topic")),
		Query:         q.Get("q"),
		UpcomingTopic: orAll(q.Get("upcoming_topic")),
	}

	snap, err := s.snapshot(ctx)
	cols := workshop.Partition(nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to assemble catalog", "error", err)
		data.Error = err.Error()
	} else {
		cols = snap.Collections
		data.AssembledAt = snap.AssembledAt
	}
	data.Upcoming = workshop.Filter(cols.Upcoming, data.UpcomingTopic, "")
	data.Past = workshop.Filter(cols.Past, data.Topic, data.Query)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		slog.ErrorContext(ctx, "failed to render page", "error", err)
	}
}

type listResponse struct {
	AssembledAt time.Time            `json:"assembledAt"`
	Upcoming    []*workshop.Workshop `json:"upcoming"`
	Past        []*workshop.Workshop `json:"past"`
}

func (s *Server) handleListWorkshops(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		writeError(w, stdhttp.StatusServiceUnavailable, err)
		return
	}
	topic, query := r.URL.Query().Get("topic"), r.URL.Query().Get("q")
	writeJSON(w, stdhttp.StatusOK, listResponse{
		AssembledAt: snap.AssembledAt,
		Upcoming:    workshop.Filter(snap.Collections.Upcoming, topic, query),
		Past:        workshop.Filter(snap.Collections.Past, topic, query),
	})
}

func (s *Server) handleGetWorkshop(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	id := r.PathValue("id")
	ws, err := s.catalog.Inspect(r.Context(), id)
	switch {
	case errors.Is(err, github.ErrReadmeNotFound), errors.Is(err, catalog.ErrEmptyReadme):
		writeError(w, stdhttp.StatusNotFound, err)
	case err != nil:
		writeError(w, stdhttp.StatusBadGateway, err)
	default:
		writeJSON(w, stdhttp.StatusOK, ws)
	}
}

type refreshResponse struct {
	AssembledAt time.Time `json:"assembledAt"`
	Repos       int       `json:"repos"`
	Upcoming    int       `json:"upcoming"`
	Past        int       `json:"past"`
}

func (s *Server) handleRefresh(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	snap, err := s.catalog.Refresh(r.Context())
	if err != nil {
		writeError(w, stdhttp.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, stdhttp.StatusOK, refreshResponse{
		AssembledAt: snap.AssembledAt,
		Repos:       len(snap.Repos),
		Upcoming:    len(snap.Collections.Upcoming),
		Past:        len(snap.Collections.Past),
	})
}

func (s *Server) handleCalendar(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		writeError(w, stdhttp.StatusServiceUnavailable, err)
		return
	}
	org := s.catalog.Assembler().Organization()
	body := ical.Format(ical.Calendar{
		Name:        org + " Workshops",
		Description: "Upcoming workshops",
		Domain:      org,
		Stamp:       snap.AssembledAt,
	}, snap.Collections.Upcoming)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="workshops.ics"`)
	_, _ = w.Write([]byte(body))
}

// snapshot returns the current snapshot, assembling one on first use.
func (s *Server) snapshot(ctx context.Context) (*catalog.Snapshot, error) {
	if snap := s.catalog.Current(); snap != nil {
		return snap, nil
	}
	return s.catalog.Refresh(ctx)
}

func orAll(topic string) string {
	if topic == "" {
		return "all"
	}
	return topic
}

func writeJSON(w stdhttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w stdhttp.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// HealthChecker reports health based on database connectivity.
type HealthChecker struct{ catalog *catalog.Catalog }

// Check implements grpchealth.Checker. It returns StatusServing when the catalog's stores are reachable.
func (c HealthChecker) Check(
	ctx context.Context,
	req *grpchealth.CheckRequest,
) (*grpchealth.CheckResponse, error) {
	tracer := otel.Tracer("workshops/http")
	ctx, span := tracer.Start(ctx, "HealthChecker.Check")
	defer span.End()
	switch req.Service {
	case "", CatalogServiceName:
		if err := c.catalog.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "health check failed", "error", err)
			return &grpchealth.CheckResponse{Status: grpchealth.StatusNotServing}, nil
		}
		return &grpchealth.CheckResponse{Status: grpchealth.StatusServing}, nil
	default:
		return nil, connect.NewError(
			connect.CodeNotFound,
			fmt.Errorf("unknown service: %s", req.Service),
		)
	}
}
