package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cataloghttp "workshops.nibm.studio/internal/catalog/http"
	"workshops.nibm.studio/internal/config"
	"workshops.nibm.studio/internal/scheduler"
)

// Serve runs the catalog server on addr until ctx is done. The catalog is
// warmed from the snapshot store, refreshed once in the background and
// then on REFRESH_SCHEDULE when set.
func Serve(ctx context.Context, cfg *config.Config, addr string) error {
	srv, err := cataloghttp.NewServerForConfig(cfg)
	if err != nil {
		return err
	}
	return serve(ctx, srv, cfg.GetRefreshSchedule(), addr)
}

// serve owns srv and closes it only after every refresh it started has
// returned.
func serve(ctx context.Context, srv *cataloghttp.Server, schedule, addr string) error {
	defer func() {
		if cerr := srv.Close(); cerr != nil {
			slog.Error("error during shutdown", "error", cerr)
		}
	}()

	c := srv.Catalog()
	if err := c.Warm(ctx); err != nil {
		slog.WarnContext(ctx, "failed to warm catalog", "error", err)
	}

	refresh := func() {
		if _, err := c.Refresh(ctx); err != nil {
			slog.ErrorContext(ctx, "catalog refresh failed", "error", err)
		}
	}
	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Go(refresh)

	if schedule != "" {
		sched := scheduler.New()
		if err := sched.Schedule(schedule, refresh); err != nil {
			return err
		}
		sched.Start()
		slog.InfoContext(ctx, "scheduled catalog refresh", "schedule", schedule, "next", sched.Next())
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	return srv.ListenAndServe(ctx, addr)
}
