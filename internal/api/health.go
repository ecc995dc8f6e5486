package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthProbeTimeout = 2 * time.Second

type healthResponse struct {
	Status  string `json:"status"`
	Storage struct {
		Reachable  bool `json:"reachable"`
		VenueCount int  `json:"venue_count"`
	} `json:"storage"`
	Generation struct {
		Configured bool `json:"configured"`
	} `json:"generation"`
}

// handleHealth reports storage reachability, the venue row count and whether
// the generation credential is set. Status is "degraded" when storage is
// unreachable; it stays 200 so monitors can read the body.
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		var resp healthResponse
		var pingErr, countErr error
		var count int

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			pingErr = deps.Store.Ping(gctx)
			return nil
		})
		g.Go(func() error {
			count, countErr = deps.Store.CountVenues(gctx)
			return nil
		})
		g.Wait()

		if pingErr != nil {
			slog.Warn("health: storage ping failed", "error", pingErr)
		}
		if countErr != nil {
			slog.Warn("health: venue count failed", "error", countErr)
		}

		resp.Storage.Reachable = pingErr == nil
		if countErr == nil {
			resp.Storage.VenueCount = count
		}
		resp.Generation.Configured = deps.Generation != nil && deps.Generation.Configured()

		resp.Status = "ok"
		if !resp.Storage.Reachable {
			resp.Status = "degraded"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
