package planner

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kalambet/vinroute/internal/itinerary"
	"github.com/kalambet/vinroute/internal/storage"
)

type persistResult struct {
	publicID string
	err      error
}

// persist saves it in the background and returns the public id if the write
// reports back in time, or it.ID otherwise. The write itself is detached from
// ctx cancellation and bounded by the persist timeout.
func (p *Planner) persist(ctx context.Context, it itinerary.Itinerary, src Source, meta RequestMeta) string {
	if p.store == nil {
		return it.ID
	}

	payload, err := json.Marshal(it)
	if err != nil {
		slog.Warn("persistence: marshaling itinerary", "id", it.ID, "error", err)
		return it.ID
	}
	rec := storage.ItineraryRecord{
		ID:         it.ID,
		CreatedAt:  time.Now().UTC(),
		Source:     string(src),
		TrailName:  it.TrailName,
		TotalStops: it.TotalStops,
		IsMultiDay: it.IsMultiDay,
		Payload:    string(payload),
		ClientIP:   meta.ClientIP,
		UserAgent:  meta.UserAgent,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.PersistTimeout)
	done := make(chan persistResult, 1)
	go func() {
		defer cancel()
		id, err := p.store.SaveItinerary(writeCtx, rec)
		if err != nil {
			slog.Warn("persistence: saving itinerary", "id", rec.ID, "error", err)
		}
		done <- persistResult{publicID: id, err: err}
	}()

	timer := time.NewTimer(p.persistWait(ctx))
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil || r.publicID == "" {
			return it.ID
		}
		return r.publicID
	case <-timer.C:
		slog.Warn("persistence: not confirmed in time, using itinerary id", "id", it.ID)
		return it.ID
	}
}

// persistWait is how long Plan blocks on the write: the persist timeout, cut
// down to whatever remains of the overall deadline but never below the grace
// period.
func (p *Planner) persistWait(ctx context.Context) time.Duration {
	wait := p.opts.PersistTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
	}
	if wait < p.opts.PersistGrace {
		wait = p.opts.PersistGrace
	}
	return wait
}
