package planner

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kalambet/vinroute/internal/itinerary"
)

type stage string

const (
	stageFetching   stage = "fetching"
	stageBuilding   stage = "building"
	stageGenerating stage = "generating"
	stageVerifying  stage = "verifying"
	stageRetrying   stage = "retrying"
	stagePersisting stage = "persisting"
	stageDone       stage = "done"
)

func (p *Planner) logStage(s stage) {
	slog.Debug("planner stage", "stage", string(s))
}

// GenerationError means the generation call itself failed: network error,
// timeout, or an unusable HTTP response.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation call: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

type stageResult[T any] struct {
	val T
	err error
}

// runStage runs fn in its own goroutine and returns as soon as fn finishes or
// ctx is done, whichever comes first. A stage that ignores its context can
// therefore never hold the request past its deadline; its late result is
// dropped.
func runStage[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	ch := make(chan stageResult[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- stageResult[T]{val: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// reasonFor maps an error from the generation path to a short fallback reason.
func reasonFor(err error) string {
	var (
		parseErr  *itinerary.ParseError
		schemaErr *itinerary.SchemaError
		refErr    *itinerary.ReferentialError
		genErr    *GenerationError
	)
	switch {
	case errors.Is(err, ErrCatalogUnavailable):
		return "catalog_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.As(err, &genErr):
		return "generation_failed"
	case errors.As(err, &parseErr):
		return "parse_error"
	case errors.As(err, &schemaErr):
		return "schema_error"
	case errors.As(err, &refErr):
		return "referential_error"
	default:
		return "unknown"
	}
}
