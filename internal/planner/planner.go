// Package planner runs one itinerary request end to end: validation,
// catalog read, generation with a single corrective retry, fallback and
// best-effort persistence, all under one overall deadline.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/vinroute/internal/catalog"
	"github.com/kalambet/vinroute/internal/composer"
	"github.com/kalambet/vinroute/internal/fallback"
	"github.com/kalambet/vinroute/internal/itinerary"
	"github.com/kalambet/vinroute/internal/proxy"
	"github.com/kalambet/vinroute/internal/storage"
	"github.com/kalambet/vinroute/internal/trip"
)

const (
	defaultOverallTimeout    = 50 * time.Second
	defaultGenerationTimeout = 20 * time.Second
	defaultPersistTimeout    = 3 * time.Second
	defaultPersistGrace      = 250 * time.Millisecond
)

// ErrCatalogUnavailable wraps any failure to read the venue catalog.
var ErrCatalogUnavailable = errors.New("venue catalog unavailable")

// TimeoutNote is attached to fallback itineraries produced because a
// deadline expired.
const TimeoutNote = "Generation took too long, so this is one of our curated trails."

// CatalogFetcher reads the venue set for one request.
type CatalogFetcher interface {
	Fetch(ctx context.Context) (*catalog.Catalog, error)
}

// Generator issues one completion call and returns the raw text.
type Generator interface {
	Complete(ctx context.Context, req proxy.CompletionRequest) (string, error)
}

// Persister stores a finished itinerary and returns its public id.
type Persister interface {
	SaveItinerary(ctx context.Context, rec storage.ItineraryRecord) (string, error)
}

// Source tells whether an itinerary came from the generation service or the
// fallback generator.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// RequestMeta is caller metadata stored alongside the itinerary.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// Result is the outcome of Plan. Callers that only need the itinerary can
// ignore everything else; both sources are successful outcomes.
type Result struct {
	Itinerary      itinerary.Itinerary
	Source         Source
	FallbackReason string
	Retried        bool
	Note           string
}

// Options configures the planner's deadlines. Zero values use defaults.
type Options struct {
	OverallTimeout    time.Duration
	GenerationTimeout time.Duration
	PersistTimeout    time.Duration
	// PersistGrace is how long persistence is awaited once the overall
	// deadline has already expired.
	PersistGrace time.Duration
}

func (o Options) withDefaults() Options {
	if o.OverallTimeout <= 0 {
		o.OverallTimeout = defaultOverallTimeout
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = defaultGenerationTimeout
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = defaultPersistTimeout
	}
	if o.PersistGrace <= 0 {
		o.PersistGrace = defaultPersistGrace
	}
	return o
}

// Planner orchestrates itinerary generation.
type Planner struct {
	catalog   CatalogFetcher
	generator Generator
	store     Persister
	composer  *composer.Composer
	opts      Options
}

// New creates a Planner. store may be nil, in which case nothing is
// persisted and the itinerary id doubles as its public id.
func New(cat CatalogFetcher, gen Generator, store Persister, comp *composer.Composer, opts Options) *Planner {
	if comp == nil {
		comp = composer.New(0)
	}
	return &Planner{
		catalog:   cat,
		generator: gen,
		store:     store,
		composer:  comp,
		opts:      opts.withDefaults(),
	}
}

// Plan validates req and produces an itinerary. The only error it returns is
// a *trip.ValidationError; every failure after validation yields the
// fallback itinerary instead.
func (p *Planner) Plan(ctx context.Context, req trip.Request, meta RequestMeta) (Result, error) {
	prefs, err := trip.Validate(req)
	if err != nil {
		return Result{}, err
	}
	cls := trip.Classify(prefs)

	ctx, cancel := context.WithTimeout(ctx, p.opts.OverallTimeout)
	defer cancel()

	start := time.Now()
	it, cat, retried, err := p.generate(ctx, prefs, cls)

	res := Result{Retried: retried, Source: SourceGenerated}
	if err != nil {
		res.Source = SourceFallback
		res.FallbackReason = reasonFor(err)
		it = fallback.Build(prefs.StopCount, cls.IsMultiDay, cls.DayCount)
		if errors.Is(err, context.DeadlineExceeded) {
			it.Note = TimeoutNote
			res.Note = TimeoutNote
		}
		if cat != nil {
			it = itinerary.GroundOfferings(it, cat)
			if missing := missingFallbackVenues(cat); len(missing) > 0 {
				slog.Warn("fallback venues missing from catalog", "venue_ids", missing)
			}
		}
		slog.Warn("planner: using fallback itinerary",
			"reason", res.FallbackReason,
			"retried", retried,
			"error", err,
		)
	}

	it.ID = uuid.NewString()
	p.logStage(stagePersisting)
	it.PublicID = p.persist(ctx, it, res.Source, meta)
	res.Itinerary = it

	p.logStage(stageDone)
	slog.Info("itinerary planned",
		"id", it.ID,
		"source", res.Source,
		"stops", it.TotalStops,
		"multi_day", it.IsMultiDay,
		"retried", retried,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// generate runs the catalog read, the initial generation and at most one
// corrective retry. The returned catalog is nil if it could not be read.
func (p *Planner) generate(ctx context.Context, prefs trip.Preferences, cls trip.Classification) (itinerary.Itinerary, *catalog.Catalog, bool, error) {
	p.logStage(stageFetching)
	cat, err := runStage(ctx, p.catalog.Fetch)
	if err != nil {
		return itinerary.Itinerary{}, nil, false, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	p.logStage(stageBuilding)
	prompt := p.composer.Build(prefs, cls, cat.Venues())
	exp := itinerary.Expect(prefs.StopCount, cls)
	slog.Debug("planner: prompt built",
		"venues", cat.Len(),
		"input_tokens_est", prompt.InputTokens(),
		"max_tokens", prompt.MaxTokens,
	)

	draft, err := p.attempt(ctx, prompt, exp, cat)
	if err == nil {
		return itinerary.Finalize(draft, exp, cat), cat, false, nil
	}

	var refErr *itinerary.ReferentialError
	if !errors.As(err, &refErr) || ctx.Err() != nil {
		return itinerary.Itinerary{}, cat, false, err
	}

	p.logStage(stageRetrying)
	slog.Info("planner: retrying with corrective feedback", "invalid_ids", refErr.InvalidIDs)
	corrected := composer.Correction(prompt, refErr.InvalidIDs, cat.IDs(), safeVenueIDs(cat))
	draft, err = p.attempt(ctx, corrected, exp, cat)
	if err != nil {
		return itinerary.Itinerary{}, cat, true, fmt.Errorf("corrective retry: %w", err)
	}
	return itinerary.Finalize(draft, exp, cat), cat, true, nil
}

// attempt makes one generation call under its own deadline and verifies the
// response.
func (p *Planner) attempt(ctx context.Context, prompt composer.Prompt, exp itinerary.Expectation, cat *catalog.Catalog) (itinerary.Draft, error) {
	p.logStage(stageGenerating)
	callCtx, cancel := context.WithTimeout(ctx, p.opts.GenerationTimeout)
	defer cancel()

	raw, err := runStage(callCtx, func(c context.Context) (string, error) {
		return p.generator.Complete(c, proxy.CompletionRequest{
			System:    prompt.System,
			User:      prompt.User,
			MaxTokens: prompt.MaxTokens,
		})
	})
	if err != nil {
		return itinerary.Draft{}, &GenerationError{Err: err}
	}

	p.logStage(stageVerifying)
	return itinerary.Verify(raw, exp, cat)
}

// safeVenueIDs returns the fallback venues present in cat, in fallback order.
func safeVenueIDs(cat *catalog.Catalog) []string {
	var ids []string
	for _, id := range fallback.VenueIDs() {
		if cat.Has(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func missingFallbackVenues(cat *catalog.Catalog) []string {
	if cat == nil {
		return nil
	}
	var missing []string
	for _, id := range fallback.VenueIDs() {
		if !cat.Has(id) {
			missing = append(missing, id)
		}
	}
	return missing
}
