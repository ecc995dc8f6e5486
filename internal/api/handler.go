package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/kalambet/vinroute/internal/catalog"
	"github.com/kalambet/vinroute/internal/planner"
	"github.com/kalambet/vinroute/internal/storage"
	"github.com/kalambet/vinroute/internal/trip"
)

const maxRequestBodySize = 64 << 10 // 64KB

// Planner produces an itinerary for one trip request.
type Planner interface {
	Plan(ctx context.Context, req trip.Request, meta planner.RequestMeta) (planner.Result, error)
}

// Store is the storage surface used by the HTTP and MCP layers.
type Store interface {
	ListVenues(ctx context.Context) ([]catalog.Venue, error)
	UpsertVenue(ctx context.Context, v catalog.Venue) error
	CountVenues(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	GetItineraryByPublicID(ctx context.Context, publicID string) (storage.ItineraryRecord, error)
}

// GenerationStatus reports whether the generation service has credentials.
type GenerationStatus interface {
	Configured() bool
}

type Deps struct {
	Planner    Planner
	Store      Store
	Generation GenerationStatus
	// AdminToken guards venue writes. Empty disables them.
	AdminToken  string
	CORSOrigins []string
	// RateLimitPerMinute caps itinerary requests per client IP. Zero or
	// negative disables the limit.
	RateLimitPerMinute int
}

// NewHandler returns the HTTP API: itinerary planning and retrieval, the
// venue directory, and the health endpoint.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Route("/api", func(r chi.Router) {
		r.With(rateLimit(newIPLimiter(deps.RateLimitPerMinute))).
			Post("/itineraries", handleCreateItinerary(deps))
		r.Get("/itineraries/{publicID}", handleGetItinerary(deps))

		r.Get("/venues", handleListVenues(deps))
		r.With(BearerAuth(deps.AdminToken)).Post("/venues", handleUpsertVenue(deps))
	})

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func validationError(w http.ResponseWriter, ve *trip.ValidationError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message": ve.Error(),
			"type":    "invalid_request_error",
			"fields":  ve.Fields,
		},
	})
}
