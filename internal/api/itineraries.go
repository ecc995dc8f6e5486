package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/vinroute/internal/itinerary"
	"github.com/kalambet/vinroute/internal/planner"
	"github.com/kalambet/vinroute/internal/storage"
	"github.com/kalambet/vinroute/internal/trip"
)

func handleCreateItinerary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req trip.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := deps.Planner.Plan(r.Context(), req, planner.RequestMeta{
			ClientIP:  clientIP(r),
			UserAgent: r.UserAgent(),
		})
		if err != nil {
			var ve *trip.ValidationError
			if errors.As(err, &ve) {
				validationError(w, ve)
				return
			}
			// Plan only returns validation errors; anything else is a bug.
			slog.Error("planner returned unexpected error", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "internal error")
			return
		}

		slog.Debug("itinerary served",
			"id", res.Itinerary.ID,
			"source", res.Source,
			"fallback_reason", res.FallbackReason,
		)
		writeJSON(w, http.StatusOK, res.Itinerary)
	}
}

func handleGetItinerary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		publicID := chi.URLParam(r, "publicID")
		rec, err := deps.Store.GetItineraryByPublicID(r.Context(), publicID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "itinerary not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load itinerary: %v", err)
			return
		}

		var it itinerary.Itinerary
		if err := json.Unmarshal([]byte(rec.Payload), &it); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "stored itinerary is corrupt: %v", err)
			return
		}
		it.PublicID = rec.PublicID
		writeJSON(w, http.StatusOK, it)
	}
}

// clientIP returns the first X-Forwarded-For hop if present, otherwise the
// host part of RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
