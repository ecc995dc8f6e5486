package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kalambet/vinroute/internal/catalog"
)

func handleListVenues(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		venues, err := deps.Store.ListVenues(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list venues: %v", err)
			return
		}
		venues = filterByTag(venues, r.URL.Query().Get("tag"))
		if venues == nil {
			venues = []catalog.Venue{}
		}
		writeJSON(w, http.StatusOK, venues)
	}
}

func handleUpsertVenue(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var v catalog.Venue
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		v.ID = strings.TrimSpace(v.ID)
		v.Name = strings.TrimSpace(v.Name)
		if v.ID == "" || v.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "id and name are required")
			return
		}
		if len(v.Offerings) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one offering is required")
			return
		}

		if err := deps.Store.UpsertVenue(r.Context(), v); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save venue: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// filterByTag keeps venues carrying tag (case-insensitive). An empty tag
// keeps everything.
func filterByTag(venues []catalog.Venue, tag string) []catalog.Venue {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return venues
	}
	var out []catalog.Venue
	for _, v := range venues {
		for _, t := range v.Tags {
			if strings.EqualFold(t, tag) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}
