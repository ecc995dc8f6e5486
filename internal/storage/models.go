package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ItineraryRecord is a persisted itinerary plus the request metadata that
// produced it.
type ItineraryRecord struct {
	ID         string
	PublicID   string
	CreatedAt  time.Time
	Source     string // "generated" or "fallback"
	TrailName  string
	TotalStops int
	IsMultiDay bool
	Payload    string // itinerary JSON
	ClientIP   string
	UserAgent  string
}
