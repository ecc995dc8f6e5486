package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	publicIDLen      = 10
	publicIDAttempts = 3
)

// SaveItinerary writes rec and returns the short public id generated for it.
// rec.PublicID is ignored; a fresh one is always generated.
func (s *Store) SaveItinerary(ctx context.Context, rec ItineraryRecord) (string, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var lastErr error
	for range publicIDAttempts {
		publicID := newPublicID()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO itineraries (id, public_id, created_at, source, trail_name, total_stops, is_multi_day, payload, client_ip, user_agent)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, publicID, rec.CreatedAt.UTC().Format(time.RFC3339), rec.Source, rec.TrailName,
			rec.TotalStops, rec.IsMultiDay, rec.Payload, rec.ClientIP, rec.UserAgent,
		)
		if err == nil {
			return publicID, nil
		}
		if !isPublicIDCollision(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("generating unique public id: %w", lastErr)
}

// GetItineraryByPublicID returns the itinerary stored under a public id.
func (s *Store) GetItineraryByPublicID(ctx context.Context, publicID string) (ItineraryRecord, error) {
	var rec ItineraryRecord
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, created_at, source, trail_name, total_stops, is_multi_day, payload, client_ip, user_agent
		FROM itineraries WHERE public_id = ?`, publicID,
	).Scan(&rec.ID, &rec.PublicID, &createdAt, &rec.Source, &rec.TrailName, &rec.TotalStops, &rec.IsMultiDay, &rec.Payload, &rec.ClientIP, &rec.UserAgent)
	if err == sql.ErrNoRows {
		return ItineraryRecord{}, ErrNotFound
	}
	if err != nil {
		return ItineraryRecord{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return ItineraryRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.CreatedAt = t
	return rec, nil
}

// CountItineraries returns the number of stored itineraries per source.
func (s *Store) CountItineraries(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM itineraries GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

func newPublicID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:publicIDLen]
}

func isPublicIDCollision(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "public_id")
}
