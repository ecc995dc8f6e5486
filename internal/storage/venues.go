package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/vinroute/internal/catalog"
)

const venueColumns = `id, name, region, description, latitude, longitude, tags, wine_styles, offerings, scenic, food, pet_friendly, accessible`

// ListVenues returns every venue ordered by name.
func (s *Store) ListVenues(ctx context.Context) ([]catalog.Venue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+venueColumns+` FROM venues ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var venues []catalog.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}

// GetVenue returns a single venue by id.
func (s *Store) GetVenue(ctx context.Context, id string) (catalog.Venue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+venueColumns+` FROM venues WHERE id = ?`, id)
	if err != nil {
		return catalog.Venue{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return catalog.Venue{}, err
		}
		return catalog.Venue{}, ErrNotFound
	}
	return scanVenue(rows)
}

// CountVenues returns the number of rows in the venue catalog.
func (s *Store) CountVenues(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM venues`).Scan(&n)
	return n, err
}

// UpsertVenue inserts a venue or replaces the existing row with the same id.
func (s *Store) UpsertVenue(ctx context.Context, v catalog.Venue) error {
	if v.ID == "" || v.Name == "" {
		return fmt.Errorf("venue id and name are required")
	}
	tags, err := marshalList(v.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}
	styles, err := marshalList(v.WineStyles)
	if err != nil {
		return fmt.Errorf("marshaling wine styles: %w", err)
	}
	offerings, err := marshalList(v.Offerings)
	if err != nil {
		return fmt.Errorf("marshaling offerings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO venues (`+venueColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			region = excluded.region,
			description = excluded.description,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			tags = excluded.tags,
			wine_styles = excluded.wine_styles,
			offerings = excluded.offerings,
			scenic = excluded.scenic,
			food = excluded.food,
			pet_friendly = excluded.pet_friendly,
			accessible = excluded.accessible,
			updated_at = excluded.updated_at`,
		v.ID, v.Name, v.Region, v.Description, v.Latitude, v.Longitude, tags, styles, offerings,
		v.Features.Scenic, v.Features.Food, v.Features.PetFriendly, v.Features.Accessible,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVenue(r rowScanner) (catalog.Venue, error) {
	var v catalog.Venue
	var tags, styles, offerings string
	if err := r.Scan(&v.ID, &v.Name, &v.Region, &v.Description, &v.Latitude, &v.Longitude,
		&tags, &styles, &offerings,
		&v.Features.Scenic, &v.Features.Food, &v.Features.PetFriendly, &v.Features.Accessible,
	); err != nil {
		return catalog.Venue{}, err
	}
	if err := json.Unmarshal([]byte(tags), &v.Tags); err != nil {
		return catalog.Venue{}, fmt.Errorf("parsing tags for venue %s: %w", v.ID, err)
	}
	if err := json.Unmarshal([]byte(styles), &v.WineStyles); err != nil {
		return catalog.Venue{}, fmt.Errorf("parsing wine styles for venue %s: %w", v.ID, err)
	}
	if err := json.Unmarshal([]byte(offerings), &v.Offerings); err != nil {
		return catalog.Venue{}, fmt.Errorf("parsing offerings for venue %s: %w", v.ID, err)
	}
	return v, nil
}

func marshalList[T any](items []T) (string, error) {
	if items == nil {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
