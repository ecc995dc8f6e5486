package itinerary

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/vinroute/internal/catalog"
	"github.com/kalambet/vinroute/internal/trip"
)

const (
	MinRationaleLen = 10
	minTrailNameLen = 3
	minSummaryLen   = 10
)

// Expectation is what a response must look like for one request.
type Expectation struct {
	StopCount    int
	IsMultiDay   bool
	PlannedDays  int
	PerDayTarget int
}

// Expect derives the response expectation from a classified request.
func Expect(stopCount int, c trip.Classification) Expectation {
	return Expectation{
		StopCount:    stopCount,
		IsMultiDay:   c.IsMultiDay,
		PlannedDays:  c.PlannedDays(),
		PerDayTarget: c.PerDayTarget,
	}
}

// ParseError means the response was not well-formed JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parsing itinerary response: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError means the response decoded but broke field constraints.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "itinerary response violates schema: " + strings.Join(e.Problems, "; ")
}

// ReferentialError lists venue ids the response used that are not in the
// request's catalog. The list drives the corrective retry.
type ReferentialError struct {
	InvalidIDs []string
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("itinerary response references unknown venues: %s", strings.Join(e.InvalidIDs, ", "))
}

// IsRetryable reports whether a verification failure is worth one corrective
// retry. Only referential failures qualify.
func IsRetryable(err error) bool {
	var re *ReferentialError
	return errors.As(err, &re)
}

// Verify parses raw and runs the schema and referential checks in order.
func Verify(raw string, exp Expectation, cat *catalog.Catalog) (Draft, error) {
	d, err := Parse(raw)
	if err != nil {
		return Draft{}, err
	}
	if err := CheckSchema(d, exp); err != nil {
		return Draft{}, err
	}
	if err := CheckReferences(d, cat); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Parse decodes the service output. Markdown code fences and any prose around
// the outermost JSON object are tolerated.
func Parse(raw string) (Draft, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return Draft{}, &ParseError{Err: errors.New("no JSON object in response")}
	}
	var d Draft
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return Draft{}, &ParseError{Err: err}
	}
	return d, nil
}

func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// CheckSchema enforces required fields, string lengths, stop-count bounds and
// contiguous ordering.
func CheckSchema(d Draft, exp Expectation) error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if utf8.RuneCountInString(strings.TrimSpace(d.TrailName)) < minTrailNameLen {
		addf("trailName must be at least %d characters", minTrailNameLen)
	}
	if utf8.RuneCountInString(strings.TrimSpace(d.Summary)) < minSummaryLen {
		addf("summary must be at least %d characters", minSummaryLen)
	}

	if !exp.IsMultiDay {
		if len(d.Wineries) == 0 {
			addf("wineries is required for a single-day trip")
		} else if len(d.Wineries) != exp.StopCount {
			addf("wineries has %d stops, want %d", len(d.Wineries), exp.StopCount)
		}
		problems = append(problems, checkStops("wineries", d.Wineries)...)
	} else {
		problems = append(problems, checkDays(d.DailyItineraries, exp)...)
	}

	if len(problems) > 0 {
		return &SchemaError{Problems: problems}
	}
	return nil
}

func checkDays(days []Day, exp Expectation) []string {
	var problems []string
	if len(days) == 0 {
		return []string{"dailyItineraries is required for a multi-day trip"}
	}
	if len(days) != exp.PlannedDays {
		problems = append(problems, fmt.Sprintf("dailyItineraries has %d days, want %d", len(days), exp.PlannedDays))
	}

	maxPerDay := exp.PerDayTarget + 1
	total := 0
	for i, day := range days {
		label := fmt.Sprintf("dailyItineraries[%d]", i)
		if day.Day != i+1 {
			problems = append(problems, fmt.Sprintf("%s.day is %d, want %d", label, day.Day, i+1))
		}
		if strings.TrimSpace(day.Theme) == "" {
			problems = append(problems, label+".theme is required")
		}
		if n := len(day.Stops); n == 0 || n > maxPerDay {
			problems = append(problems, fmt.Sprintf("%s has %d stops, want 1..%d", label, n, maxPerDay))
		}
		total += len(day.Stops)
		problems = append(problems, checkStops(label+".stops", day.Stops)...)
	}
	if total != exp.StopCount {
		problems = append(problems, fmt.Sprintf("dailyItineraries has %d stops in total, want %d", total, exp.StopCount))
	}
	return problems
}

func checkStops(label string, stops []Stop) []string {
	var problems []string
	for i, s := range stops {
		if strings.TrimSpace(s.VenueID) == "" {
			problems = append(problems, fmt.Sprintf("%s[%d].venueId is required", label, i))
		}
		if s.Order != i+1 {
			problems = append(problems, fmt.Sprintf("%s[%d].order is %d, want %d", label, i, s.Order, i+1))
		}
		if utf8.RuneCountInString(strings.TrimSpace(s.Rationale)) < MinRationaleLen {
			problems = append(problems, fmt.Sprintf("%s[%d].rationale must be at least %d characters", label, i, MinRationaleLen))
		}
		if strings.TrimSpace(s.RecommendedOffering) == "" {
			problems = append(problems, fmt.Sprintf("%s[%d].recommendedOffering is required", label, i))
		}
	}
	return problems
}

// CheckReferences verifies every referenced venue id against the catalog and
// reports each unknown id once, in first-seen order.
func CheckReferences(d Draft, cat *catalog.Catalog) error {
	seen := make(map[string]bool)
	var invalid []string
	for _, id := range d.venueIDs() {
		if cat.Has(id) || seen[id] {
			continue
		}
		seen[id] = true
		invalid = append(invalid, id)
	}
	if len(invalid) > 0 {
		return &ReferentialError{InvalidIDs: invalid}
	}
	return nil
}

// Finalize turns a verified draft into an Itinerary. It recomputes
// totalStops, drops the shape the request did not ask for, fills venue names
// from the catalog, and replaces a recommended offering that does not match
// any of the venue's declared offerings with the venue's first one.
func Finalize(d Draft, exp Expectation, cat *catalog.Catalog) Itinerary {
	it := Itinerary{
		TrailName:       strings.TrimSpace(d.TrailName),
		Summary:         strings.TrimSpace(d.Summary),
		IsMultiDay:      exp.IsMultiDay,
		PackingList:     d.PackingList,
		BestTimeToVisit: strings.TrimSpace(d.BestTimeToVisit),
	}
	if exp.IsMultiDay {
		it.DailyItineraries = make([]Day, len(d.DailyItineraries))
		for i, day := range d.DailyItineraries {
			day.Stops = finalizeStops(day.Stops, cat)
			it.DailyItineraries[i] = day
			it.TotalStops += len(day.Stops)
		}
	} else {
		it.Wineries = finalizeStops(d.Wineries, cat)
		it.TotalStops = len(it.Wineries)
	}
	return it
}

func finalizeStops(stops []Stop, cat *catalog.Catalog) []Stop {
	out := make([]Stop, len(stops))
	for i, s := range stops {
		if v, ok := cat.Get(s.VenueID); ok {
			s.VenueName = v.Name
			s.RecommendedOffering = groundOffering(v, s.RecommendedOffering)
		}
		out[i] = s
	}
	return out
}

// groundOffering returns the declared offering that offered refers to, or the
// venue's first offering when it refers to none.
func groundOffering(v catalog.Venue, offered string) string {
	if len(v.Offerings) == 0 {
		return offered
	}
	if name, ok := v.MatchOffering(offered); ok {
		return name
	}
	return v.Offerings[0].Name
}

// GroundOfferings rewrites each stop's recommendedOffering to a declared
// offering of its venue. Stops whose venue is not in cat keep their text.
func GroundOfferings(it Itinerary, cat *catalog.Catalog) Itinerary {
	ground := func(stops []Stop) []Stop {
		if stops == nil {
			return nil
		}
		out := make([]Stop, len(stops))
		for i, s := range stops {
			if v, ok := cat.Get(s.VenueID); ok {
				s.RecommendedOffering = groundOffering(v, s.RecommendedOffering)
			}
			out[i] = s
		}
		return out
	}
	it.Wineries = ground(it.Wineries)
	if it.DailyItineraries != nil {
		days := make([]Day, len(it.DailyItineraries))
		for i, d := range it.DailyItineraries {
			d.Stops = ground(d.Stops)
			days[i] = d
		}
		it.DailyItineraries = days
	}
	return it
}
