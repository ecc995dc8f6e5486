package itinerary

import (
	"encoding/json"
	"strings"
)

// Stop is one venue visit.
type Stop struct {
	VenueID              string `json:"venueId"`
	VenueName            string `json:"venueName,omitempty"`
	Order                int    `json:"order"`
	Rationale            string `json:"rationale"`
	SuggestedArrivalTime string `json:"suggestedArrivalTime"`
	RecommendedOffering  string `json:"recommendedOffering"`
}

// Recommendations are free-text meal and lodging suggestions for one day of
// a multi-day trip. They are never checked against the catalog.
type Recommendations struct {
	Lunch   string `json:"lunch,omitempty"`
	Dinner  string `json:"dinner,omitempty"`
	Lodging string `json:"lodging,omitempty"`
}

// Day is one day of a multi-day itinerary.
type Day struct {
	Day             int              `json:"day"`
	Theme           string           `json:"theme"`
	Stops           []Stop           `json:"stops"`
	Recommendations *Recommendations `json:"recommendations,omitempty"`
}

// Itinerary is the result returned to callers. Exactly one of Wineries and
// DailyItineraries is populated, selected by IsMultiDay.
type Itinerary struct {
	ID               string   `json:"id"`
	PublicID         string   `json:"publicId,omitempty"`
	TrailName        string   `json:"trailName"`
	Summary          string   `json:"summary"`
	TotalStops       int      `json:"totalStops"`
	IsMultiDay       bool     `json:"isMultiDay"`
	Wineries         []Stop   `json:"wineries,omitempty"`
	DailyItineraries []Day    `json:"dailyItineraries,omitempty"`
	PackingList      TextList `json:"packingList,omitempty"`
	BestTimeToVisit  string   `json:"bestTimeToVisit,omitempty"`
	Note             string   `json:"note,omitempty"`
}

// AllStops returns every stop in visiting order, flattening days.
func (it Itinerary) AllStops() []Stop {
	if !it.IsMultiDay {
		return it.Wineries
	}
	var out []Stop
	for _, d := range it.DailyItineraries {
		out = append(out, d.Stops...)
	}
	return out
}

// Draft is the itinerary as produced by the generation service, before it
// has been verified.
type Draft struct {
	TrailName        string   `json:"trailName"`
	Summary          string   `json:"summary"`
	TotalStops       int      `json:"totalStops"`
	Wineries         []Stop   `json:"wineries"`
	DailyItineraries []Day    `json:"dailyItineraries"`
	PackingList      TextList `json:"packingList"`
	BestTimeToVisit  string   `json:"bestTimeToVisit"`
}

// venueIDs returns every referenced venue id across both shapes.
func (d Draft) venueIDs() []string {
	var ids []string
	for _, s := range d.Wineries {
		ids = append(ids, s.VenueID)
	}
	for _, day := range d.DailyItineraries {
		for _, s := range day.Stops {
			ids = append(ids, s.VenueID)
		}
	}
	return ids
}

// TextList decodes either a JSON array of strings or a single string with one
// item per line.
type TextList []string

func (l *TextList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if line != "" {
			out = append(out, line)
		}
	}
	*l = out
	return nil
}
