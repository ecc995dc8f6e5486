// Package fallback builds the curated itinerary served whenever a generated
// one cannot be trusted. Build has no dependencies and cannot fail.
package fallback

import (
	"fmt"

	"github.com/kalambet/vinroute/internal/itinerary"
	"github.com/kalambet/vinroute/internal/trip"
)

type pick struct {
	venueID   string
	venueName string
	offering  string
	rationale string
}

// The venues below are seeded by storage migration 002 with exactly these
// ids and offerings; migration 003 keeps them from being deleted. Keep the
// lists in sync.
var picks = []pick{
	{
		venueID:   "v-ridgeline-cellars",
		venueName: "Ridgeline Cellars",
		offering:  "Estate Zinfandel",
		rationale: "A welcoming first stop with a shaded deck and a zinfandel grown a few rows from where you sit.",
	},
	{
		venueID:   "v-copper-creek",
		venueName: "Copper Creek Vineyards",
		offering:  "Old Vine Barbera",
		rationale: "Family-run tasting room whose old vine barbera is a local benchmark; the staff love walking first-timers through it.",
	},
	{
		venueID:   "v-oak-hollow-estate",
		venueName: "Oak Hollow Estate",
		offering:  "Reserve Cabernet",
		rationale: "Sweeping valley views and a structured reserve cabernet make this the trail's showpiece.",
	},
	{
		venueID:   "v-silver-fern",
		venueName: "Silver Fern Sparkling House",
		offering:  "Brut Rosé",
		rationale: "A bright change of pace: traditional-method sparkling wines poured on a garden patio.",
	},
	{
		venueID:   "v-meadowlark",
		venueName: "Meadowlark Winery",
		offering:  "Sunset Terrace Flight",
		rationale: "West-facing terrace built for a late-afternoon flight as the sun drops behind the ridge.",
	},
}

var arrivalTimes = []string{"10:30 AM", "12:15 PM", "2:00 PM", "3:30 PM", "5:00 PM"}

var dayThemes = []string{
	"Hillside reds and shaded decks",
	"Bubbles, gardens and valley views",
	"Slow sips and sunset terraces",
	"Old vines and long lunches",
	"Library pours and a lazy finish",
}

var dayRecommendations = []itinerary.Recommendations{
	{
		Lunch:   "Picnic board from the tasting room deli; most stops allow outside food on the lawn.",
		Dinner:  "Farm-to-table dinner on Main Street in the old town; reserve ahead on weekends.",
		Lodging: "Historic inn within walking distance of the old town tasting rooms.",
	},
	{
		Lunch:   "Wood-fired pizza near the sparkling house; order ahead during harvest.",
		Dinner:  "Casual bistro with a deep local wine list and a cellar-door corkage waiver.",
		Lodging: "Vineyard cottage stay with breakfast made from the estate garden.",
	},
	{
		Lunch:   "Deli sandwiches from the general store, eaten at the creekside picnic tables.",
		Dinner:  "Wine-country steakhouse; ask for the winemaker's table.",
		Lodging: "Bed and breakfast on the ridge road, ten minutes from the first stop.",
	},
}

// VenueIDs returns the fixed fallback venue ids in preference order.
func VenueIDs() []string {
	ids := make([]string, len(picks))
	for i, p := range picks {
		ids[i] = p.venueID
	}
	return ids
}

// Build returns the curated itinerary for the given shape. stopCount is
// clamped to the supported range; a multi-day trip is spread over dayCount
// days with trip.Distribute. The result carries no id.
func Build(stopCount int, isMultiDay bool, dayCount int) itinerary.Itinerary {
	stopCount = max(trip.MinStops, min(stopCount, trip.MaxStops, len(picks)))
	chosen := picks[:stopCount]

	if !isMultiDay || dayCount <= 1 {
		stops := make([]itinerary.Stop, len(chosen))
		for i, p := range chosen {
			stops[i] = p.stop(i)
		}
		return itinerary.Itinerary{
			TrailName:       "Foothill Classics Trail",
			Summary:         fmt.Sprintf("A hand-picked loop of %d favorite foothill wineries, paced for an unhurried day of tasting.", stopCount),
			TotalStops:      stopCount,
			Wineries:        stops,
			PackingList:     packingList(false),
			BestTimeToVisit: bestTime,
		}
	}

	shares := trip.Distribute(stopCount, dayCount)
	days := make([]itinerary.Day, len(shares))
	next := 0
	for d, share := range shares {
		stops := make([]itinerary.Stop, share)
		for i := range stops {
			stops[i] = chosen[next].stop(i)
			next++
		}
		rec := dayRecommendations[d%len(dayRecommendations)]
		days[d] = itinerary.Day{
			Day:             d + 1,
			Theme:           dayThemes[d%len(dayThemes)],
			Stops:           stops,
			Recommendations: &rec,
		}
	}
	return itinerary.Itinerary{
		TrailName:        "Foothill Classics Getaway",
		Summary:          fmt.Sprintf("%d favorite foothill wineries spread over %d relaxed days, with meals and a place to stay each night.", stopCount, len(days)),
		TotalStops:       stopCount,
		IsMultiDay:       true,
		DailyItineraries: days,
		PackingList:      packingList(true),
		BestTimeToVisit:  bestTime,
	}
}

const bestTime = "Late September through October for harvest activity; spring weekends are quieter and greener."

func packingList(multiDay bool) itinerary.TextList {
	list := itinerary.TextList{"Comfortable walking shoes", "Sunscreen and a hat", "Refillable water bottle", "Designated driver or booked ride"}
	if multiDay {
		list = append(list, "Wine carrier for bottles bought along the way", "Layers for cool evenings")
	}
	return list
}

func (p pick) stop(index int) itinerary.Stop {
	return itinerary.Stop{
		VenueID:              p.venueID,
		VenueName:            p.venueName,
		Order:                index + 1,
		Rationale:            p.rationale,
		SuggestedArrivalTime: arrivalTimes[index%len(arrivalTimes)],
		RecommendedOffering:  p.offering,
	}
}
