package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/vinroute/internal/catalog"
	"github.com/kalambet/vinroute/internal/itinerary"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// printItinerary renders an itinerary for the terminal. Status notes go to
// stderr via the helpers above; the itinerary itself goes to w.
func printItinerary(w io.Writer, it itinerary.Itinerary) {
	fmt.Fprintf(w, "%s\n", colorize(colorBold, it.TrailName))
	if it.Summary != "" {
		fmt.Fprintf(w, "%s\n", it.Summary)
	}
	if it.Note != "" {
		fmt.Fprintf(w, "%s\n", colorize(colorYellow, it.Note))
	}

	if it.IsMultiDay {
		for _, d := range it.DailyItineraries {
			fmt.Fprintf(w, "\n%s\n", colorize(colorCyan, fmt.Sprintf("Day %d: %s", d.Day, d.Theme)))
			printStops(w, d.Stops)
			if r := d.Recommendations; r != nil {
				if r.Lunch != "" {
					fmt.Fprintf(w, "    Lunch: %s\n", r.Lunch)
				}
				if r.Dinner != "" {
					fmt.Fprintf(w, "    Dinner: %s\n", r.Dinner)
				}
				if r.Lodging != "" {
					fmt.Fprintf(w, "    Lodging: %s\n", r.Lodging)
				}
			}
		}
	} else {
		fmt.Fprintln(w)
		printStops(w, it.Wineries)
	}

	if len(it.PackingList) > 0 {
		fmt.Fprintf(w, "\nPack: %s\n", strings.Join(it.PackingList, ", "))
	}
	if it.BestTimeToVisit != "" {
		fmt.Fprintf(w, "Best time to visit: %s\n", it.BestTimeToVisit)
	}
	if it.PublicID != "" {
		fmt.Fprintf(w, "\nShare id: %s\n", it.PublicID)
	}
}

func printStops(w io.Writer, stops []itinerary.Stop) {
	for _, s := range stops {
		name := s.VenueName
		if name == "" {
			name = s.VenueID
		}
		fmt.Fprintf(w, "  %d. %s  %s\n", s.Order, colorize(colorBold, name), s.SuggestedArrivalTime)
		if s.RecommendedOffering != "" {
			fmt.Fprintf(w, "     Try: %s\n", s.RecommendedOffering)
		}
		fmt.Fprintf(w, "     %s\n", s.Rationale)
	}
}

func printVenues(w io.Writer, venues []catalog.Venue) {
	for _, v := range venues {
		fmt.Fprintf(w, "%s  %s", colorize(colorCyan, v.ID), v.Name)
		if v.Region != "" {
			fmt.Fprintf(w, " (%s)", v.Region)
		}
		fmt.Fprintln(w)
		if len(v.Tags) > 0 {
			fmt.Fprintf(w, "    tags: %s\n", strings.Join(v.Tags, ", "))
		}
		if len(v.WineStyles) > 0 {
			fmt.Fprintf(w, "    styles: %s\n", strings.Join(v.WineStyles, ", "))
		}
	}
}
