package composer

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/vinroute/internal/catalog"
	"github.com/kalambet/vinroute/internal/trip"
)

const defaultMaxOutputTokens = 2000

// Prompt is the instruction payload for one generation call.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

// SeasonProvider returns a short note about conditions on a visit date.
// StaticSeasons is the default; a live forecast source can be swapped in.
type SeasonProvider interface {
	Note(date time.Time) string
}

// Composer renders trip requests and the venue catalog into prompts for the
// generation service.
type Composer struct {
	MaxOutputTokens int
	Seasons         SeasonProvider
}

// New creates a Composer with the given output budget for single-day trips.
// Multi-day trips get twice the budget. If maxOutputTokens <= 0, the default
// (2000) is used.
func New(maxOutputTokens int) *Composer {
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}
	return &Composer{MaxOutputTokens: maxOutputTokens, Seasons: StaticSeasons{}}
}

const baseRules = `You are a wine-country trip planner. You build itineraries using ONLY the venues listed in the catalog you are given. Your output must be ONLY a single valid JSON object matching the requested shape. Do not include any other text, prose, or markdown.

Rules:
- Use venue ids exactly as written in the catalog. Never invent, shorten, or alter an id.
- For every stop, set recommendedOffering to one named signature offering from that venue's offering list.
- Give every stop a rationale of at least one full sentence explaining why it fits this group.
- Vary your selections; do not default to the first venues in the list.
- Number stops with order starting at 1 and increasing by 1.
- Respect the guest's dislikes and special requests when choosing venues.`

const multiDayRules = `
- Organize the trip into themed days. Keep each day geographically sensible so guests are not driving back and forth.
- Every day has a short theme and recommendations for lunch, dinner, and lodging.
- Restart stop order at 1 on each day.`

const singleDayShape = `Respond with this JSON shape:
{
  "trailName": string,
  "summary": string,
  "totalStops": number,
  "wineries": [
    {"venueId": string, "order": number, "rationale": string, "suggestedArrivalTime": string, "recommendedOffering": string}
  ],
  "packingList": [string],
  "bestTimeToVisit": string
}`

const multiDayShape = `Respond with this JSON shape:
{
  "trailName": string,
  "summary": string,
  "totalStops": number,
  "dailyItineraries": [
    {
      "day": number,
      "theme": string,
      "stops": [
        {"venueId": string, "order": number, "rationale": string, "suggestedArrivalTime": string, "recommendedOffering": string}
      ],
      "recommendations": {"lunch": string, "dinner": string, "lodging": string}
    }
  ],
  "packingList": [string],
  "bestTimeToVisit": string
}`

// Build renders the generation prompt for a validated request. Single-day and
// multi-day requests ask for different response shapes.
func (c *Composer) Build(p trip.Preferences, cls trip.Classification, venues []catalog.Venue) Prompt {
	var sys strings.Builder
	sys.WriteString(baseRules)
	if cls.IsMultiDay {
		sys.WriteString(multiDayRules)
	}

	var sb strings.Builder
	sb.WriteString("[Trip Request]\n")
	writeRequest(&sb, p)

	sb.WriteString("\n[Trip Length]\n")
	if cls.IsMultiDay {
		fmt.Fprintf(&sb, "%d-day trip. Plan exactly %d days with these stop counts per day: %s (%d stops total).\n",
			cls.DayCount, cls.PlannedDays(), joinInts(cls.StopsPerDay), p.StopCount)
	} else {
		fmt.Fprintf(&sb, "Single-day trip with exactly %d stops.\n", p.StopCount)
	}

	if p.VisitDateStart != nil && c.Seasons != nil {
		if note := c.Seasons.Note(*p.VisitDateStart); note != "" {
			fmt.Fprintf(&sb, "\n[Season]\n%s\n", note)
		}
	}

	sb.WriteString("\n[Venue Catalog]\n")
	for _, v := range venues {
		sb.WriteString(formatVenue(v))
	}

	sb.WriteString("\n")
	maxTokens := c.MaxOutputTokens
	if cls.IsMultiDay {
		sb.WriteString(multiDayShape)
		maxTokens *= 2
	} else {
		sb.WriteString(singleDayShape)
	}

	return Prompt{System: sys.String(), User: sb.String(), MaxTokens: maxTokens}
}

// Correction returns base with an explicit correction appended to the user
// instruction: the ids that were invalid, the only ids allowed, and a few
// safe ids to prefer when unsure.
func Correction(base Prompt, invalidIDs, validIDs, safeIDs []string) Prompt {
	var sb strings.Builder
	sb.WriteString(base.User)
	sb.WriteString("\n\n[Correction]\n")
	fmt.Fprintf(&sb, "Your previous answer used venue ids that do not exist: %s.\n", strings.Join(invalidIDs, ", "))
	fmt.Fprintf(&sb, "The ONLY valid venue ids are: %s.\n", strings.Join(validIDs, ", "))
	if len(safeIDs) > 0 {
		fmt.Fprintf(&sb, "If you are unsure, prefer these venues: %s.\n", strings.Join(safeIDs, ", "))
	}
	sb.WriteString("Return the complete itinerary again as JSON, using only valid ids.")

	out := base
	out.User = sb.String()
	return out
}

func writeRequest(sb *strings.Builder, p trip.Preferences) {
	fmt.Fprintf(sb, "Vibe: %s\n", p.Vibe)
	fmt.Fprintf(sb, "Wine preferences: %s\n", strings.Join(p.WinePreferences, ", "))
	fmt.Fprintf(sb, "Group: %s\n", p.GroupType)
	fmt.Fprintf(sb, "Starting from: %s\n", p.OriginCity)
	if p.VisitDateStart != nil {
		fmt.Fprintf(sb, "Visit starts: %s\n", p.VisitDateStart.Format("Monday, January 2, 2006"))
	}
	if p.VisitDateEnd != nil {
		fmt.Fprintf(sb, "Visit ends: %s\n", p.VisitDateEnd.Format("Monday, January 2, 2006"))
	}
	if p.Occasion != "" {
		fmt.Fprintf(sb, "Occasion: %s\n", p.Occasion)
	}
	if p.SpecialRequests != "" {
		fmt.Fprintf(sb, "Special requests: %s\n", p.SpecialRequests)
	}
	if p.Dislikes != "" {
		fmt.Fprintf(sb, "Avoid: %s\n", p.Dislikes)
	}
}

func formatVenue(v catalog.Venue) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- id: %s | %s", v.ID, v.Name)
	if v.Region != "" {
		fmt.Fprintf(&sb, " (%s)", v.Region)
	}
	fmt.Fprintf(&sb, " @ %.4f,%.4f\n", v.Latitude, v.Longitude)
	if len(v.Tags) > 0 {
		fmt.Fprintf(&sb, "  tags: %s\n", strings.Join(v.Tags, ", "))
	}
	if len(v.WineStyles) > 0 {
		fmt.Fprintf(&sb, "  styles: %s\n", strings.Join(v.WineStyles, ", "))
	}
	if f := formatFeatures(v.Features); f != "" {
		fmt.Fprintf(&sb, "  features: %s\n", f)
	}
	for _, o := range v.Offerings {
		fmt.Fprintf(&sb, "  offering: %s - %s\n", o.Name, o.Description)
	}
	return sb.String()
}

func formatFeatures(f catalog.Features) string {
	var parts []string
	if f.Scenic {
		parts = append(parts, "scenic")
	}
	if f.Food {
		parts = append(parts, "food")
	}
	if f.PetFriendly {
		parts = append(parts, "pet-friendly")
	}
	if f.Accessible {
		parts = append(parts, "accessible")
	}
	return strings.Join(parts, ", ")
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, "/")
}

// EstimateTokens approximates the token count of text at four bytes per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// InputTokens estimates how many tokens the prompt costs before generation.
func (p Prompt) InputTokens() int {
	return EstimateTokens(p.System) + EstimateTokens(p.User)
}
