package trip

import "time"

// Classification describes the shape of the itinerary a request needs.
type Classification struct {
	IsMultiDay   bool
	DayCount     int
	PerDayTarget int
	// StopsPerDay holds the stop allotment for each planned day. Single-day
	// trips have exactly one entry.
	StopsPerDay []int
}

// PlannedDays is the number of days that actually receive stops. It is
// smaller than DayCount when the trip spans more days than it has stops.
func (c Classification) PlannedDays() int {
	return len(c.StopsPerDay)
}

// Classify derives the day count from the visit dates. Only a request with
// both bounds can be multi-day; the span is inclusive and never below one.
func Classify(p Preferences) Classification {
	days := 1
	if p.VisitDateStart != nil && p.VisitDateEnd != nil {
		days = SpanDays(*p.VisitDateStart, *p.VisitDateEnd)
	}
	return Classification{
		IsMultiDay:   days > 1,
		DayCount:     days,
		PerDayTarget: ceilDiv(p.StopCount, days),
		StopsPerDay:  Distribute(p.StopCount, days),
	}
}

// Distribute spreads stopCount stops over dayCount days. Earlier days take
// the extra stops, so no day exceeds ceil(stopCount/dayCount) and the last
// day absorbs the shortfall. Days left with no stops are dropped.
func Distribute(stopCount, dayCount int) []int {
	if dayCount < 1 {
		dayCount = 1
	}
	if stopCount < 1 {
		return nil
	}
	if dayCount > stopCount {
		dayCount = stopCount
	}
	base, extra := stopCount/dayCount, stopCount%dayCount
	out := make([]int, dayCount)
	for i := range out {
		out[i] = base
		if i < extra {
			out[i]++
		}
	}
	return out
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// SpanDays returns the inclusive number of calendar days from start to end,
// never less than one.
func SpanDays(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	days := int(e.Sub(s).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}
