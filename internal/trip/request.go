package trip

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	MinStops = 3
	MaxStops = 5

	dateLayout = "2006-01-02"
)

// Request is the raw trip request as submitted by the caller. Nothing in it
// is trusted until Validate has accepted it.
type Request struct {
	Vibe            string          `json:"vibe"`
	WinePreferences []string        `json:"winePreferences"`
	GroupType       string          `json:"groupType"`
	StopCount       json.RawMessage `json:"stopCount"`
	OriginCity      string          `json:"originCity"`
	VisitDateStart  string          `json:"visitDateStart,omitempty"`
	VisitDateEnd    string          `json:"visitDateEnd,omitempty"`
	Occasion        string          `json:"occasion,omitempty"`
	SpecialRequests string          `json:"specialRequests,omitempty"`
	Dislikes        string          `json:"dislikes,omitempty"`
}

// Preferences is a validated trip request.
type Preferences struct {
	Vibe            string
	WinePreferences []string
	GroupType       string
	StopCount       int
	OriginCity      string
	VisitDateStart  *time.Time
	VisitDateEnd    *time.Time
	Occasion        string
	SpecialRequests string
	Dislikes        string
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned by Validate when the request is malformed.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid trip request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks the raw request and converts it to Preferences. All field
// problems are collected into a single *ValidationError.
func Validate(req Request) (Preferences, error) {
	verr := &ValidationError{}
	p := Preferences{
		Vibe:            strings.TrimSpace(req.Vibe),
		GroupType:       strings.TrimSpace(req.GroupType),
		OriginCity:      strings.TrimSpace(req.OriginCity),
		Occasion:        strings.TrimSpace(req.Occasion),
		SpecialRequests: strings.TrimSpace(req.SpecialRequests),
		Dislikes:        strings.TrimSpace(req.Dislikes),
	}

	if p.Vibe == "" {
		verr.add("vibe", "is required")
	}
	if p.GroupType == "" {
		verr.add("groupType", "is required")
	}
	if p.OriginCity == "" {
		verr.add("originCity", "is required")
	}

	for _, w := range req.WinePreferences {
		if w = strings.TrimSpace(w); w != "" {
			p.WinePreferences = append(p.WinePreferences, w)
		}
	}
	if len(p.WinePreferences) == 0 {
		verr.add("winePreferences", "must contain at least one preference")
	}

	n, err := parseStopCount(req.StopCount)
	switch {
	case err != nil:
		verr.add("stopCount", "%v", err)
	case n < MinStops || n > MaxStops:
		verr.add("stopCount", "must be between %d and %d, got %d", MinStops, MaxStops, n)
	default:
		p.StopCount = n
	}

	if req.VisitDateStart != "" {
		t, err := time.Parse(dateLayout, strings.TrimSpace(req.VisitDateStart))
		if err != nil {
			verr.add("visitDateStart", "must be a YYYY-MM-DD date")
		} else {
			p.VisitDateStart = &t
		}
	}
	if req.VisitDateEnd != "" {
		t, err := time.Parse(dateLayout, strings.TrimSpace(req.VisitDateEnd))
		if err != nil {
			verr.add("visitDateEnd", "must be a YYYY-MM-DD date")
		} else {
			p.VisitDateEnd = &t
		}
	}

	if len(verr.Fields) > 0 {
		return Preferences{}, verr
	}
	return p, nil
}

// parseStopCount accepts a JSON number or a numeric string.
func parseStopCount(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("is required")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		i, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("must be an integer, got %q", s)
		}
		return i, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, errors.New("must be an integer")
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("must be an integer, got %v", f)
	}
	return int(f), nil
}
