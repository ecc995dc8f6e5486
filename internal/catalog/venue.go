package catalog

import (
	"slices"
	"strings"
	"unicode"
)

// Offering is a named signature item a venue is known for.
type Offering struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Features are the boolean amenity flags carried by every venue.
type Features struct {
	Scenic      bool `json:"scenic"`
	Food        bool `json:"food"`
	PetFriendly bool `json:"petFriendly"`
	Accessible  bool `json:"accessible"`
}

// Venue is a read-only projection of one catalog row.
type Venue struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Region      string     `json:"region,omitempty"`
	Description string     `json:"description,omitempty"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Tags        []string   `json:"tags"`
	WineStyles  []string   `json:"wineStyles"`
	Offerings   []Offering `json:"offerings"`
	Features    Features   `json:"features"`
}

// MatchOffering resolves name to one of the venue's declared offerings and
// returns the declared name. Matching works on whole words, ignoring case and
// punctuation: name either contains every word of an offering in order
// ("the Reserve Cabernet flight") or is a run of consecutive words from one
// ("Cabernet"). Fragments such as "Zin" never match.
func (v Venue) MatchOffering(name string) (string, bool) {
	want := words(name)
	if len(want) == 0 {
		return "", false
	}
	for _, o := range v.Offerings {
		if containsRun(want, words(o.Name)) {
			return o.Name, true
		}
	}
	for _, o := range v.Offerings {
		if containsRun(words(o.Name), want) {
			return o.Name, true
		}
	}
	return "", false
}

// HasOffering reports whether name resolves to a declared offering.
func (v Venue) HasOffering(name string) bool {
	_, ok := v.MatchOffering(name)
	return ok
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsRun reports whether needle appears in hay as consecutive elements.
func containsRun(hay, needle []string) bool {
	if len(needle) == 0 {
		return false
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		if slices.Equal(hay[i:i+len(needle)], needle) {
			return true
		}
	}
	return false
}

// Catalog is the venue set fetched for a single request. It is the
// authoritative universe for reference checks within that request only.
type Catalog struct {
	venues []Venue
	byID   map[string]int
}

// New builds a Catalog, preserving the order of venues. Later duplicates of
// an id are ignored.
func New(venues []Venue) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(venues))}
	for _, v := range venues {
		if _, dup := c.byID[v.ID]; dup || v.ID == "" {
			continue
		}
		c.byID[v.ID] = len(c.venues)
		c.venues = append(c.venues, v)
	}
	return c
}

// Len returns the number of venues.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.venues)
}

// Venues returns the venues in fetch order.
func (c *Catalog) Venues() []Venue {
	if c == nil {
		return nil
	}
	return c.venues
}

// Has reports whether id is a member of the catalog.
func (c *Catalog) Has(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.byID[id]
	return ok
}

// Get returns the venue with the given id.
func (c *Catalog) Get(id string) (Venue, bool) {
	if c == nil {
		return Venue{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return Venue{}, false
	}
	return c.venues[i], true
}

// IDs returns every venue id in fetch order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, len(c.venues))
	for i, v := range c.venues {
		ids[i] = v.ID
	}
	return ids
}
