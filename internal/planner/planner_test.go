package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/vinroute/internal/catalog"
	"github.com/kalambet/vinroute/internal/composer"
	"github.com/kalambet/vinroute/internal/fallback"
	"github.com/kalambet/vinroute/internal/itinerary"
	"github.com/kalambet/vinroute/internal/proxy"
	"github.com/kalambet/vinroute/internal/storage"
	"github.com/kalambet/vinroute/internal/trip"
)

// --- mocks ---

type mockCatalog struct {
	cat   *catalog.Catalog
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (m *mockCatalog) Fetch(ctx context.Context) (*catalog.Catalog, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.cat, m.err
}

type mockResponse struct {
	text  string
	err   error
	delay time.Duration
}

// mockGenerator replays responses in order; the last one repeats. Delays
// ignore ctx so tests can prove the planner does not wait on a stuck call.
type mockGenerator struct {
	responses []mockResponse
	calls     atomic.Int32
	release   chan struct{}

	mu      sync.Mutex
	prompts []proxy.CompletionRequest
}

func newMockGenerator(t *testing.T, responses ...mockResponse) *mockGenerator {
	m := &mockGenerator{responses: responses, release: make(chan struct{})}
	t.Cleanup(func() { close(m.release) })
	return m
}

func (m *mockGenerator) Complete(ctx context.Context, req proxy.CompletionRequest) (string, error) {
	n := int(m.calls.Add(1)) - 1
	m.mu.Lock()
	m.prompts = append(m.prompts, req)
	m.mu.Unlock()

	if n >= len(m.responses) {
		n = len(m.responses) - 1
	}
	r := m.responses[n]
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-m.release:
		}
	}
	return r.text, r.err
}

func (m *mockGenerator) prompt(i int) proxy.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts[i]
}

type mockPersister struct {
	publicID string
	err      error
	delay    time.Duration

	mu      sync.Mutex
	records []storage.ItineraryRecord
}

func (m *mockPersister) SaveItinerary(ctx context.Context, rec storage.ItineraryRecord) (string, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.publicID, nil
}

func (m *mockPersister) saved() []storage.ItineraryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.ItineraryRecord(nil), m.records...)
}

// --- fixtures ---

func testCatalog() *catalog.Catalog {
	offer := func(names ...string) []catalog.Offering {
		out := make([]catalog.Offering, len(names))
		for i, n := range names {
			out[i] = catalog.Offering{Name: n, Description: n + " description"}
		}
		return out
	}
	return catalog.New([]catalog.Venue{
		{ID: "v-ridgeline-cellars", Name: "Ridgeline Cellars", Offerings: offer("Estate Zinfandel", "Barrel Room Tasting")},
		{ID: "v-copper-creek", Name: "Copper Creek Vineyards", Offerings: offer("Old Vine Barbera")},
		{ID: "v-oak-hollow-estate", Name: "Oak Hollow Estate", Offerings: offer("Reserve Cabernet", "Vineyard Picnic")},
		{ID: "v-silver-fern", Name: "Silver Fern Sparkling House", Offerings: offer("Brut Rosé")},
		{ID: "v-meadowlark", Name: "Meadowlark Winery", Offerings: offer("Sunset Terrace Flight")},
		{ID: "v-granite-bluff", Name: "Granite Bluff", Offerings: offer("Mountain Syrah")},
	})
}

func validRequest(stops string) trip.Request {
	return trip.Request{
		Vibe:            "relaxed",
		WinePreferences: []string{"red"},
		GroupType:       "couple",
		StopCount:       json.RawMessage(stops),
		OriginCity:      "Sacramento",
		Occasion:        "casual",
	}
}

type stopSpec struct {
	id       string
	offering string
}

func stopsJSON(specs []stopSpec) []map[string]any {
	out := make([]map[string]any, len(specs))
	for i, s := range specs {
		out[i] = map[string]any{
			"venueId":              s.id,
			"order":                i + 1,
			"rationale":            "A great fit for a relaxed afternoon of tasting.",
			"suggestedArrivalTime": fmt.Sprintf("%d:00 PM", i+1),
			"recommendedOffering":  s.offering,
		}
	}
	return out
}

func singleDayJSON(specs ...stopSpec) string {
	b, _ := json.Marshal(map[string]any{
		"trailName":   "Granite and Zin",
		"summary":     "Mountain syrah and estate zinfandel in one easy loop.",
		"totalStops":  len(specs),
		"wineries":    stopsJSON(specs),
		"packingList": []string{"water"},
	})
	return string(b)
}

func multiDayJSON(days ...[]stopSpec) string {
	var daily []map[string]any
	total := 0
	for i, d := range days {
		daily = append(daily, map[string]any{
			"day":   i + 1,
			"theme": fmt.Sprintf("Day %d theme", i+1),
			"stops": stopsJSON(d),
			"recommendations": map[string]string{
				"lunch": "Deli picnic", "dinner": "Bistro", "lodging": "Inn",
			},
		})
		total += len(d)
	}
	b, _ := json.Marshal(map[string]any{
		"trailName":        "Three Day Foothill Escape",
		"summary":          "A slow three-day tour through the best of the foothills.",
		"totalStops":       total,
		"dailyItineraries": daily,
	})
	return string(b)
}

var (
	zin     = stopSpec{"v-ridgeline-cellars", "Estate Zinfandel"}
	barbera = stopSpec{"v-copper-creek", "Old Vine Barbera"}
	cab     = stopSpec{"v-oak-hollow-estate", "Reserve Cabernet"}
	rose    = stopSpec{"v-silver-fern", "Brut Rosé"}
	syrah   = stopSpec{"v-granite-bluff", "Mountain Syrah"}
	bogus   = stopSpec{"v-does-not-exist", "Mystery Red"}
)

func fastOptions() Options {
	return Options{
		OverallTimeout:    2 * time.Second,
		GenerationTimeout: time.Second,
		PersistTimeout:    500 * time.Millisecond,
		PersistGrace:      50 * time.Millisecond,
	}
}

func newTestPlanner(cat CatalogFetcher, gen Generator, store Persister, opts Options) *Planner {
	return New(cat, gen, store, composer.New(0), opts)
}

// assertInvariants checks the properties every returned itinerary must hold.
func assertInvariants(t *testing.T, it itinerary.Itinerary, stopCount int, cat *catalog.Catalog) {
	t.Helper()
	if it.TotalStops != stopCount {
		t.Errorf("TotalStops = %d, want %d", it.TotalStops, stopCount)
	}
	if got := len(it.AllStops()); got != stopCount {
		t.Errorf("len(AllStops) = %d, want %d", got, stopCount)
	}
	if it.IsMultiDay {
		if len(it.Wineries) != 0 {
			t.Error("multi-day itinerary has wineries populated")
		}
		for _, d := range it.DailyItineraries {
			assertContiguous(t, d.Stops)
		}
	} else {
		if len(it.DailyItineraries) != 0 {
			t.Error("single-day itinerary has dailyItineraries populated")
		}
		assertContiguous(t, it.Wineries)
	}
	for _, s := range it.AllStops() {
		v, ok := cat.Get(s.VenueID)
		if !ok {
			t.Errorf("stop venue %q not in catalog", s.VenueID)
			continue
		}
		if len(s.Rationale) < itinerary.MinRationaleLen {
			t.Errorf("stop %q rationale too short: %q", s.VenueID, s.Rationale)
		}
		if !v.HasOffering(s.RecommendedOffering) {
			t.Errorf("stop %q offering %q not among venue offerings", s.VenueID, s.RecommendedOffering)
		}
	}
	if it.ID == "" || it.PublicID == "" {
		t.Errorf("id=%q publicId=%q, want both set", it.ID, it.PublicID)
	}
}

func assertContiguous(t *testing.T, stops []itinerary.Stop) {
	t.Helper()
	for i, s := range stops {
		if s.Order != i+1 {
			t.Errorf("stop %d order = %d, want %d", i, s.Order, i+1)
		}
	}
}

func assertFallback(t *testing.T, got itinerary.Itinerary, stopCount int, multiDay bool, dayCount int) {
	t.Helper()
	want := fallback.Build(stopCount, multiDay, dayCount)
	got.ID, got.PublicID, got.Note = "", "", ""
	gb, _ := json.Marshal(got)
	wb, _ := json.Marshal(want)
	if string(gb) != string(wb) {
		t.Errorf("fallback mismatch:\n got %s\nwant %s", gb, wb)
	}
}

// --- tests ---

func TestPlan_Generated(t *testing.T) {
	cat := testCatalog()
	gen := newMockGenerator(t, mockResponse{text: singleDayJSON(syrah, zin, cab)})
	store := &mockPersister{publicID: "abc123def0"}
	p := newTestPlanner(&mockCatalog{cat: cat}, gen, store, fastOptions())

	res, err := p.Plan(context.Background(), validRequest("3"), RequestMeta{ClientIP: "10.1.1.1", UserAgent: "ua"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if res.Source != SourceGenerated {
		t.Fatalf("Source = %q (reason %q), want generated", res.Source, res.FallbackReason)
	}
	if res.Retried || res.Note != "" {
		t.Errorf("Retried=%v Note=%q", res.Retried, res.Note)
	}
	assertInvariants(t, res.Itinerary, 3, cat)
	if res.Itinerary.PublicID != "abc123def0" {
		t.Errorf("PublicID = %q, want persisted id", res.Itinerary.PublicID)
	}
	if res.Itinerary.Wineries[0].VenueName != "Granite Bluff" {
		t.Errorf("VenueName = %q, want filled from catalog", res.Itinerary.Wineries[0].VenueName)
	}
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("generation calls = %d, want 1", n)
	}

	recs := store.saved()
	if len(recs) != 1 {
		t.Fatalf("persisted %d records, want 1", len(recs))
	}
	if recs[0].Source != "generated" || recs[0].ClientIP != "10.1.1.1" || recs[0].UserAgent != "ua" {
		t.Errorf("record = %+v", recs[0])
	}
	var stored itinerary.Itinerary
	if err := json.Unmarshal([]byte(recs[0].Payload), &stored); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if stored.ID != res.Itinerary.ID {
		t.Errorf("stored id = %q, want %q", stored.ID, res.Itinerary.ID)
	}
}

func TestPlan_ValidationErrorBeforeAnyCall(t *testing.T) {
	for _, stops := range []string{"2", "6", `"seven"`, "0"} {
		t.Run(stops, func(t *testing.T) {
			cat := &mockCatalog{cat: testCatalog()}
			gen := newMockGenerator(t, mockResponse{text: singleDayJSON(zin, barbera, cab)})
			store := &mockPersister{publicID: "x"}
			p := newTestPlanner(cat, gen, store, fastOptions())

			_, err := p.Plan(context.Background(), validRequest(stops), RequestMeta{})
			var ve *trip.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *trip.ValidationError", err)
			}
			if gen.calls.Load() != 0 || cat.calls.Load() != 0 {
				t.Errorf("generation calls = %d, catalog calls = %d, want 0", gen.calls.Load(), cat.calls.Load())
			}
			if len(store.saved()) != 0 {
				t.Error("invalid request was persisted")
			}
		})
	}
}

func TestPlan_ReferentialRetrySucceeds(t *testing.T) {
	cat := testCatalog()
	gen := newMockGenerator(t,
		mockResponse{text: singleDayJSON(zin, bogus, cab)},
		mockResponse{text: singleDayJSON(zin, rose, cab)},
	)
	p := newTestPlanner(&mockCatalog{cat: cat}, gen, &mockPersister{publicID: "p"}, fastOptions())

	res, err := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if res.Source != SourceGenerated || !res.Retried {
		t.Errorf("Source=%q Retried=%v, want generated after retry", res.Source, res.Retried)
	}
	assertInvariants(t, res.Itinerary, 3, cat)
	if n := gen.calls.Load(); n != 2 {
		t.Fatalf("generation calls = %d, want 2", n)
	}

	retry := gen.prompt(1).User
	for _, want := range []string{"[Correction]", "v-does-not-exist", "v-granite-bluff", "v-meadowlark"} {
		if !strings.Contains(retry, want) {
			t.Errorf("retry prompt missing %q", want)
		}
	}
	if !strings.HasPrefix(retry, gen.prompt(0).User) {
		t.Error("retry prompt should extend the original instruction")
	}
}

func TestPlan_ReferentialRetryFailsUsesFallback(t *testing.T) {
	cat := testCatalog()
	gen := newMockGenerator(t,
		mockResponse{text: singleDayJSON(zin, bogus, cab)},
		mockResponse{text: singleDayJSON(bogus, barbera, cab)},
		mockResponse{text: singleDayJSON(zin, barbera, cab)},
	)
	p := newTestPlanner(&mockCatalog{cat: cat}, gen, &mockPersister{publicID: "p"}, fastOptions())

	res, err := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if n := gen.calls.Load(); n != 2 {
		t.Errorf("generation calls = %d, want exactly 2", n)
	}
	if res.Source != SourceFallback || res.FallbackReason != "referential_error" || !res.Retried {
		t.Errorf("Source=%q reason=%q retried=%v", res.Source, res.FallbackReason, res.Retried)
	}
	if res.Note != "" {
		t.Errorf("Note = %q, want empty for non-deadline fallback", res.Note)
	}
	assertInvariants(t, res.Itinerary, 3, cat)
	assertFallback(t, res.Itinerary, 3, false, 1)
}

func TestPlan_RetryParseErrorUsesFallback(t *testing.T) {
	gen := newMockGenerator(t,
		mockResponse{text: singleDayJSON(zin, bogus, cab)},
		mockResponse{text: "sorry, I cannot do that"},
	)
	p := newTestPlanner(&mockCatalog{cat: testCatalog()}, gen, nil, fastOptions())

	res, _ := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
	if res.Source != SourceFallback || res.FallbackReason != "parse_error" {
		t.Errorf("Source=%q reason=%q", res.Source, res.FallbackReason)
	}
	if n := gen.calls.Load(); n != 2 {
		t.Errorf("generation calls = %d, want 2", n)
	}
}

func TestPlan_NoRetryOnParseOrSchemaError(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"parse", "not json at all", "parse_error"},
		{"schema wrong count", singleDayJSON(zin, barbera), "schema_error"},
		{"schema missing offering", singleDayJSON(zin, barbera, stopSpec{"v-oak-hollow-estate", ""}), "schema_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newMockGenerator(t, mockResponse{text: tt.text}, mockResponse{text: singleDayJSON(zin, barbera, cab)})
			p := newTestPlanner(&mockCatalog{cat: testCatalog()}, gen, nil, fastOptions())

			res, err := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if n := gen.calls.Load(); n != 1 {
				t.Errorf("generation calls = %d, want 1", n)
			}
			if res.Source != SourceFallback || res.FallbackReason != tt.reason {
				t.Errorf("Source=%q reason=%q, want fallback/%s", res.Source, res.FallbackReason, tt.reason)
			}
			assertFallback(t, res.Itinerary, 3, false, 1)
		})
	}
}

func TestPlan_GenerationTimeoutFallsBack(t *testing.T) {
	cat := testCatalog()
	gen := newMockGenerator(t, mockResponse{text: singleDayJSON(zin, barbera, cab), delay: 10 * time.Second})
	opts := fastOptions()
	opts.GenerationTimeout = 100 * time.Millisecond
	p := newTestPlanner(&mockCatalog{cat: cat}, gen, &mockPersister{publicID: "p"}, opts)

	start := time.Now()
	res, err := p.Plan(context.Background(), validRequest("4"), RequestMeta{})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if elapsed > opts.OverallTimeout+500*time.Millisecond {
		t.Errorf("Plan took %v, want within the overall deadline", elapsed)
	}
	if res.Source != SourceFallback || res.FallbackReason != "deadline_exceeded" {
		t.Errorf("Source=%q reason=%q", res.Source, res.FallbackReason)
	}
	if res.Note != TimeoutNote || res.Itinerary.Note != TimeoutNote {
		t.Errorf("Note = %q / %q, want timeout note", res.Note, res.Itinerary.Note)
	}
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("generation calls = %d, want 1 (timeouts are not retried)", n)
	}
	assertInvariants(t, res.Itinerary, 4, cat)
	assertFallback(t, res.Itinerary, 4, false, 1)
}

func TestPlan_OverallDeadlinePreemptsRetry(t *testing.T) {
	gen := newMockGenerator(t,
		mockResponse{text: singleDayJSON(zin, bogus, cab)},
		mockResponse{text: singleDayJSON(zin, barbera, cab), delay: 10 * time.Second},
	)
	opts := Options{
		OverallTimeout:    200 * time.Millisecond,
		GenerationTimeout: 5 * time.Second,
		PersistTimeout:    time.Second,
		PersistGrace:      20 * time.Millisecond,
	}
	p := newTestPlanner(&mockCatalog{cat: testCatalog()}, gen, &mockPersister{publicID: "p"}, opts)

	start := time.Now()
	res, err := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Plan took %v, want pre-empted by the overall deadline", elapsed)
	}
	if res.Source != SourceFallback || !res.Retried || res.FallbackReason != "deadline_exceeded" {
		t.Errorf("Source=%q retried=%v reason=%q", res.Source, res.Retried, res.FallbackReason)
	}
	if res.Note != TimeoutNote {
		t.Errorf("Note = %q", res.Note)
	}
}

func TestPlan_NetworkErrorAndPersistenceFailure(t *testing.T) {
	cat := testCatalog()
	gen := newMockGenerator(t, mockResponse{err: errors.New("connection refused")})
	store := &mockPersister{err: errors.New("disk full")}
	p := newTestPlanner(&mockCatalog{cat: cat}, gen, store, fastOptions())

	res, err := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if res.Source != SourceFallback || res.FallbackReason != "generation_failed" {
		t.Errorf("Source=%q reason=%q", res.Source, res.FallbackReason)
	}
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("generation calls = %d, want 1", n)
	}
	if len(store.saved()) != 1 {
		t.Error("persistence was not attempted")
	}
	if res.Itinerary.PublicID != res.Itinerary.ID {
		t.Errorf("PublicID = %q, want itinerary id %q after failed write", res.Itinerary.PublicID, res.Itinerary.ID)
	}
	assertInvariants(t, res.Itinerary, 3, cat)
}

func TestPlan_CatalogUnavailable(t *testing.T) {
	gen := newMockGenerator(t, mockResponse{text: singleDayJSON(zin, barbera, cab)})
	p := newTestPlanner(&mockCatalog{err: errors.New("db locked")}, gen, nil, fastOptions())

	res, err := p.Plan(context.Background(), validRequest("5"), RequestMeta{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if res.Source != SourceFallback || res.FallbackReason != "catalog_unavailable" {
		t.Errorf("Source=%q reason=%q", res.Source, res.FallbackReason)
	}
	if gen.calls.Load() != 0 {
		t.Error("generation called without a catalog")
	}
	assertFallback(t, res.Itinerary, 5, false, 1)
}

func TestPlan_SlowCatalogPreemptedByOverallDeadline(t *testing.T) {
	gen := newMockGenerator(t, mockResponse{text: singleDayJSON(zin, barbera, cab)})
	opts := fastOptions()
	opts.OverallTimeout = 100 * time.Millisecond
	p := newTestPlanner(&mockCatalog{cat: testCatalog(), delay: 2 * time.Second}, gen, nil, opts)

	start := time.Now()
	res, _ := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Plan took %v", elapsed)
	}
	if res.Source != SourceFallback || res.FallbackReason != "catalog_unavailable" || res.Note != TimeoutNote {
		t.Errorf("Source=%q reason=%q note=%q", res.Source, res.FallbackReason, res.Note)
	}
}

func TestPlan_MultiDayGenerated(t *testing.T) {
	cat := testCatalog()
	gen := newMockGenerator(t, mockResponse{text: multiDayJSON([]stopSpec{zin, barbera}, []stopSpec{cab, rose}, []stopSpec{syrah})})
	p := newTestPlanner(&mockCatalog{cat: cat}, gen, &mockPersister{publicID: "p"}, fastOptions())

	req := validRequest("5")
	req.VisitDateStart = "2026-05-01"
	req.VisitDateEnd = "2026-05-03"

	res, err := p.Plan(context.Background(), req, RequestMeta{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if res.Source != SourceGenerated {
		t.Fatalf("Source = %q (reason %q)", res.Source, res.FallbackReason)
	}
	it := res.Itinerary
	if !it.IsMultiDay || len(it.DailyItineraries) != 3 {
		t.Fatalf("IsMultiDay=%v days=%d, want true/3", it.IsMultiDay, len(it.DailyItineraries))
	}
	assertInvariants(t, it, 5, cat)
	for _, d := range it.DailyItineraries {
		if len(d.Stops) > 3 {
			t.Errorf("day %d has %d stops, want <= ceil(5/3)+1", d.Day, len(d.Stops))
		}
	}
	if got := gen.prompt(0); !strings.Contains(got.System, "themed days") || !strings.Contains(got.User, "dailyItineraries") {
		t.Error("multi-day request did not use the multi-day prompt")
	}
}

func TestPlan_MultiDayFallback(t *testing.T) {
	cat := testCatalog()
	gen := newMockGenerator(t, mockResponse{err: errors.New("boom")})
	p := newTestPlanner(&mockCatalog{cat: cat}, gen, nil, fastOptions())

	req := validRequest("5")
	req.VisitDateStart = "2026-05-01"
	req.VisitDateEnd = "2026-05-03"

	res, err := p.Plan(context.Background(), req, RequestMeta{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	it := res.Itinerary
	if !it.IsMultiDay || len(it.DailyItineraries) != 3 {
		t.Fatalf("IsMultiDay=%v days=%d, want true/3", it.IsMultiDay, len(it.DailyItineraries))
	}
	sum := 0
	for _, d := range it.DailyItineraries {
		sum += len(d.Stops)
		if len(d.Stops) > 3 {
			t.Errorf("day %d has %d stops", d.Day, len(d.Stops))
		}
	}
	if sum != 5 {
		t.Errorf("stops across days = %d, want 5", sum)
	}
	assertInvariants(t, it, 5, cat)
	assertFallback(t, it, 5, true, 3)
}

func TestPlan_SlowPersistenceDoesNotBlock(t *testing.T) {
	gen := newMockGenerator(t, mockResponse{text: singleDayJSON(zin, barbera, cab)})
	store := &mockPersister{publicID: "late", delay: 2 * time.Second}
	opts := fastOptions()
	opts.PersistTimeout = 100 * time.Millisecond
	p := newTestPlanner(&mockCatalog{cat: testCatalog()}, gen, store, opts)

	start := time.Now()
	res, err := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Plan took %v, want bounded by persist timeout", elapsed)
	}
	if res.Source != SourceGenerated {
		t.Errorf("Source = %q", res.Source)
	}
	if res.Itinerary.PublicID != res.Itinerary.ID {
		t.Errorf("PublicID = %q, want fallback to itinerary id", res.Itinerary.PublicID)
	}
}

func TestPlan_RepairsMismatchedOffering(t *testing.T) {
	cat := testCatalog()
	gen := newMockGenerator(t, mockResponse{text: singleDayJSON(zin, stopSpec{"v-copper-creek", "Chardonnay"}, cab)})
	p := newTestPlanner(&mockCatalog{cat: cat}, gen, nil, fastOptions())

	res, _ := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
	if res.Source != SourceGenerated {
		t.Fatalf("Source = %q (reason %q)", res.Source, res.FallbackReason)
	}
	if got := res.Itinerary.Wineries[1].RecommendedOffering; got != "Old Vine Barbera" {
		t.Errorf("RecommendedOffering = %q, want repaired to venue offering", got)
	}
	assertInvariants(t, res.Itinerary, 3, cat)
}

func TestPlan_FallbackOfferingsFollowCatalog(t *testing.T) {
	venues := testCatalog().Venues()
	for i := range venues {
		if venues[i].ID == "v-copper-creek" {
			venues[i].Offerings = []catalog.Offering{{Name: "Sangiovese"}}
		}
	}
	cat := catalog.New(venues)
	gen := newMockGenerator(t, mockResponse{err: errors.New("connection refused")})
	p := newTestPlanner(&mockCatalog{cat: cat}, gen, nil, fastOptions())

	res, err := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if res.Source != SourceFallback {
		t.Fatalf("Source = %q", res.Source)
	}
	if got := res.Itinerary.Wineries[1].RecommendedOffering; got != "Sangiovese" {
		t.Errorf("fallback offering = %q, want the venue's current offering", got)
	}
	assertInvariants(t, res.Itinerary, 3, cat)
}

func TestPlan_UniqueIDs(t *testing.T) {
	gen := newMockGenerator(t, mockResponse{err: errors.New("down")})
	p := newTestPlanner(&mockCatalog{cat: testCatalog()}, gen, nil, fastOptions())

	a, _ := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
	b, _ := p.Plan(context.Background(), validRequest("3"), RequestMeta{})
	if a.Itinerary.ID == b.Itinerary.ID {
		t.Error("two requests produced the same itinerary id")
	}
}

func TestReasonFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: %w", ErrCatalogUnavailable, context.DeadlineExceeded), "catalog_unavailable"},
		{&GenerationError{Err: context.DeadlineExceeded}, "deadline_exceeded"},
		{&GenerationError{Err: errors.New("refused")}, "generation_failed"},
		{&itinerary.ParseError{Err: errors.New("x")}, "parse_error"},
		{&itinerary.SchemaError{Problems: []string{"x"}}, "schema_error"},
		{fmt.Errorf("corrective retry: %w", &itinerary.ReferentialError{InvalidIDs: []string{"x"}}), "referential_error"},
		{errors.New("other"), "unknown"},
	}
	for _, tt := range tests {
		if got := reasonFor(tt.err); got != tt.want {
			t.Errorf("reasonFor(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRunStage_ReturnsOnDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := runStage(ctx, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("runStage took %v", elapsed)
	}
}
