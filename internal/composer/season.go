package composer

import "time"

var seasonalNotes = map[time.Month]string{
	time.January:   "Deep winter: cool and often wet. Tasting rooms are quiet and winemakers have time to chat; favor indoor and fireplace settings.",
	time.February:  "Late winter: pruning season in the vineyards. Expect cool days and fewer crowds.",
	time.March:     "Early spring: bud break begins and hillsides turn green. Mild days, chilly evenings.",
	time.April:     "Spring: wildflowers between the rows and comfortable afternoons for patio tastings.",
	time.May:       "Late spring: warm and dry. Outdoor terraces and picnic lawns are at their best.",
	time.June:      "Early summer: warm afternoons. Start early and save shaded or indoor stops for midday.",
	time.July:      "Midsummer: hot afternoons. Favor morning tastings, shade, and cool whites and rosé.",
	time.August:    "Late summer: veraison and heat. Plan around midday temperatures and stay hydrated.",
	time.September: "Harvest begins: crush activity, busy weekends, and festive tasting rooms. Book ahead.",
	time.October:   "Peak harvest and fall color: the most popular month. Expect crowds and reservations.",
	time.November:  "Post-harvest: new releases and quieter weekends. Cooler days suit bold reds.",
	time.December:  "Holiday season: festive tasting rooms, shorter days, and occasional rain.",
}

// StaticSeasons looks up a fixed note for the month of the visit.
type StaticSeasons struct{}

func (StaticSeasons) Note(date time.Time) string {
	return seasonalNotes[date.Month()]
}
