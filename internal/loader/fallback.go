package loader

import "racecal/internal/model"

var fallbackEvents = []model.Event{
	{EventName: "Tuesday Night Track Racing - Winter Championship - at DISC", EventDate: "2025-07-01T00:00:00Z", ClubName: "Brunswick Cycling Club", EventURL: "https://entryboss.cc/races/25059"},
	{EventName: "Thursday Motorpacing [with Intro Session]", EventDate: "2025-07-03T00:00:00Z", ClubName: "Brunswick Cycling Club", EventURL: "https://entryboss.cc/races/25038"},
	{EventName: "Criterium - Graded scratch races @ Casey", EventDate: "2025-07-05T00:00:00Z", ClubName: "Eastern Cycling Club", EventURL: "https://entryboss.cc/races/25496"},
	{EventName: "Race 9 - CCC & VETS Combined Winter Series - Race 3", EventDate: "2025-07-05T00:00:00Z", ClubName: "Colac Cycling Club", EventURL: "https://entryboss.cc/races/26266"},
	{EventName: "Victorian Cyclo-cross Series Round 1 - Fruits of the Valley", EventDate: "2025-07-05T00:00:00Z", ClubName: "AusCycling (Victoria)", EventURL: "https://entryboss.cc/races/24312"},
	{EventName: "Tuesday Night Track Endurance Racing - Winter Championship - at DISC", EventDate: "2025-07-08T00:00:00Z", ClubName: "Brunswick Cycling Club", EventURL: "https://entryboss.cc/races/25060"},
	{EventName: "Hamilton Wheelers Championship Road Race", EventDate: "2025-07-12T00:00:00Z", ClubName: "Hamilton Wheelers Cycling Club", EventURL: "https://entryboss.cc/races/26100"},
	{EventName: "Race 11 - CCC & VETS Combined Winter Series - Race 5", EventDate: "2025-07-19T00:00:00Z", ClubName: "Colac Cycling Club", EventURL: "https://entryboss.cc/races/26268"},
	{EventName: "Kermesse - Graded scratch races @ Yarra Glen", EventDate: "2025-07-19T00:00:00Z", ClubName: "Eastern Cycling Club", EventURL: "https://entryboss.cc/races/26159"},
	{EventName: "Victorian Cyclo-cross Series Round 2 - Castlemaine", EventDate: "2025-07-26T00:00:00Z", ClubName: "AusCycling (Victoria)", EventURL: "https://entryboss.cc/races/24344"},
}

// Fallback returns the built-in sample dataset of Victorian events, flagged
// IsFallback. Clubs are derived from the events.
func Fallback() Result {
	events := make([]model.Event, len(fallbackEvents))
	copy(events, fallbackEvents)
	return Result{
		Events:       events,
		Clubs:        model.DistinctClubs(events),
		IsFallback:   true,
		ClubsDerived: true,
	}
}
