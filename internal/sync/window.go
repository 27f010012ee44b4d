package sync

import (
	"fmt"
	"time"
)

// Window is the rolling reconciliation envelope: previous civil week through
// the end of the next civil week, anchored to Monday 00:00 in the station
// timezone.
type Window struct {
	CivilStart time.Time `json:"civil_start"`
	CivilEnd   time.Time `json:"civil_end"`
	StartUTC   time.Time `json:"start_utc"`
	EndUTC     time.Time `json:"end_utc"`
	Label      string    `json:"label"`
}

// Contains reports whether t falls inside [start, end).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.StartUTC) && t.Before(w.EndUTC)
}

// ResolveWindow computes the envelope for now. Timezone offsets are derived
// per instant via loc, so boundaries stay correct across a daylight-saving
// transition. When airingStart is set and precedes the computed start, the
// window start snaps back so an in-progress show is never excluded
// mid-reconciliation.
func ResolveWindow(now time.Time, airingStart *time.Time, loc *time.Location) Window {
	civil := now.In(loc)

	// Monday 00:00 of the current civil week
	weekday := int(civil.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	monday := time.Date(civil.Year(), civil.Month(), civil.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, -(weekday - 1))

	start := monday.AddDate(0, 0, -7)  // Monday of the previous week
	end := monday.AddDate(0, 0, 14)    // Monday after the next week

	startUTC := start.UTC()
	if airingStart != nil && airingStart.Before(startUTC) {
		startUTC = airingStart.UTC()
		start = startUTC.In(loc)
	}

	return Window{
		CivilStart: start,
		CivilEnd:   end,
		StartUTC:   startUTC,
		EndUTC:     end.UTC(),
		Label:      windowLabel(start, end),
	}
}

// windowLabel names the envelope by the ISO weeks of its (possibly snapped)
// start and of its end. The end boundary is exclusive, so the label uses the
// last instant inside the window.
func windowLabel(start, end time.Time) string {
	sy, sw := start.ISOWeek()
	ey, ew := end.Add(-time.Second).ISOWeek()
	if sy == ey {
		return fmt.Sprintf("%d-W%02d..W%02d", sy, sw, ew)
	}
	return fmt.Sprintf("%d-W%02d..%d-W%02d", sy, sw, ey, ew)
}
