package marketdays

import (
	"testing"
	"time"
)

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"weekday mid-session", time.Date(2026, time.March, 4, 11, 0, 0, 0, IST), true},
		{"weekday at open", time.Date(2026, time.March, 4, 9, 15, 0, 0, IST), true},
		{"weekday before open", time.Date(2026, time.March, 4, 9, 0, 0, 0, IST), false},
		{"weekday at close", time.Date(2026, time.March, 4, 15, 30, 0, 0, IST), false},
		{"saturday", time.Date(2026, time.March, 7, 11, 0, 0, 0, IST), false},
		{"republic day", time.Date(2026, time.January, 26, 11, 0, 0, 0, IST), false},
	}
	for _, c := range cases {
		if got := IsMarketOpen(c.t); got != c.want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestIsTradingDay(t *testing.T) {
	if IsTradingDay(time.Date(2026, time.August, 15, 12, 0, 0, 0, IST)) {
		t.Error("Independence Day should not be a trading day")
	}
	if IsTradingDay(time.Date(2026, time.March, 8, 12, 0, 0, 0, IST)) {
		t.Error("Sunday should not be a trading day")
	}
	if !IsTradingDay(time.Date(2026, time.March, 4, 12, 0, 0, 0, IST)) {
		t.Error("regular Wednesday should be a trading day")
	}
}

func TestDayBucketsAcrossZones(t *testing.T) {
	// 20:00 UTC on March 4 is already March 5 in IST.
	utc := time.Date(2026, time.March, 4, 20, 0, 0, 0, time.UTC)
	d := Day(utc)
	if d.Day() != 5 || d.Hour() != 0 || d.Location() != IST {
		t.Errorf("Day(%v) = %v, want midnight March 5 IST", utc, d)
	}
	if nd := NextDay(d); nd.Day() != 6 {
		t.Errorf("NextDay(%v) = %v", d, nd)
	}
}

func TestLastClose(t *testing.T) {
	// Monday 10:00 IST: last close was Friday 15:30.
	mon := time.Date(2026, time.March, 9, 10, 0, 0, 0, IST)
	cl := LastClose(mon)
	want := time.Date(2026, time.March, 6, 15, 30, 0, 0, IST)
	if !cl.Equal(want) {
		t.Errorf("LastClose(%v) = %v, want %v", mon, cl, want)
	}

	// Monday 16:00 IST: last close was the same day.
	monEve := time.Date(2026, time.March, 9, 16, 0, 0, 0, IST)
	cl = LastClose(monEve)
	want = time.Date(2026, time.March, 9, 15, 30, 0, 0, IST)
	if !cl.Equal(want) {
		t.Errorf("LastClose(%v) = %v, want %v", monEve, cl, want)
	}
}
