// Package marketdays knows the NSE trading calendar. The pricing cache uses
// it to pick quote TTLs and the dashboard uses it to label quote freshness;
// the valuation replay itself forward-fills over any gap and does not need
// the calendar to be exact.
package marketdays

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// NSE equity market hours in IST.
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// IsMarketOpen returns true if t falls within NSE trading hours
// (9:15 AM – 3:30 PM IST, Mon–Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon–Fri in IST.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not an NSE holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	return IsWeekday(ist) && !IsHoliday(ist)
}

// Day truncates t to its civil date in IST, midnight IST. Valuation replay
// buckets transactions and closes by this key.
func Day(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)
}

// NextDay advances a Day key by one civil day.
func NextDay(day time.Time) time.Time {
	return day.AddDate(0, 0, 1)
}

// LastClose returns the most recent session close at or before t. Used to
// decide whether a cached quote can still be considered fresh.
func LastClose(t time.Time) time.Time {
	ist := t.In(IST)
	for i := 0; i < 10; i++ {
		day := ist.AddDate(0, 0, -i)
		if !IsTradingDay(day) {
			continue
		}
		cl := time.Date(day.Year(), day.Month(), day.Day(), CloseHour, CloseMinute, 0, 0, IST)
		if !cl.After(ist) {
			return cl
		}
	}
	return ist.AddDate(0, 0, -10)
}

func dateKey(year int, month time.Month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}
