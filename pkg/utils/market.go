// Package utils provides shared market calendar helpers.
package utils

import (
	"math"
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

const (
	closeHour   = 15
	closeMinute = 30
)

// ExpiryClose returns 15:30 IST on the calendar date of t (taken in IST).
func ExpiryClose(t time.Time) time.Time {
	d := t.In(IndiaLocation)
	return time.Date(d.Year(), d.Month(), d.Day(), closeHour, closeMinute, 0, 0, IndiaLocation)
}

// YearsUntil is the ACT/365 year fraction from now to expiry close, floored at zero.
func YearsUntil(now, expiry time.Time) float64 {
	d := ExpiryClose(expiry).Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Hours() / 24 / 365
}

// DaysUntil is the number of calendar days from now's IST date to expiry's,
// floored at zero.
func DaysUntil(now, expiry time.Time) int {
	a := now.In(IndiaLocation)
	b := expiry.In(IndiaLocation)
	start := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(math.Round(end.Sub(start).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}

// LastWeekdayOfMonth returns the last given weekday of a month at expiry close.
func LastWeekdayOfMonth(year int, month time.Month, weekday time.Weekday) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, IndiaLocation)
	for last.Weekday() != weekday {
		last = last.AddDate(0, 0, -1)
	}
	return ExpiryClose(last)
}

// MonthlyExpiry returns the next monthly derivatives expiry (the last weekday
// of the month) that has not yet closed.
func MonthlyExpiry(now time.Time, weekday time.Weekday) time.Time {
	n := now.In(IndiaLocation)
	exp := LastWeekdayOfMonth(n.Year(), n.Month(), weekday)
	if !n.Before(exp) {
		exp = LastWeekdayOfMonth(n.Year(), n.Month()+1, weekday)
	}
	return exp
}

// IsMarketOpen reports whether NSE cash is in its continuous session at t.
func IsMarketOpen(t time.Time) bool {
	n := t.In(IndiaLocation)
	if n.Weekday() == time.Saturday || n.Weekday() == time.Sunday {
		return false
	}
	m := n.Hour()*60 + n.Minute()
	return m >= 9*60+15 && m < closeHour*60+closeMinute
}
