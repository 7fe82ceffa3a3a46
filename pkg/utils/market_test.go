package utils

import (
	"math"
	"testing"
	"time"
)

func TestExpiryClose(t *testing.T) {
	d := time.Date(2026, 3, 31, 2, 0, 0, 0, time.UTC) // 07:30 IST same day
	got := ExpiryClose(d)
	if got.Hour() != 15 || got.Minute() != 30 || got.Day() != 31 {
		t.Errorf("ExpiryClose = %v", got)
	}
}

func TestYearsUntil(t *testing.T) {
	now := time.Date(2026, 3, 16, 15, 30, 0, 0, IndiaLocation)
	expiry := time.Date(2026, 3, 31, 0, 0, 0, 0, IndiaLocation)
	if got := YearsUntil(now, expiry); math.Abs(got-15.0/365) > 1e-12 {
		t.Errorf("YearsUntil = %f, want %f", got, 15.0/365)
	}
	if got := YearsUntil(expiry.AddDate(0, 0, 2), expiry); got != 0 {
		t.Errorf("past expiry = %f, want 0", got)
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 16, 22, 0, 0, 0, IndiaLocation)
	expiry := time.Date(2026, 3, 31, 15, 30, 0, 0, IndiaLocation)
	if got := DaysUntil(now, expiry); got != 15 {
		t.Errorf("DaysUntil = %d, want 15", got)
	}
	if got := DaysUntil(expiry, now); got != 0 {
		t.Errorf("reversed = %d, want 0", got)
	}
}

func TestMonthlyExpiry(t *testing.T) {
	// Last Tuesday of March 2026 is the 31st.
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, IndiaLocation)
	got := MonthlyExpiry(now, time.Tuesday)
	if got.Day() != 31 || got.Month() != time.March {
		t.Errorf("MonthlyExpiry = %v, want 2026-03-31", got)
	}

	after := time.Date(2026, 3, 31, 16, 0, 0, 0, IndiaLocation)
	got = MonthlyExpiry(after, time.Tuesday)
	if got.Month() != time.April || got.Weekday() != time.Tuesday || got.Day() != 28 {
		t.Errorf("MonthlyExpiry after close = %v, want 2026-04-28", got)
	}
}

func TestIsMarketOpen(t *testing.T) {
	tests := []struct {
		t    time.Time
		want bool
	}{
		{time.Date(2026, 3, 16, 9, 15, 0, 0, IndiaLocation), true},
		{time.Date(2026, 3, 16, 15, 30, 0, 0, IndiaLocation), false},
		{time.Date(2026, 3, 14, 11, 0, 0, 0, IndiaLocation), false},
	}
	for _, tt := range tests {
		if got := IsMarketOpen(tt.t); got != tt.want {
			t.Errorf("IsMarketOpen(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}
