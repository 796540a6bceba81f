package models

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAccountingPeriod_CycleStartDayOneFollowsCalendar(t *testing.T) {
	cases := []struct {
		in    time.Time
		year  int
		month time.Month
	}{
		{date(2026, time.January, 1), 2026, time.January},
		{date(2026, time.January, 31), 2026, time.January},
		{date(2026, time.February, 28), 2026, time.February},
		{date(2026, time.December, 31), 2026, time.December},
	}
	for _, tc := range cases {
		year, month := AccountingPeriod(tc.in, 1)
		if year != tc.year || month != tc.month {
			t.Fatalf("AccountingPeriod(%s, 1) expected %d-%d, got %d-%d",
				tc.in.Format("2006-01-02"), tc.year, tc.month, year, month)
		}
	}
}

func TestAccountingPeriod_MidMonthCycleCrossesYearBoundary(t *testing.T) {
	cases := []struct {
		in    time.Time
		year  int
		month time.Month
	}{
		{date(2026, time.January, 10), 2025, time.December},
		{date(2026, time.January, 24), 2025, time.December},
		{date(2026, time.January, 25), 2026, time.January},
		{date(2025, time.December, 25), 2025, time.December},
		{date(2025, time.December, 24), 2025, time.November},
	}
	for _, tc := range cases {
		year, month := AccountingPeriod(tc.in, 25)
		if year != tc.year || month != tc.month {
			t.Fatalf("AccountingPeriod(%s, 25) expected %d-%d, got %d-%d",
				tc.in.Format("2006-01-02"), tc.year, tc.month, year, month)
		}
	}
}

func TestAccountingPeriod_StartDayClampsToShortMonths(t *testing.T) {
	cases := []struct {
		in       time.Time
		cycleDay int
		year     int
		month    time.Month
	}{
		// February 2025 has 28 days, so a day-31 cycle starts on the 28th.
		{date(2025, time.February, 28), 31, 2025, time.February},
		{date(2025, time.February, 27), 31, 2025, time.January},
		// Leap February.
		{date(2024, time.February, 29), 31, 2024, time.February},
		{date(2024, time.February, 28), 31, 2024, time.January},
		// 30 day month with a day-31 cycle.
		{date(2025, time.April, 30), 31, 2025, time.April},
		{date(2025, time.April, 29), 31, 2025, time.March},
		// Day-30 cycle in February.
		{date(2025, time.February, 28), 30, 2025, time.February},
		{date(2025, time.February, 27), 30, 2025, time.January},
	}
	for _, tc := range cases {
		year, month := AccountingPeriod(tc.in, tc.cycleDay)
		if year != tc.year || month != tc.month {
			t.Fatalf("AccountingPeriod(%s, %d) expected %d-%d, got %d-%d",
				tc.in.Format("2006-01-02"), tc.cycleDay, tc.year, tc.month, year, month)
		}
	}
}

// Every calendar date must land in exactly one period, and that period's
// bounds must contain it. Walking two full years (one leap) day by day for
// the awkward cycle days covers every clamping combination.
func TestPeriodBounds_TileTheCalendarWithoutGaps(t *testing.T) {
	cycleDays := []int{1, 2, 15, 28, 29, 30, 31}
	for _, cycleDay := range cycleDays {
		day := date(2024, time.January, 1)
		last := date(2026, time.January, 1)
		for day.Before(last) {
			year, month := AccountingPeriod(day, cycleDay)
			start, end := PeriodBounds(year, month, cycleDay)
			if day.Before(start) || !day.Before(end) {
				t.Fatalf("cycleDay=%d: %s assigned to period %d-%d but bounds are [%s, %s)",
					cycleDay, day.Format("2006-01-02"), year, month,
					start.Format("2006-01-02"), end.Format("2006-01-02"))
			}
			day = day.AddDate(0, 0, 1)
		}
	}
}

func TestPeriodBounds_EndIsStartOfNextPeriod(t *testing.T) {
	cycleDays := []int{1, 15, 29, 31}
	for _, cycleDay := range cycleDays {
		for year := 2024; year <= 2025; year++ {
			for month := time.January; month <= time.December; month++ {
				_, end := PeriodBounds(year, month, cycleDay)
				nextYear, nextMonth := year, month+1
				if nextMonth > time.December {
					nextYear, nextMonth = year+1, time.January
				}
				nextStart, _ := PeriodBounds(nextYear, nextMonth, cycleDay)
				if !end.Equal(nextStart) {
					t.Fatalf("cycleDay=%d: period %d-%d ends %s but next period starts %s",
						cycleDay, year, month,
						end.Format("2006-01-02"), nextStart.Format("2006-01-02"))
				}
			}
		}
	}
}
