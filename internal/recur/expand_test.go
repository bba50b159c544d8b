package recur

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famcal/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func expand(t *testing.T, rule model.Rule, start, from, to time.Time) []time.Time {
	t.Helper()
	out, err := Expander{}.Expand(rule, start, nil, from, to)
	require.NoError(t, err)
	return out
}

func isoDates(in []time.Time) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		out = append(out, model.ISODate(d))
	}
	return out
}

func TestExpandEveryOtherDay(t *testing.T) {
	rule := model.Rule{Frequency: model.FreqDaily, Interval: 2, EndType: model.EndNever}
	// 2024-01-01 is a Monday.
	got := expand(t, rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 10))
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-05", "2024-01-07", "2024-01-09"}, isoDates(got))
}

func TestExpandWeeklyWeekdaySet(t *testing.T) {
	rule := model.Rule{
		Frequency: model.FreqWeekly,
		Interval:  1,
		Weekdays:  []time.Weekday{time.Monday, time.Wednesday, time.Friday},
		EndType:   model.EndNever,
	}
	got := expand(t, rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 7))
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-05"}, isoDates(got))
}

func TestExpandBiweeklyWeekdaySetSkipsOffWeeks(t *testing.T) {
	rule := model.Rule{
		Frequency: model.FreqWeekly,
		Interval:  2,
		Weekdays:  []time.Weekday{time.Monday, time.Friday},
		EndType:   model.EndNever,
	}
	got := expand(t, rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 31))
	assert.Equal(t, []string{"2024-01-01", "2024-01-05", "2024-01-15", "2024-01-19", "2024-01-29"}, isoDates(got))
}

func TestExpandWeeklyWithoutWeekdaysKeepsStartWeekday(t *testing.T) {
	rule := model.Rule{Frequency: model.FreqWeekly, Interval: 1, EndType: model.EndNever}
	got := expand(t, rule, date(2024, 1, 2), date(2024, 1, 1), date(2024, 1, 31))
	assert.Equal(t, []string{"2024-01-02", "2024-01-09", "2024-01-16", "2024-01-23", "2024-01-30"}, isoDates(got))
	for _, d := range got {
		assert.Equal(t, time.Tuesday, d.Weekday())
	}
}

func TestExpandMonthlyOnDay31SkipsShortMonths(t *testing.T) {
	rule := model.Rule{
		Frequency:   model.FreqMonthly,
		Interval:    1,
		MonthlyMode: model.MonthlyOnDay,
		MonthDay:    31,
		EndType:     model.EndNever,
	}
	// February and April have no 31st: those months yield nothing, the day
	// is never clamped to the month end.
	got := expand(t, rule, date(2024, 1, 31), date(2024, 1, 1), date(2024, 5, 31))
	assert.Equal(t, []string{"2024-01-31", "2024-03-31", "2024-05-31"}, isoDates(got))
}

func TestExpandMonthlyFirstMonday(t *testing.T) {
	rule := model.Rule{
		Frequency:      model.FreqMonthly,
		Interval:       1,
		MonthlyMode:    model.MonthlyOnWeekday,
		WeekdayOrdinal: 1,
		Weekday:        time.Monday,
		EndType:        model.EndNever,
	}
	got := expand(t, rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 3, 31))
	assert.Equal(t, []string{"2024-01-01", "2024-02-05", "2024-03-04"}, isoDates(got))
}

func TestExpandMonthlyLastFriday(t *testing.T) {
	rule := model.Rule{
		Frequency:      model.FreqMonthly,
		Interval:       1,
		MonthlyMode:    model.MonthlyOnWeekday,
		WeekdayOrdinal: model.OrdinalLast,
		Weekday:        time.Friday,
		EndType:        model.EndNever,
	}
	got := expand(t, rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 2, 29))
	assert.Equal(t, []string{"2024-01-26", "2024-02-23"}, isoDates(got))
}

func TestExpandYearly(t *testing.T) {
	rule := model.Rule{Frequency: model.FreqYearly, Interval: 1, EndType: model.EndNever}
	got := expand(t, rule, date(2024, 3, 15), date(2024, 1, 1), date(2026, 12, 31))
	assert.Equal(t, []string{"2024-03-15", "2025-03-15", "2026-03-15"}, isoDates(got))
}

func TestExpandEndCountIsCountedFromSeriesStart(t *testing.T) {
	rule := model.Rule{Frequency: model.FreqDaily, Interval: 1, EndType: model.EndAfterCount, EndCount: 5}

	// The full window sees all five occurrences no matter how large it is.
	full := expand(t, rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 12, 31))
	assert.Len(t, full, 5)

	// A window starting later sees only the tail: occurrences one and two
	// were consumed before the window, not shifted into it.
	tail := expand(t, rule, date(2024, 1, 1), date(2024, 1, 3), date(2024, 1, 10))
	assert.Equal(t, []string{"2024-01-03", "2024-01-04", "2024-01-05"}, isoDates(tail))
}

func TestExpandEndDateBoundsEmission(t *testing.T) {
	end := date(2024, 1, 5)
	rule := model.Rule{Frequency: model.FreqDaily, Interval: 1, EndType: model.EndOnDate, EndDate: &end}
	got := expand(t, rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 31))
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, isoDates(got))
}

func TestExpandSeriesEndBoundsEmission(t *testing.T) {
	rule := model.Rule{Frequency: model.FreqDaily, Interval: 1, EndType: model.EndNever}
	seriesEnd := date(2024, 1, 4)
	got, err := Expander{}.Expand(rule, date(2024, 1, 1), &seriesEnd, date(2024, 1, 1), date(2024, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"}, isoDates(got))
}

func TestExpandRangeBeforeSeriesStartIsEmpty(t *testing.T) {
	rule := model.Rule{Frequency: model.FreqDaily, Interval: 1, EndType: model.EndNever}
	got := expand(t, rule, date(2024, 6, 1), date(2024, 1, 1), date(2024, 5, 31))
	assert.Empty(t, got)
}

func TestExpandIsDeterministicAndAscending(t *testing.T) {
	rule := model.Rule{
		Frequency: model.FreqWeekly,
		Interval:  1,
		Weekdays:  []time.Weekday{time.Tuesday, time.Saturday},
		EndType:   model.EndNever,
	}
	first := expand(t, rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 3, 31))
	second := expand(t, rule, date(2024, 1, 1), date(2024, 1, 1), date(2024, 3, 31))
	require.Equal(t, first, second)

	require.NotEmpty(t, first)
	for i := 1; i < len(first); i++ {
		assert.True(t, first[i].After(first[i-1]), "dates must be strictly ascending")
	}
}

func TestExpandRejectsOversizedWindowForNeverEndingRules(t *testing.T) {
	rule := model.Rule{Frequency: model.FreqDaily, Interval: 1, EndType: model.EndNever}

	_, err := Expander{}.Expand(rule, date(2020, 1, 1), nil, date(2020, 1, 1), date(2026, 1, 1))
	assert.ErrorIs(t, err, ErrRangeTooLarge)

	// A bounded rule may be queried over any window.
	bounded := model.Rule{Frequency: model.FreqDaily, Interval: 1, EndType: model.EndAfterCount, EndCount: 3}
	got, err := Expander{}.Expand(bounded, date(2020, 1, 1), nil, date(2020, 1, 1), date(2026, 1, 1))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	rule := model.Rule{Frequency: model.FreqDaily, Interval: 1, EndType: model.EndNever}
	_, err := Expander{}.Expand(rule, date(2024, 1, 1), nil, date(2024, 2, 1), date(2024, 1, 1))
	assert.ErrorIs(t, err, ErrBadRange)
}

func TestExpandRejectsInvalidRuleBeforeEmitting(t *testing.T) {
	rule := model.Rule{Frequency: model.FreqMonthly, Interval: 1, MonthlyMode: model.MonthlyOnDay, MonthDay: 40, EndType: model.EndNever}
	_, err := Expander{}.Expand(rule, date(2024, 1, 1), nil, date(2024, 1, 1), date(2024, 1, 31))
	assert.ErrorIs(t, err, model.ErrInvalidRule)
}
