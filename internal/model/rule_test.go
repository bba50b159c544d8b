package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestRuleValidateAcceptsWellFormedRules(t *testing.T) {
	rules := []Rule{
		{Frequency: FreqDaily, Interval: 1, EndType: EndNever},
		{Frequency: FreqDaily, Interval: 2, EndType: EndAfterCount, EndCount: 3},
		{Frequency: FreqWeekly, Interval: 1, Weekdays: []time.Weekday{time.Monday, time.Wednesday, time.Friday}, EndType: EndNever},
		{Frequency: FreqWeekly, Interval: 2, EndType: EndOnDate, EndDate: datePtr(2026, 12, 31)},
		{Frequency: FreqMonthly, Interval: 1, MonthlyMode: MonthlyOnDay, MonthDay: 31, EndType: EndNever},
		{Frequency: FreqMonthly, Interval: 3, MonthlyMode: MonthlyOnWeekday, WeekdayOrdinal: 1, Weekday: time.Monday, EndType: EndNever},
		{Frequency: FreqMonthly, Interval: 1, MonthlyMode: MonthlyOnWeekday, WeekdayOrdinal: OrdinalLast, Weekday: time.Friday, EndType: EndNever},
		{Frequency: FreqYearly, Interval: 1, EndType: EndAfterCount, EndCount: 10},
	}
	for _, rule := range rules {
		assert.NoError(t, rule.Validate(), "rule %+v", rule)
	}
}

func TestRuleValidateRejectsMalformedRules(t *testing.T) {
	cases := map[string]Rule{
		"unknown frequency":       {Frequency: "hourly", Interval: 1, EndType: EndNever},
		"zero interval":           {Frequency: FreqDaily, Interval: 0, EndType: EndNever},
		"negative interval":       {Frequency: FreqDaily, Interval: -2, EndType: EndNever},
		"weekdays on daily":       {Frequency: FreqDaily, Interval: 1, Weekdays: []time.Weekday{time.Monday}, EndType: EndNever},
		"duplicate weekday":       {Frequency: FreqWeekly, Interval: 1, Weekdays: []time.Weekday{time.Monday, time.Monday}, EndType: EndNever},
		"monthly without mode":    {Frequency: FreqMonthly, Interval: 1, EndType: EndNever},
		"month day zero":          {Frequency: FreqMonthly, Interval: 1, MonthlyMode: MonthlyOnDay, MonthDay: 0, EndType: EndNever},
		"month day 32":            {Frequency: FreqMonthly, Interval: 1, MonthlyMode: MonthlyOnDay, MonthDay: 32, EndType: EndNever},
		"ordinal zero":            {Frequency: FreqMonthly, Interval: 1, MonthlyMode: MonthlyOnWeekday, WeekdayOrdinal: 0, Weekday: time.Monday, EndType: EndNever},
		"ordinal five":            {Frequency: FreqMonthly, Interval: 1, MonthlyMode: MonthlyOnWeekday, WeekdayOrdinal: 5, Weekday: time.Monday, EndType: EndNever},
		"monthly mode on weekly":  {Frequency: FreqWeekly, Interval: 1, MonthlyMode: MonthlyOnDay, MonthDay: 3, EndType: EndNever},
		"unknown end type":        {Frequency: FreqDaily, Interval: 1, EndType: "sometime"},
		"never with end date":     {Frequency: FreqDaily, Interval: 1, EndType: EndNever, EndDate: datePtr(2026, 1, 1)},
		"never with count":        {Frequency: FreqDaily, Interval: 1, EndType: EndNever, EndCount: 4},
		"on_date without date":    {Frequency: FreqDaily, Interval: 1, EndType: EndOnDate},
		"on_date with count":      {Frequency: FreqDaily, Interval: 1, EndType: EndOnDate, EndDate: datePtr(2026, 1, 1), EndCount: 2},
		"after_count zero":        {Frequency: FreqDaily, Interval: 1, EndType: EndAfterCount},
		"after_count with date":   {Frequency: FreqDaily, Interval: 1, EndType: EndAfterCount, EndCount: 2, EndDate: datePtr(2026, 1, 1)},
	}
	for name, rule := range cases {
		err := rule.Validate()
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrInvalidRule, name)
	}
}

func TestPayloadApply(t *testing.T) {
	base := Payload{
		Title:           "Take out trash",
		Points:          5,
		Assignees:       []string{"maya"},
		TimeOfDay:       "18:00",
		DurationMinutes: 15,
	}

	title := "Take out trash and recycling"
	points := 8
	got := base.Apply(&Patch{Title: &title, Points: &points})
	assert.Equal(t, "Take out trash and recycling", got.Title)
	assert.Equal(t, 8, got.Points)
	assert.Equal(t, []string{"maya"}, got.Assignees, "unpatched fields keep series defaults")
	assert.Equal(t, "18:00", got.TimeOfDay)

	assert.Equal(t, base, base.Apply(nil), "nil patch changes nothing")
}

func TestExceptionValidate(t *testing.T) {
	title := "Movie night"
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	ok := Exception{SeriesID: "s1", Date: date, Type: ExceptionOverride, Patch: &Patch{Title: &title}}
	assert.NoError(t, ok.Validate())

	skip := Exception{SeriesID: "s1", Date: date, Type: ExceptionSkip}
	assert.NoError(t, skip.Validate())

	assert.ErrorIs(t, Exception{Date: date, Type: ExceptionSkip}.Validate(), ErrInvalidException)
	assert.ErrorIs(t, Exception{SeriesID: "s1", Date: date, Type: ExceptionOverride}.Validate(), ErrInvalidException)
	assert.ErrorIs(t, Exception{SeriesID: "s1", Date: date, Type: ExceptionSkip, Patch: &Patch{Title: &title}}.Validate(), ErrInvalidException)
	assert.ErrorIs(t, Exception{SeriesID: "s1", Date: date, Type: "postpone"}.Validate(), ErrInvalidException)
}

func TestInstanceIDIsDeterministic(t *testing.T) {
	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "abc:2026-04-01", InstanceID("abc", date))
	require.Equal(t, InstanceID("abc", date), InstanceID("abc", date))
}

func TestDateOfNormalizesToMidnightUTC(t *testing.T) {
	in := time.Date(2026, 7, 4, 23, 59, 59, 0, time.UTC)
	got := DateOf(in)
	assert.Equal(t, time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, "2026-07-04", ISODate(got))
}
