package cron

import (
	"fmt"
	"strings"
	"time"
)

// MalformedScheduleError reports an expression that does not split into
// exactly five fields. It is the only error the parser produces; individual
// field tokens never fail classification (they fail closed instead).
type MalformedScheduleError struct {
	Expression string
	Fields     int
}

func (e *MalformedScheduleError) Error() string {
	return fmt.Sprintf("malformed schedule %q: got %d fields, want 5 (minute hour day-of-month month day-of-week)", e.Expression, e.Fields)
}

// Schedule is a parsed five-field cron expression. Immutable once parsed.
type Schedule struct {
	Minute     Pattern
	Hour       Pattern
	DayOfMonth Pattern
	Month      Pattern
	DayOfWeek  Pattern

	expr string
}

// Parse splits expr into exactly five whitespace-separated fields and
// classifies each one. Surplus or missing fields yield
// *MalformedScheduleError.
func Parse(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, &MalformedScheduleError{Expression: expr, Fields: len(fields)}
	}
	return &Schedule{
		Minute:     parsePattern(fields[0]),
		Hour:       parsePattern(fields[1]),
		DayOfMonth: parsePattern(fields[2]),
		Month:      parsePattern(fields[3]),
		DayOfWeek:  parsePattern(fields[4]),
		expr:       expr,
	}, nil
}

// MustParse is Parse for compile-time-constant expressions in tests and
// wiring code. It panics on a malformed expression.
func MustParse(expr string) *Schedule {
	s, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// Matches reports whether t satisfies all five fields.
//
// Calendar components come from t in its own location: minute 0-59,
// hour 0-23, day-of-month 1-31, month 1-12 (time.Month is one-based),
// day-of-week 0-6 with 0 = Sunday (time.Weekday). 7 is not an alias for
// Sunday.
func (s *Schedule) Matches(t time.Time) bool {
	return s.Minute.Matches(t.Minute()) &&
		s.Hour.Matches(t.Hour()) &&
		s.DayOfMonth.Matches(t.Day()) &&
		s.Month.Matches(int(t.Month())) &&
		s.DayOfWeek.Matches(int(t.Weekday()))
}

// String returns the original expression.
func (s *Schedule) String() string { return s.expr }
