package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleType selects how a time trigger repeats.
type ScheduleType string

const (
	ScheduleTypeOnce     ScheduleType = "once"     // Fires at most once ever
	ScheduleTypeDaily    ScheduleType = "daily"    // Fires once per day at TimeOfDay
	ScheduleTypeWeekly   ScheduleType = "weekly"   // Fires once per matching weekday at TimeOfDay
	ScheduleTypeInterval ScheduleType = "interval" // Fires every IntervalMinutes
)

// fireTolerance is the window around the scheduled time-of-day within which the
// evaluator considers the schedule due. The evaluator polls, so exact-second
// matching would miss fires.
const fireTolerance = time.Minute

// TimeSchedule is the payload of a time_schedule trigger.
type TimeSchedule struct {
	ScheduleType    ScheduleType   `json:"schedule_type" validate:"required,oneof=once daily weekly interval"`
	TimeOfDay       string         `json:"time_of_day,omitempty"` // "HH:MM", 24h clock
	DaysOfWeek      []time.Weekday `json:"days_of_week,omitempty"`
	IntervalMinutes int            `json:"interval_minutes,omitempty"`
	Timezone        string         `json:"timezone,omitempty"` // IANA name; empty means UTC
}

var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// Validate checks the schedule configuration, including the timezone name.
func (s *TimeSchedule) Validate() error {
	switch s.ScheduleType {
	case ScheduleTypeOnce, ScheduleTypeDaily, ScheduleTypeWeekly:
		if _, _, err := s.parseTimeOfDay(); err != nil {
			return err
		}

		if s.ScheduleType == ScheduleTypeWeekly && len(s.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: weekly schedule requires days_of_week", ErrInvalidSchedule)
		}
	case ScheduleTypeInterval:
		if s.IntervalMinutes <= 0 {
			return fmt.Errorf("%w: interval_minutes must be positive", ErrInvalidSchedule)
		}
	default:
		return fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, s.ScheduleType)
	}

	if _, err := s.Location(); err != nil {
		return err
	}

	return nil
}

// Location resolves the schedule's timezone, defaulting to UTC.
func (s *TimeSchedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timezone %q: %w", ErrInvalidSchedule, s.Timezone, err)
	}

	return loc, nil
}

// MatchesAt reports whether the schedule is due at now, given the last time
// this (workflow, trigger) pair fired. The last-fired marker is what prevents
// a Daily or Weekly schedule from re-firing within the same day.
func (s *TimeSchedule) MatchesAt(now time.Time, lastFired *time.Time) (bool, error) {
	loc, err := s.Location()
	if err != nil {
		return false, err
	}

	local := now.In(loc)

	switch s.ScheduleType {
	case ScheduleTypeOnce:
		if lastFired != nil {
			return false, nil
		}

		return s.withinWindow(local)
	case ScheduleTypeDaily:
		if firedSameDay(lastFired, local, loc) {
			return false, nil
		}

		return s.withinWindow(local)
	case ScheduleTypeWeekly:
		if !s.matchesWeekday(local.Weekday()) {
			return false, nil
		}

		if firedSameDay(lastFired, local, loc) {
			return false, nil
		}

		return s.withinWindow(local)
	case ScheduleTypeInterval:
		if lastFired == nil {
			return true, nil
		}

		return now.Sub(*lastFired) >= time.Duration(s.IntervalMinutes)*time.Minute, nil
	default:
		return false, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, s.ScheduleType)
	}
}

// NextRun computes the next occurrence after the given time using the standard
// 5-field cron machinery. Interval schedules are pure period math and do not
// go through cron.
func (s *TimeSchedule) NextRun(after time.Time) (time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}

	if s.ScheduleType == ScheduleTypeInterval {
		return after.Add(time.Duration(s.IntervalMinutes) * time.Minute), nil
	}

	expr, err := s.cronExpression()
	if err != nil {
		return time.Time{}, err
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	cronSchedule, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return cronSchedule.Next(after.In(loc)), nil
}

// cronExpression derives the 5-field expression for once/daily/weekly schedules.
func (s *TimeSchedule) cronExpression() (string, error) {
	hour, minute, err := s.parseTimeOfDay()
	if err != nil {
		return "", err
	}

	dow := "*"

	if s.ScheduleType == ScheduleTypeWeekly {
		days := make([]string, 0, len(s.DaysOfWeek))
		for _, d := range s.DaysOfWeek {
			days = append(days, strconv.Itoa(int(d)))
		}

		dow = strings.Join(days, ",")
	}

	return fmt.Sprintf("%d %d * * %s", minute, hour, dow), nil
}

func (s *TimeSchedule) parseTimeOfDay() (hour, minute int, err error) {
	parts := strings.SplitN(s.TimeOfDay, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: time_of_day must be HH:MM, got %q", ErrInvalidSchedule, s.TimeOfDay)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: bad hour in %q", ErrInvalidSchedule, s.TimeOfDay)
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: bad minute in %q", ErrInvalidSchedule, s.TimeOfDay)
	}

	return hour, minute, nil
}

func (s *TimeSchedule) withinWindow(local time.Time) (bool, error) {
	hour, minute, err := s.parseTimeOfDay()
	if err != nil {
		return false, err
	}

	scheduled := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, local.Location())
	diff := local.Sub(scheduled)

	return diff >= -fireTolerance && diff <= fireTolerance, nil
}

func (s *TimeSchedule) matchesWeekday(day time.Weekday) bool {
	for _, d := range s.DaysOfWeek {
		if d == day {
			return true
		}
	}

	return false
}

func firedSameDay(lastFired *time.Time, local time.Time, loc *time.Location) bool {
	if lastFired == nil {
		return false
	}

	last := lastFired.In(loc)

	return last.Year() == local.Year() && last.YearDay() == local.YearDay()
}
