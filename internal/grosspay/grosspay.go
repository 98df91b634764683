// Package grosspay turns approved time entries for a pay period into
// regular and overtime hours and pay.
//
// Overtime is attributed per calendar week (Sunday start). Only the entries
// inside the pay period are seen, so a week that straddles two periods is
// split between them and each part is measured against the full weekly
// threshold on its own. That can attribute less overtime than a pure weekly
// calculation would. This matches the behaviour payroll has always had and
// is kept until a change is confirmed.
package grosspay

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	employeedomain "github.com/smallbiznis/payrun/internal/employee/domain"
	"github.com/smallbiznis/payrun/internal/money"
)

var (
	ErrInvalidPeriod  = errors.New("invalid_pay_period")
	ErrInvalidRate    = errors.New("invalid_pay_rate")
	ErrNegativeHours  = errors.New("negative_hours")
	ErrInvalidOptions = errors.New("invalid_overtime_options")
)

type Period struct {
	Start time.Time
	End   time.Time
}

// Contains compares calendar dates in UTC, both ends inclusive.
func (p Period) Contains(t time.Time) bool {
	day := civilDate(t)
	return !day.Before(civilDate(p.Start)) && !day.After(civilDate(p.End))
}

type Rates struct {
	Regular decimal.Decimal
	// Overtime overrides Regular x multiplier when set.
	Overtime *decimal.Decimal
}

type Options struct {
	OvertimeMultiplier decimal.Decimal
	WeeklyThreshold    decimal.Decimal
}

func DefaultOptions() Options {
	return Options{
		OvertimeMultiplier: decimal.RequireFromString("1.5"),
		WeeklyThreshold:    decimal.NewFromInt(40),
	}
}

type Week struct {
	Start         time.Time
	Hours         decimal.Decimal
	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal
}

type Result struct {
	HoursWorked   decimal.Decimal
	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal
	RegularRate   decimal.Decimal
	OvertimeRate  decimal.Decimal
	RegularPay    decimal.Decimal
	OvertimePay   decimal.Decimal
	GrossPay      decimal.Decimal
	Weeks         []Week
}

// Calculate computes gross pay. Entries that are not approved or fall
// outside the period are ignored. RegularPay and OvertimePay are rounded to
// cents and GrossPay is their sum.
func Calculate(entries []employeedomain.TimeEntry, period Period, rates Rates, opts Options) (Result, error) {
	if period.End.Before(period.Start) {
		return Result{}, ErrInvalidPeriod
	}
	if rates.Regular.IsNegative() {
		return Result{}, ErrInvalidRate
	}
	if rates.Overtime != nil && rates.Overtime.IsNegative() {
		return Result{}, ErrInvalidRate
	}
	if !opts.WeeklyThreshold.IsPositive() || opts.OvertimeMultiplier.LessThan(decimal.NewFromInt(1)) {
		return Result{}, ErrInvalidOptions
	}

	overtimeRate := rates.Regular.Mul(opts.OvertimeMultiplier)
	if rates.Overtime != nil {
		overtimeRate = *rates.Overtime
	}

	byWeek := map[time.Time]decimal.Decimal{}
	for _, entry := range entries {
		if entry.Status != employeedomain.TimeEntryStatusApproved {
			continue
		}
		if !period.Contains(entry.Date) {
			continue
		}
		if entry.HoursWorked.IsNegative() {
			return Result{}, fmt.Errorf("%w: entry %s", ErrNegativeHours, entry.ID)
		}
		week := WeekStart(entry.Date)
		byWeek[week] = byWeek[week].Add(entry.HoursWorked)
	}

	starts := make([]time.Time, 0, len(byWeek))
	for start := range byWeek {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	res := Result{
		HoursWorked:   decimal.Zero,
		RegularHours:  decimal.Zero,
		OvertimeHours: decimal.Zero,
		RegularRate:   rates.Regular,
		OvertimeRate:  overtimeRate,
		Weeks:         make([]Week, 0, len(starts)),
	}
	for _, start := range starts {
		hours := byWeek[start]
		regular := money.Min(hours, opts.WeeklyThreshold)
		overtime := money.ClampZero(hours.Sub(opts.WeeklyThreshold))

		res.Weeks = append(res.Weeks, Week{
			Start:         start,
			Hours:         hours,
			RegularHours:  regular,
			OvertimeHours: overtime,
		})
		res.HoursWorked = res.HoursWorked.Add(hours)
		res.RegularHours = res.RegularHours.Add(regular)
		res.OvertimeHours = res.OvertimeHours.Add(overtime)
	}

	res.RegularPay = money.RoundCents(res.RegularHours.Mul(rates.Regular))
	res.OvertimePay = money.RoundCents(res.OvertimeHours.Mul(overtimeRate))
	res.GrossPay = res.RegularPay.Add(res.OvertimePay)
	return res, nil
}

// WeekStart returns the Sunday on or before t's calendar date, at midnight UTC.
func WeekStart(t time.Time) time.Time {
	day := civilDate(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
