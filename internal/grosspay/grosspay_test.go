package grosspay

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	employeedomain "github.com/smallbiznis/payrun/internal/employee/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func entry(id int64, date time.Time, hours string, status employeedomain.TimeEntryStatus) employeedomain.TimeEntry {
	return employeedomain.TimeEntry{
		ID:          snowflake.ID(id),
		EmployeeID:  1,
		Date:        date,
		HoursWorked: d(hours),
		Status:      status,
	}
}

func approved(id int64, date time.Time, hours string) employeedomain.TimeEntry {
	return entry(id, date, hours, employeedomain.TimeEntryStatusApproved)
}

func TestCalculateSingleWeekOvertime(t *testing.T) {
	// Sun 2023-01-01 .. Sat 2023-01-07, 45 hours.
	entries := []employeedomain.TimeEntry{
		approved(1, day(2023, 1, 2), "9"),
		approved(2, day(2023, 1, 3), "9"),
		approved(3, day(2023, 1, 4), "9"),
		approved(4, day(2023, 1, 5), "9"),
		approved(5, day(2023, 1, 6), "9"),
	}

	res, err := Calculate(entries, Period{Start: day(2023, 1, 1), End: day(2023, 1, 7)}, Rates{Regular: d("20")}, DefaultOptions())
	require.NoError(t, err)

	assert.True(t, res.HoursWorked.Equal(d("45")))
	assert.True(t, res.RegularHours.Equal(d("40")))
	assert.True(t, res.OvertimeHours.Equal(d("5")))
	assert.True(t, res.OvertimeRate.Equal(d("30")))
	assert.True(t, res.RegularPay.Equal(d("800")))
	assert.True(t, res.OvertimePay.Equal(d("150")))
	assert.True(t, res.GrossPay.Equal(d("950")))
	require.Len(t, res.Weeks, 1)
	assert.Equal(t, day(2023, 1, 1), res.Weeks[0].Start)
}

func TestCalculateGroupsByCalendarWeek(t *testing.T) {
	// Two weeks of 30 hours each: no overtime even though the period total is 60.
	entries := []employeedomain.TimeEntry{
		approved(1, day(2023, 1, 3), "30"),
		approved(2, day(2023, 1, 10), "30"),
	}
	res, err := Calculate(entries, Period{Start: day(2023, 1, 1), End: day(2023, 1, 14)}, Rates{Regular: d("10")}, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.OvertimeHours.IsZero())
	assert.True(t, res.RegularHours.Equal(d("60")))
	assert.Len(t, res.Weeks, 2)
}

func TestCalculateIgnoresUnapprovedAndOutOfPeriod(t *testing.T) {
	entries := []employeedomain.TimeEntry{
		approved(1, day(2023, 1, 2), "8"),
		entry(2, day(2023, 1, 3), "8", employeedomain.TimeEntryStatusPending),
		entry(3, day(2023, 1, 4), "8", employeedomain.TimeEntryStatusRejected),
		approved(4, day(2022, 12, 31), "8"),
		approved(5, day(2023, 1, 15), "8"),
	}
	res, err := Calculate(entries, Period{Start: day(2023, 1, 1), End: day(2023, 1, 14)}, Rates{Regular: d("10")}, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.HoursWorked.Equal(d("8")))
	assert.True(t, res.GrossPay.Equal(d("80")))
}

func TestCalculateStraddlingWeekIsSplitByPeriod(t *testing.T) {
	// Week of Sun 2023-01-08: 24h on Mon-Wed (period A), 24h on Thu-Sat (period B).
	// A pure weekly view would give 8h overtime; split by period each side has none.
	entries := []employeedomain.TimeEntry{
		approved(1, day(2023, 1, 9), "8"),
		approved(2, day(2023, 1, 10), "8"),
		approved(3, day(2023, 1, 11), "8"),
		approved(4, day(2023, 1, 12), "8"),
		approved(5, day(2023, 1, 13), "8"),
		approved(6, day(2023, 1, 14), "8"),
	}
	opts := DefaultOptions()
	rates := Rates{Regular: d("10")}

	a, err := Calculate(entries, Period{Start: day(2022, 12, 29), End: day(2023, 1, 11)}, rates, opts)
	require.NoError(t, err)
	b, err := Calculate(entries, Period{Start: day(2023, 1, 12), End: day(2023, 1, 25)}, rates, opts)
	require.NoError(t, err)

	assert.True(t, a.OvertimeHours.IsZero())
	assert.True(t, b.OvertimeHours.IsZero())
	assert.True(t, a.HoursWorked.Add(b.HoursWorked).Equal(d("48")))
}

func TestCalculateExplicitOvertimeRateAndRounding(t *testing.T) {
	ot := d("25.555")
	entries := []employeedomain.TimeEntry{approved(1, day(2023, 1, 2), "41")}
	res, err := Calculate(entries, Period{Start: day(2023, 1, 1), End: day(2023, 1, 7)}, Rates{Regular: d("15.333"), Overtime: &ot}, DefaultOptions())
	require.NoError(t, err)

	// 40 x 15.333 = 613.32; 1 x 25.555 = 25.555 -> 25.56
	assert.True(t, res.RegularPay.Equal(d("613.32")), "got %s", res.RegularPay)
	assert.True(t, res.OvertimePay.Equal(d("25.56")), "got %s", res.OvertimePay)
	assert.True(t, res.GrossPay.Equal(d("638.88")), "got %s", res.GrossPay)
}

func TestCalculateRejectsBadInput(t *testing.T) {
	period := Period{Start: day(2023, 1, 1), End: day(2023, 1, 7)}

	_, err := Calculate(nil, Period{Start: day(2023, 1, 7), End: day(2023, 1, 1)}, Rates{Regular: d("10")}, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = Calculate([]employeedomain.TimeEntry{approved(1, day(2023, 1, 2), "-1")}, period, Rates{Regular: d("10")}, DefaultOptions())
	assert.ErrorIs(t, err, ErrNegativeHours)

	_, err = Calculate(nil, period, Rates{Regular: d("-1")}, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, err = Calculate(nil, period, Rates{Regular: d("10")}, Options{OvertimeMultiplier: d("1.5")})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestCalculateNoEntries(t *testing.T) {
	res, err := Calculate(nil, Period{Start: day(2023, 1, 1), End: day(2023, 1, 14)}, Rates{Regular: d("10")}, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.GrossPay.IsZero())
	assert.Empty(t, res.Weeks)
}

func TestWeekStart(t *testing.T) {
	assert.Equal(t, day(2023, 1, 1), WeekStart(day(2023, 1, 1)))
	assert.Equal(t, day(2023, 1, 1), WeekStart(time.Date(2023, 1, 7, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, day(2023, 1, 8), WeekStart(day(2023, 1, 8)))
	assert.Equal(t, day(2022, 12, 25), WeekStart(day(2022, 12, 31)))
}
