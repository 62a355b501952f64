package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidInterval = errors.New("invalid_interval")

// Interval is a recurring calendar duration ("1 month", "2 weeks").
// Calendar arithmetic (AddTo/SubFrom) follows real month lengths, while
// TotalDays uses fixed conversion factors (7 days/week, 4 weeks/month,
// 12 months/year) so proration fractions stay stable across cycles: one
// month counts as exactly 28 days.
type Interval struct {
	Years  int
	Months int
	Weeks  int
	Days   int
}

const (
	daysPerWeek   = 7
	weeksPerMonth = 4
	monthsPerYear = 12
)

// ParseInterval parses strings such as "1 month", "2 weeks 3 days".
func ParseInterval(s string) (Interval, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 || len(fields)%2 != 0 {
		return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}

	var iv Interval
	for i := 0; i < len(fields); i += 2 {
		n, err := strconv.Atoi(fields[i])
		if err != nil || n < 0 {
			return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
		}
		switch strings.TrimSuffix(fields[i+1], "s") {
		case "year":
			iv.Years += n
		case "month":
			iv.Months += n
		case "week":
			iv.Weeks += n
		case "day":
			iv.Days += n
		default:
			return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
		}
	}
	return iv, nil
}

// MustParseInterval is ParseInterval for static configuration.
func MustParseInterval(s string) Interval {
	iv, err := ParseInterval(s)
	if err != nil {
		panic(err)
	}
	return iv
}

func (iv Interval) IsZero() bool {
	return iv.Years == 0 && iv.Months == 0 && iv.Weeks == 0 && iv.Days == 0
}

func (iv Interval) AddTo(t time.Time) time.Time {
	return t.AddDate(iv.Years, iv.Months, iv.Weeks*daysPerWeek+iv.Days)
}

func (iv Interval) SubFrom(t time.Time) time.Time {
	return t.AddDate(-iv.Years, -iv.Months, -(iv.Weeks*daysPerWeek + iv.Days))
}

func (iv Interval) TotalDays() float64 {
	months := iv.Years*monthsPerYear + iv.Months
	return float64(months*weeksPerMonth*daysPerWeek + iv.Weeks*daysPerWeek + iv.Days)
}

func (iv Interval) String() string {
	var parts []string
	appendPart := func(n int, unit string) {
		if n == 0 {
			return
		}
		if n > 1 {
			unit += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, unit))
	}
	appendPart(iv.Years, "year")
	appendPart(iv.Months, "month")
	appendPart(iv.Weeks, "week")
	appendPart(iv.Days, "day")
	if len(parts) == 0 {
		return "0 days"
	}
	return strings.Join(parts, " ")
}
