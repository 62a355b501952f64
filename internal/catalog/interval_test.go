package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("1 month")
	require.NoError(t, err)
	assert.Equal(t, Interval{Months: 1}, iv)

	iv, err = ParseInterval("2 weeks 3 days")
	require.NoError(t, err)
	assert.Equal(t, Interval{Weeks: 2, Days: 3}, iv)

	iv, err = ParseInterval("1 year")
	require.NoError(t, err)
	assert.Equal(t, Interval{Years: 1}, iv)

	_, err = ParseInterval("")
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = ParseInterval("soon")
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = ParseInterval("1 fortnight")
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestIntervalTotalDays(t *testing.T) {
	assert.Equal(t, float64(28), Interval{Months: 1}.TotalDays())
	assert.Equal(t, float64(7), Interval{Weeks: 1}.TotalDays())
	assert.Equal(t, float64(336), Interval{Years: 1}.TotalDays())
	assert.Equal(t, float64(1), Interval{Days: 1}.TotalDays())
}

func TestIntervalAddSub(t *testing.T) {
	base := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	iv := Interval{Months: 1}

	assert.Equal(t, time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC), iv.AddTo(base))
	assert.Equal(t, base, iv.SubFrom(iv.AddTo(base)))

	weekly := Interval{Weeks: 2}
	assert.Equal(t, base.AddDate(0, 0, 14), weekly.AddTo(base))
}

func TestIntervalString(t *testing.T) {
	assert.Equal(t, "1 month", Interval{Months: 1}.String())
	assert.Equal(t, "2 weeks 3 days", Interval{Weeks: 2, Days: 3}.String())
	assert.Equal(t, "0 days", Interval{}.String())

	roundTripped, err := ParseInterval(Interval{Years: 1, Days: 2}.String())
	require.NoError(t, err)
	assert.Equal(t, Interval{Years: 1, Days: 2}, roundTripped)
}
