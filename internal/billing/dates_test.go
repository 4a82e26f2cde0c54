package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func TestAddBillingMonth_ClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"jan 31 non-leap", date(2023, time.January, 31), date(2023, time.February, 28)},
		{"jan 31 leap", date(2024, time.January, 31), date(2024, time.February, 29)},
		{"feb 28 keeps day", date(2023, time.February, 28), date(2023, time.March, 28)},
		{"feb 29 leap", date(2024, time.February, 29), date(2024, time.March, 29)},
		{"mar 31 to apr 30", date(2024, time.March, 31), date(2024, time.April, 30)},
		{"dec rolls year", date(2024, time.December, 31), date(2025, time.January, 31)},
		{"mid month", date(2024, time.June, 15), date(2024, time.July, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddBillingMonth(tt.from))
		})
	}
}

func TestAddBillingMonth_Properties(t *testing.T) {
	for _, year := range []int{2023, 2024, 2100} {
		start := time.Date(year, time.January, 1, 23, 59, 59, 999, time.UTC)
		for d := start; d.Year() == year; d = d.AddDate(0, 0, 1) {
			got := AddBillingMonth(d)

			wantMonth := (int(d.Month()) % 12) + 1
			require.Equal(t, wantMonth, int(got.Month()), "from %s", d)
			require.LessOrEqual(t, got.Day(), d.Day(), "from %s", d)
			require.True(t, got.After(d), "from %s", d)
			require.Equal(t, d.Hour(), got.Hour())
			require.Equal(t, d.Nanosecond(), got.Nanosecond())

			if d.Day() <= 28 {
				require.Equal(t, d.Day(), got.Day(), "from %s", d)
			}
		}
	}
}

func TestAddBillingMonths_ChainedVersusSingleStep(t *testing.T) {
	from := date(2024, time.January, 31)
	// Chaining clamps once (Feb 29) and stays there; a single jump keeps the 31st where possible.
	chained := AddBillingMonth(AddBillingMonth(from))
	assert.Equal(t, date(2024, time.March, 29), chained)
	assert.Equal(t, date(2024, time.March, 31), AddBillingMonths(from, 2))
}

func TestRenewalBase(t *testing.T) {
	now := date(2024, time.May, 1)
	end := date(2024, time.May, 20)

	assert.Equal(t, now, RenewalBase(nil, now))
	assert.Equal(t, end, RenewalBase(&end, now))

	var zero time.Time
	assert.Equal(t, now, RenewalBase(&zero, now))
}
