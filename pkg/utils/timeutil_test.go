package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNowWIB(t *testing.T) {
	now := NowWIB()
	loc := now.Location().String()
	if loc != "Asia/Jakarta" && loc != "WIB" {
		t.Errorf("NowWIB() location = %s, want Asia/Jakarta or WIB", loc)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-15T08:30:00Z", time.Date(2024, 3, 15, 8, 30, 0, 0, WIB)},
		{"2024-03-15T08:30:00.250Z", time.Date(2024, 3, 15, 8, 30, 0, 250_000_000, WIB)},
		{"2024-03-15 08:30:00", time.Date(2024, 3, 15, 8, 30, 0, 0, WIB)},
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, WIB)},
		{"Mar 15, 2024", time.Date(2024, 3, 15, 0, 0, 0, 0, WIB)},
		{"15 Mar 2024", time.Date(2024, 3, 15, 0, 0, 0, 0, WIB)},
		{"March 15, 2024", time.Date(2024, 3, 15, 0, 0, 0, 0, WIB)},
		{"15 March 2024", time.Date(2024, 3, 15, 0, 0, 0, 0, WIB)},
		{"published on 2024/3/5 by desk", time.Date(2024, 3, 5, 0, 0, 0, 0, WIB)},
		{"ref 2024-3-5", time.Date(2024, 3, 5, 0, 0, 0, 0, WIB)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}

	for _, bad := range []string{"", "yesterday", "2024-13-45"} {
		_, ok := ParseDate(bad)
		assert.False(t, ok, "ParseDate(%q) should fail", bad)
	}
}

func TestParseDateRFC3339KeepsInstant(t *testing.T) {
	got, ok := ParseDate("2024-03-15T08:30:00+07:00")
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 3, 15, 1, 30, 0, 0, time.UTC)))
}

func TestEffectiveDate(t *testing.T) {
	fixed := time.Date(2030, 1, 1, 12, 0, 0, 0, WIB)
	now := func() time.Time { return fixed }

	t.Run("published_at wins", func(t *testing.T) {
		got := EffectiveDate("2024-05-01", "On 3 June 2023 the bank said", now)
		assert.Equal(t, 2024, got.Year())
		assert.Equal(t, time.May, got.Month())
	})

	t.Run("unparseable published_at falls back to now", func(t *testing.T) {
		got := EffectiveDate("sometime", "On 3 June 2023 the bank said", now)
		assert.True(t, got.Equal(fixed))
	})

	t.Run("day month year in content", func(t *testing.T) {
		got := EffectiveDate("", "JAKARTA, 3 June 2023 - The bank said", now)
		assert.True(t, got.Equal(time.Date(2023, 6, 3, 0, 0, 0, 0, WIB)))
	})

	t.Run("month day year in content", func(t *testing.T) {
		got := EffectiveDate("", "Reported June 3, 2023 by the exchange", now)
		assert.True(t, got.Equal(time.Date(2023, 6, 3, 0, 0, 0, 0, WIB)))
	})

	t.Run("iso date in content", func(t *testing.T) {
		got := EffectiveDate("", "filing dated 2023-06-03.", now)
		assert.True(t, got.Equal(time.Date(2023, 6, 3, 0, 0, 0, 0, WIB)))
	})

	t.Run("no date anywhere", func(t *testing.T) {
		got := EffectiveDate("", "no dates here", now)
		assert.True(t, got.Equal(fixed))
	})
}
