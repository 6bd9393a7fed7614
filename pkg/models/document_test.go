package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/finnews/pkg/utils"
)

func TestLocalTimeWritesWIB(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"utc offset", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), `"2024-05-01T17:00:00"`},
		{"already wib", time.Date(2024, 5, 1, 10, 0, 0, 0, utils.WIB), `"2024-05-01T10:00:00"`},
		{"fractional", time.Date(2024, 5, 1, 22, 30, 0, 500000000, time.FixedZone("CET", 3600)), `"2024-05-02T04:30:00.5"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(LocalTime{Time: tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))

			var back LocalTime
			require.NoError(t, json.Unmarshal(b, &back))
			assert.True(t, back.Equal(tt.in), "round trip moved %v to %v", tt.in, back.Time)
		})
	}
}

func TestLocalTimeParsesOffset(t *testing.T) {
	var lt LocalTime
	require.NoError(t, json.Unmarshal([]byte(`"2024-05-01T10:00:00+00:00"`), &lt))
	assert.True(t, lt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

	b, err := json.Marshal(lt)
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01T17:00:00"`, string(b))
}

func TestLocalTimeZero(t *testing.T) {
	b, err := json.Marshal(LocalTime{})
	require.NoError(t, err)
	assert.Equal(t, `"0001-01-01T00:00:00"`, string(b))

	var lt LocalTime
	require.NoError(t, json.Unmarshal([]byte(`null`), &lt))
	assert.True(t, lt.IsZero())
}
