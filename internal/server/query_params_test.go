package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLimit(t *testing.T) {
	n, err := parseLimit("", 50, 200)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	n, err = parseLimit(" 200 ", 50, 200)
	require.NoError(t, err)
	assert.Equal(t, 200, n)

	for _, raw := range []string{"0", "201", "-1", "ten"} {
		_, err := parseLimit(raw, 50, 200)
		assert.ErrorIs(t, err, errBadQueryValue, raw)
	}
}

func TestParseSnowflakeParam(t *testing.T) {
	id, err := parseSnowflakeParam("")
	require.NoError(t, err)
	assert.Zero(t, id)

	id, err = parseSnowflakeParam("1234")
	require.NoError(t, err)
	assert.EqualValues(t, 1234, id)

	_, err = parseSnowflakeParam("abc")
	assert.ErrorIs(t, err, errBadQueryValue)
}

func TestParseTimeBoundWidensBareDates(t *testing.T) {
	start, err := parseTimeBound("2024-03-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *start)

	end, err := parseTimeBound("2024-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999999999, time.UTC), *end)

	exact, err := parseTimeBound("2024-03-01T10:00:00+01:00", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), *exact)

	none, err := parseTimeBound("  ", true)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = parseTimeBound("yesterday", false)
	assert.ErrorIs(t, err, errBadQueryValue)
}
