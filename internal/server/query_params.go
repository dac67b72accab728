package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var errBadQueryValue = errors.New("bad_query_value")

// parseLimit returns def for an empty value and rejects anything outside [1, max].
func parseLimit(raw string, def, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, errBadQueryValue
	}
	return n, nil
}

// parseSnowflakeParam returns 0 for an empty value.
func parseSnowflakeParam(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, errBadQueryValue
	}
	return id, nil
}

// parseTimeBound accepts RFC3339 or a bare date. A bare date is widened to
// the start of the day, or to its last instant when upper is set.
func parseTimeBound(raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return nil, errBadQueryValue
	}
	if upper {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}
