package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidTime is returned when a bar time is neither an ISO-8601 string nor an epoch number.
var ErrInvalidTime = errors.New("invalid bar time")

// Epoch values below this are seconds, at or above it milliseconds.
const epochMillisThreshold = 1e12

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime normalizes a bar time into Unix milliseconds UTC.
func ParseTime(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return epochToMillis(float64(t))
	case int:
		return epochToMillis(float64(t))
	case float64:
		return epochToMillis(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidTime, "%q", t.String())
		}
		return epochToMillis(f)
	case time.Time:
		return t.UnixMilli(), nil
	case string:
		return parseTimeString(t)
	}
	return 0, errors.Wrapf(ErrInvalidTime, "unsupported type %T", v)
}

func parseTimeString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochToMillis(f)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidTime, "%q", s)
}

func epochToMillis(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Wrap(ErrInvalidTime, "non-finite epoch")
	}
	if math.Abs(f) < epochMillisThreshold {
		return int64(math.Round(f * 1000)), nil
	}
	return int64(math.Round(f)), nil
}

// MinuteStart truncates a Unix millisecond timestamp to its UTC minute.
func MinuteStart(ms int64) int64 {
	return FloorDiv(ms, 60_000) * 60_000
}

// FloorDiv is integer division rounding toward negative infinity.
func FloorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
