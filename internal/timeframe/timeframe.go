package timeframe

import (
	"time"

	"github.com/pkg/errors"

	"footprint-chart/internal/model"
)

// ErrUnknownTimeframe is returned for a name outside the registry.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

// Timeframe is a bucket width expressed as a multiple of the one-minute base.
type Timeframe struct {
	Name     string
	Multiple int64
}

var (
	Base = Timeframe{Name: "1m", Multiple: 1}
	M5   = Timeframe{Name: "5m", Multiple: 5}
	M15  = Timeframe{Name: "15m", Multiple: 15}
	M30  = Timeframe{Name: "30m", Multiple: 30}
	H1   = Timeframe{Name: "1h", Multiple: 60}
	H4   = Timeframe{Name: "4h", Multiple: 240}
)

// All lists the supported timeframes from finest to coarsest.
var All = []Timeframe{Base, M5, M15, M30, H1, H4}

var registry = make(map[string]Timeframe)

func init() {
	for _, tf := range All {
		registry[tf.Name] = tf
	}
}

// Get returns the timeframe registered under name.
func Get(name string) (Timeframe, error) {
	tf, ok := registry[name]
	if !ok {
		return Timeframe{}, errors.Wrapf(ErrUnknownTimeframe, "%q", name)
	}
	return tf, nil
}

// IsValid reports whether name is a registered timeframe.
func IsValid(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns every registered name in registry order.
func Names() []string {
	out := make([]string, 0, len(All))
	for _, tf := range All {
		out = append(out, tf.Name)
	}
	return out
}

// IsBase reports whether tf is the identity timeframe.
func (tf Timeframe) IsBase() bool { return tf.Multiple <= 1 }

// Duration is the bucket width.
func (tf Timeframe) Duration() time.Duration { return time.Duration(tf.Multiple) * time.Minute }

// BucketStart returns the UTC-aligned bucket start, in Unix ms, of the bucket holding ms:
// floor(minute / multiple) * multiple, with minute = floor(ms / 60000).
func (tf Timeframe) BucketStart(ms int64) int64 {
	m := max(tf.Multiple, 1)
	minute := model.FloorDiv(ms, 60_000)
	return model.FloorDiv(minute, m) * m * 60_000
}

// SameBucket reports whether a and b fall into one bucket.
func (tf Timeframe) SameBucket(a, b int64) bool {
	return tf.BucketStart(a) == tf.BucketStart(b)
}
