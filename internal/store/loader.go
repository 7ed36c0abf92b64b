package store

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"footprint-chart/internal/model"
)

// LoadRecent reads the newest daily recorder files in dir and returns up to
// limit bars, oldest first. Newer files win on duplicate bar times.
// A missing dir is not an error.
func LoadRecent(dir string, limit int) ([]model.Bar, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, errors.Wrap(err, "glob history")
	}
	if len(files) == 0 || limit <= 0 {
		return nil, nil
	}
	// YYYY-MM-DD.csv sorts chronologically
	sort.Strings(files)

	byTime := make(map[int64]model.Bar)
	for i := len(files) - 1; i >= 0 && len(byTime) < limit; i-- {
		f, err := os.Open(files[i])
		if err != nil {
			return nil, errors.Wrap(err, "open history")
		}
		bars, _, err := readCSV(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", files[i])
		}
		// within a file the last row for a time is the newest
		for j := len(bars) - 1; j >= 0; j-- {
			if _, seen := byTime[bars[j].Time]; !seen {
				byTime[bars[j].Time] = bars[j]
			}
		}
	}

	out := make([]model.Bar, 0, len(byTime))
	for _, b := range byTime {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
