package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint-chart/internal/model"
)

const t0 = int64(1_714_557_600_000) // 2024-05-01T10:00:00Z

func sampleBars() []model.Bar {
	return []model.Bar{
		{
			Time: t0, Open: 100, High: 101.5, Low: 99.5, Close: 101,
			Footprint: []model.FootprintLevel{
				{Price: 101.5, Buy: 1.25},
				{Price: 100, Buy: 2, Sell: 3.5},
			},
		},
		{Time: t0 + 60_000, Open: 101, High: 101, Low: 101, Close: 101},
	}
}

func TestNewSaver(t *testing.T) {
	for _, f := range []string{"csv", " Parquet ", "JSON"} {
		s, err := NewSaver(f)
		require.NoError(t, err, f)
		assert.Equal(t, strings.ToLower(strings.TrimSpace(f)), s.Extension())
	}
	_, err := NewSaver("xlsx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSavers_RoundTrip(t *testing.T) {
	for _, format := range []string{"csv", "parquet", "json"} {
		t.Run(format, func(t *testing.T) {
			s, err := NewSaver(format)
			require.NoError(t, err)
			path := filepath.Join(t.TempDir(), "history."+s.Extension())

			require.NoError(t, s.Save(sampleBars(), path))
			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, sampleBars(), got)
		})
	}
}

func TestLoad_UnknownExtension(t *testing.T) {
	_, err := Load("bars.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestJSONLoad_AcceptsISOTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"time":"2024-05-01T10:00:00Z","open":1,"high":2,"low":0.5,"close":1.5}]`), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t0, got[0].Time)
}

func TestReadCSV_SkipsMalformedRows(t *testing.T) {
	src := "time,open,high,low,close,footprint\n" +
		"1,1,1,1,1,1:2:3\n" +
		"x,1,1,1,1,\n" +
		"2,1,1,1,1,1:2\n" +
		"3,1,1,1,1,\n" +
		"4,1,1\n"
	bars, skipped, err := readCSV(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	require.Len(t, bars, 2)
	assert.Equal(t, []model.FootprintLevel{{Price: 1, Buy: 2, Sell: 3}}, bars[0].Footprint)
	assert.Nil(t, bars[1].Footprint)

	_, _, err = readCSV(strings.NewReader("a,b\n1,2\n"))
	assert.Error(t, err)
}

func TestRecorder_DailyFilesAndLoadRecent(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, nil)

	day := int64(86_400_000)
	r.Record(model.Bar{Time: t0, Close: 1})
	r.Record(model.Bar{Time: t0 + 60_000, Close: 2})
	r.Record(model.Bar{Time: t0 + day, Close: 3})
	r.Record(model.Bar{Time: t0 + day, Close: 4}) // rewritten bar, newest wins
	r.Close()
	r.Close()
	r.Record(model.Bar{Time: t0 + 2*day})

	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "2024-05-01.csv", filepath.Base(files[0]))
	assert.Equal(t, "2024-05-02.csv", filepath.Base(files[1]))

	got, err := LoadRecent(dir, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{1, 2, 4}, []float64{got[0].Close, got[1].Close, got[2].Close})

	got, err = LoadRecent(dir, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, t0+60_000, got[0].Time)
	assert.Equal(t, uint64(0), r.Dropped())
}

func TestLoadRecent_MissingDir(t *testing.T) {
	got, err := LoadRecent(filepath.Join(t.TempDir(), "nope"), 10)
	require.NoError(t, err)
	assert.Nil(t, got)
}
