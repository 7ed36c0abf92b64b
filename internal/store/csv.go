package store

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"footprint-chart/internal/model"
)

// csvHeader is shared by CSVSaver and the daily Recorder files.
// footprint is "price:buy:sell" entries joined by '|'.
var csvHeader = []string{"time", "open", "high", "low", "close", "footprint"}

// CSVSaver stores one bar per row.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(bars []model.Bar, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, b := range bars {
		if err := w.Write(encodeRow(b)); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "flush csv")
	}
	return f.Close()
}

func (CSVSaver) Load(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open csv")
	}
	defer f.Close()

	bars, _, err := readCSV(f)
	return bars, errors.Wrapf(err, "read %s", path)
}

func encodeRow(b model.Bar) []string {
	levels := make([]string, len(b.Footprint))
	for i, l := range b.Footprint {
		levels[i] = floatStr(l.Price) + ":" + floatStr(l.Buy) + ":" + floatStr(l.Sell)
	}
	return []string{
		strconv.FormatInt(b.Time, 10),
		floatStr(b.Open),
		floatStr(b.High),
		floatStr(b.Low),
		floatStr(b.Close),
		strings.Join(levels, "|"),
	}
}

// readCSV decodes rows after the header. Malformed rows are skipped and counted:
// a crash can leave a torn last line in a recorder file.
func readCSV(r io.Reader) ([]model.Bar, int, error) {
	cr := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if len(header) < len(csvHeader) || strings.TrimSpace(header[0]) != csvHeader[0] {
		return nil, 0, errors.Errorf("unexpected header %v", header)
	}

	var (
		bars    []model.Bar
		skipped int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return bars, skipped, nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return bars, skipped, err
		}
		b, ok := decodeRow(rec)
		if !ok {
			skipped++
			continue
		}
		bars = append(bars, b)
	}
}

func decodeRow(rec []string) (model.Bar, bool) {
	if len(rec) < len(csvHeader) {
		return model.Bar{}, false
	}
	var (
		b   model.Bar
		err error
		ok  = true
	)
	if b.Time, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
		return model.Bar{}, false
	}
	parse := func(s string) float64 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			ok = false
		}
		return v
	}
	b.Open, b.High, b.Low, b.Close = parse(rec[1]), parse(rec[2]), parse(rec[3]), parse(rec[4])

	if rec[5] != "" {
		for _, cell := range strings.Split(rec[5], "|") {
			parts := strings.Split(cell, ":")
			if len(parts) != 3 {
				return model.Bar{}, false
			}
			b.Footprint = append(b.Footprint, model.FootprintLevel{
				Price: parse(parts[0]), Buy: parse(parts[1]), Sell: parse(parts[2]),
			})
		}
	}
	return b, ok
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
