package store

import (
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"footprint-chart/internal/model"
)

type levelRow struct {
	Price float64 `parquet:"price"`
	Buy   float64 `parquet:"buy"`
	Sell  float64 `parquet:"sell"`
}

type barRow struct {
	Time      int64      `parquet:"time"`
	Open      float64    `parquet:"open"`
	High      float64    `parquet:"high"`
	Low       float64    `parquet:"low"`
	Close     float64    `parquet:"close"`
	Footprint []levelRow `parquet:"footprint"`
}

// ParquetSaver stores bars with the footprint as a repeated group column.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(bars []model.Bar, path string) error {
	rows := make([]barRow, len(bars))
	for i, b := range bars {
		rows[i] = barRow{Time: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
		if len(b.Footprint) > 0 {
			rows[i].Footprint = make([]levelRow, len(b.Footprint))
			for j, l := range b.Footprint {
				rows[i].Footprint[j] = levelRow(l)
			}
		}
	}
	return errors.Wrap(parquet.WriteFile(path, rows), "write parquet")
}

func (ParquetSaver) Load(path string) ([]model.Bar, error) {
	rows, err := parquet.ReadFile[barRow](path)
	if err != nil {
		return nil, errors.Wrap(err, "read parquet")
	}
	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		bars[i] = model.Bar{Time: r.Time, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close}
		if len(r.Footprint) > 0 {
			bars[i].Footprint = make([]model.FootprintLevel, len(r.Footprint))
			for j, l := range r.Footprint {
				bars[i].Footprint[j] = model.FootprintLevel(l)
			}
		}
	}
	return bars, nil
}
