package store

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"footprint-chart/internal/model"
)

// JSONSaver stores an indented array of bars. Load accepts ISO-8601 or epoch times.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) Save(bars []model.Bar, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create json")
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if bars == nil {
		bars = []model.Bar{}
	}
	if err := enc.Encode(bars); err != nil {
		return errors.Wrap(err, "encode json")
	}
	return f.Close()
}

func (JSONSaver) Load(path string) ([]model.Bar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read json")
	}
	var bars []model.Bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return bars, nil
}
