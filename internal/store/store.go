package store

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"footprint-chart/internal/model"
)

// ErrUnsupportedFormat is returned for formats other than csv, parquet and json.
var ErrUnsupportedFormat = errors.New("store: unsupported format")

// Saver persists bar history in one file format.
type Saver interface {
	Save(bars []model.Bar, path string) error
	Load(path string) ([]model.Bar, error)
	Extension() string
}

// NewSaver returns the implementation for format (csv, parquet, json).
func NewSaver(format string) (Saver, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}, nil
	case "parquet":
		return ParquetSaver{}, nil
	case "json":
		return JSONSaver{}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "%q (use csv, parquet, json)", format)
}

// SaverFor picks the saver from the extension of path.
func SaverFor(path string) (Saver, error) {
	return NewSaver(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Load reads path with the saver its extension names.
func Load(path string) ([]model.Bar, error) {
	s, err := SaverFor(path)
	if err != nil {
		return nil, err
	}
	return s.Load(path)
}
