// Package dataset loads labelled tables from data sources.
//
// A Provider resolves a source identifier (a file path for CSVProvider) to a Table.
// Categorical columns are encoded to numeric codes by the provider, so the models
// only ever see float64 features. The label column is split off with SplitLabel
// before the features reach a model.
package dataset

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// Provider resolves data sources to tables.
type Provider interface {
	// Exists reports a *errors.DatasetNotFoundError when the source is absent.
	Exists(source string) error
	// Load reads the whole source. Malformed content yields *errors.DatasetLoadError.
	Load(source string) (*Table, error)
}

// Table is a rectangular dataset with named columns. Missing cells hold NaN. Data is
// nil when the source has a header but no rows.
type Table struct {
	Source  string
	Columns []string
	Data    *mat.Dense
}

// Rows returns the number of data rows.
func (t *Table) Rows() int {
	if t.Data == nil {
		return 0
	}
	r, _ := t.Data.Dims()
	return r
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// FeatureNames returns the columns without label.
func (t *Table) FeatureNames(label string) []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c != label {
			names = append(names, c)
		}
	}
	return names
}

// SplitLabel removes the label column and returns the feature matrix and the 0/1
// label vector. Missing (NaN) features become 0; a missing label is an error. A
// table without rows yields empty X and y.
func (t *Table) SplitLabel(label string) (*mat.Dense, *mat.VecDense, error) {
	if label == "" {
		return nil, nil, errors.NewValidationError("label", "must not be empty", label)
	}
	col := t.ColumnIndex(label)
	if col < 0 {
		return nil, nil, errors.NewDatasetLoadError(t.Source, errors.Newf("label column %q not found", label))
	}
	if len(t.Columns) < 2 {
		return nil, nil, errors.NewDatasetLoadError(t.Source, errors.Wrapf(errors.ErrEmptyData, "no feature columns besides %q", label))
	}

	rows := t.Rows()
	if rows == 0 {
		return &mat.Dense{}, &mat.VecDense{}, nil
	}

	nFeatures := len(t.Columns) - 1
	X := mat.NewDense(rows, nFeatures, nil)
	y := mat.NewVecDense(rows, nil)
	features := make([]float64, nFeatures)
	for i := 0; i < rows; i++ {
		v := t.Data.At(i, col)
		if _, err := model.BinaryLabel(v); err != nil {
			return nil, nil, errors.NewDatasetLoadError(t.Source, errors.Wrapf(err, "row %d, column %q", i+1, label))
		}
		y.SetVec(i, v)

		k := 0
		for j := range t.Columns {
			if j == col {
				continue
			}
			f := t.Data.At(i, j)
			if math.IsNaN(f) {
				f = 0
			}
			features[k] = f
			k++
		}
		X.SetRow(i, features)
	}
	return X, y, nil
}

// StaticProvider serves tables held in memory, keyed by their Source.
type StaticProvider struct {
	tables map[string]*Table
}

// NewStaticProvider builds a provider over the given tables.
func NewStaticProvider(tables ...*Table) *StaticProvider {
	p := &StaticProvider{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		p.tables[t.Source] = t
	}
	return p
}

// Exists implements Provider.
func (p *StaticProvider) Exists(source string) error {
	if _, ok := p.tables[source]; !ok {
		return errors.NewDatasetNotFoundError(source)
	}
	return nil
}

// Load implements Provider.
func (p *StaticProvider) Load(source string) (*Table, error) {
	t, ok := p.tables[source]
	if !ok {
		return nil, errors.NewDatasetNotFoundError(source)
	}
	return t, nil
}
