package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
	"github.com/YuminosukeSato/holdout/pkg/log"
)

var defaultMissing = []string{"", "NA", "NaN", "nan", "null"}

// CSVProvider reads comma-separated files with a header row. A column whose first
// non-missing value is not a number is label-encoded through the shared
// CategoricalEncoder; the encoder keeps that column type for every later read.
type CSVProvider struct {
	encoder *CategoricalEncoder
	comma   rune
	missing map[string]struct{}
	logger  log.Logger
}

// CSVOption configures a CSVProvider.
type CSVOption func(*CSVProvider)

// WithComma sets the field delimiter.
func WithComma(r rune) CSVOption {
	return func(p *CSVProvider) { p.comma = r }
}

// WithEncoder shares an encoder between providers.
func WithEncoder(e *CategoricalEncoder) CSVOption {
	return func(p *CSVProvider) { p.encoder = e }
}

// WithMissingValues replaces the tokens treated as missing.
func WithMissingValues(tokens ...string) CSVOption {
	return func(p *CSVProvider) {
		p.missing = make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			p.missing[t] = struct{}{}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) CSVOption {
	return func(p *CSVProvider) { p.logger = l }
}

// NewCSVProvider creates a provider with its own encoder unless one is supplied.
func NewCSVProvider(opts ...CSVOption) *CSVProvider {
	p := &CSVProvider{
		encoder: NewCategoricalEncoder(),
		comma:   ',',
		logger:  log.Nop(),
	}
	WithMissingValues(defaultMissing...)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Encoder returns the encoder used for categorical columns.
func (p *CSVProvider) Encoder() *CategoricalEncoder { return p.encoder }

// Exists implements Provider. Directories do not count as datasets.
func (p *CSVProvider) Exists(source string) error {
	info, err := os.Stat(source)
	if err != nil || info.IsDir() {
		return errors.NewDatasetNotFoundError(source)
	}
	return nil
}

func (p *CSVProvider) open(source string) (*os.File, *csv.Reader, []string, error) {
	f, err := os.Open(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil, errors.NewDatasetNotFoundError(source)
		}
		return nil, nil, nil, errors.NewDatasetLoadError(source, err)
	}
	r := csv.NewReader(bufio.NewReader(f))
	r.Comma = p.comma
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			err = errors.New("missing header row")
		}
		return nil, nil, nil, errors.NewDatasetLoadError(source, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return f, r, header, nil
}

func (p *CSVProvider) isMissing(cell string) bool {
	_, ok := p.missing[strings.TrimSpace(cell)]
	return ok
}

// Load implements Provider. Missing cells, and cells that do not parse in a
// numeric column, are stored as NaN; SplitLabel imputes them for features only.
func (p *CSVProvider) Load(source string) (*Table, error) {
	f, r, header, err := p.open(source)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.NewDatasetLoadError(source, err)
	}

	table := &Table{Source: source, Columns: header}
	if len(records) == 0 {
		return table, nil
	}

	conv := newConversions(source, header, p.logger)
	data := mat.NewDense(len(records), len(header), nil)
	for i, rec := range records {
		for j, cell := range rec {
			data.Set(i, j, p.cell(conv, j, cell))
		}
	}
	table.Data = data

	p.logger.Debug("dataset loaded",
		log.SourceKey, source,
		log.SamplesKey, len(records),
		log.FeaturesKey, len(header),
	)
	return table, nil
}

// kind returns the type of column. A column the encoder has not seen yet is typed by
// its first non-missing cell, and that type then holds for every later read.
func (p *CSVProvider) kind(column, cell string) (categorical, known bool) {
	if categorical, known = p.encoder.Kind(column); known {
		return categorical, true
	}
	if p.isMissing(cell) {
		return false, false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	return p.encoder.Fix(column, err != nil), true
}

// cell converts one field of column j to a float, NaN when it is missing.
func (p *CSVProvider) cell(conv *conversions, j int, cell string) float64 {
	name := conv.header[j]
	categorical, known := p.kind(name, cell)
	cell = strings.TrimSpace(cell)
	if !known || p.isMissing(cell) {
		return math.NaN()
	}
	if categorical {
		conv.note(j, "string", "float64")
		return p.encoder.Encode(name, cell)
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		conv.note(j, "string", "missing")
		return math.NaN()
	}
	return v
}

// conversions emits one DataConversionWarning per column and read.
type conversions struct {
	source string
	header []string
	seen   []bool
	logger log.Logger
}

func newConversions(source string, header []string, logger log.Logger) *conversions {
	return &conversions{source: source, header: header, seen: make([]bool, len(header)), logger: logger}
}

func (c *conversions) note(j int, from, to string) {
	if c.seen[j] {
		return
	}
	c.seen[j] = true
	errors.Warn(errors.NewDataConversionWarning(c.source, c.header[j], from, to))
	c.logger.Debug("converting column", log.SourceKey, c.source, "column", c.header[j], "to", to)
}

// Stream reads source row by row and sends labelled samples until the file ends or
// ctx is done. Columns are typed the same way as in Load, and missing feature cells
// become 0. A missing or non-binary label ends the stream with a DatasetLoadError.
// The error channel receives at most one error and is closed together with the
// sample channel.
func (p *CSVProvider) Stream(ctx context.Context, source, label string) (<-chan model.Sample, <-chan error) {
	out := make(chan model.Sample)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(out)

		f, r, header, err := p.open(source)
		if err != nil {
			errc <- err
			return
		}
		defer f.Close()
		r.ReuseRecord = true

		labelCol := -1
		for j, name := range header {
			if name == label {
				labelCol = j
			}
		}
		if labelCol < 0 {
			errc <- errors.NewDatasetLoadError(source, errors.Newf("label column %q not found", label))
			return
		}

		conv := newConversions(source, header, p.logger)
		for row := 1; ; row++ {
			rec, err := r.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errc <- errors.NewDatasetLoadError(source, err)
				return
			}

			x := make([]float64, 0, len(header)-1)
			var y int
			for j, cell := range rec {
				if j == labelCol {
					var perr error
					if y, perr = model.BinaryLabel(p.cell(conv, j, cell)); perr != nil {
						errc <- errors.NewDatasetLoadError(source, errors.Wrapf(errors.ErrNonBinaryLabel, "row %d: %q", row, cell))
						return
					}
					continue
				}
				v := p.cell(conv, j, cell)
				if math.IsNaN(v) {
					v = 0
				}
				x = append(x, v)
			}

			select {
			case out <- model.Sample{X: x, Y: y}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()
	return out, errc
}
