package dataset

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCSVProvider_LoadAndSplit(t *testing.T) {
	path := writeCSV(t, "window.csv", "AGE,WARD,SEPSIS\n61,icu,1\n45,er,0\n70,icu,1\n")

	p := NewCSVProvider()
	require.NoError(t, p.Exists(path))

	table, err := p.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AGE", "WARD", "SEPSIS"}, table.Columns)
	assert.Equal(t, 3, table.Rows())

	X, y, err := table.SplitLabel("SEPSIS")
	require.NoError(t, err)
	r, c := X.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []float64{1, 0, 1}, y.RawVector().Data)
	assert.Equal(t, []float64{61, 0}, mat.Row(nil, 0, X))
	assert.Equal(t, []float64{45, 1}, mat.Row(nil, 1, X))
	assert.Equal(t, []float64{70, 0}, mat.Row(nil, 2, X))
	assert.Equal(t, []string{"AGE", "WARD"}, table.FeatureNames("SEPSIS"))
}

func TestCSVProvider_SharedEncoderKeepsCodes(t *testing.T) {
	train := writeCSV(t, "train.csv", "WARD,Y\nicu,1\ner,0\n")
	holdout := writeCSV(t, "holdout.csv", "WARD,Y\ner,0\nward7,1\nicu,1\n")

	p := NewCSVProvider()
	_, err := p.Load(train)
	require.NoError(t, err)
	table, err := p.Load(holdout)
	require.NoError(t, err)

	X, _, err := table.SplitLabel("Y")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 0}, mat.Col(nil, 0, X))
	assert.Equal(t, map[string]int{"icu": 0, "er": 1, "ward7": 2}, p.Encoder().Mapping("WARD"))
	assert.Equal(t, []string{"WARD"}, p.Encoder().Columns())
}

func TestCSVProvider_MissingValues(t *testing.T) {
	path := writeCSV(t, "gaps.csv", "A,B,Y\n1.5,,0\nNA,2,1\n")
	table, err := NewCSVProvider().Load(path)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(table.Data.At(0, 1)))
	X, _, err := table.SplitLabel("Y")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 0, 0, 2}, X.RawMatrix().Data)
}

func TestCSVProvider_MissingLabelIsAnError(t *testing.T) {
	for name, content := range map[string]string{
		"empty": "F,Y\n1,1\n2,\n3,0\n",
		"NA":    "F,Y\n1,1\n2,NA\n3,0\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := writeCSV(t, "labels.csv", content)
			p := NewCSVProvider()

			table, err := p.Load(path)
			require.NoError(t, err)
			_, _, err = table.SplitLabel("Y")
			var loadErr *errors.DatasetLoadError
			require.ErrorAs(t, err, &loadErr)
			assert.ErrorIs(t, err, errors.ErrNonBinaryLabel)
			assert.Contains(t, err.Error(), "row 2")

			samples, errc := p.Stream(context.Background(), path, "Y")
			for range samples {
			}
			require.ErrorAs(t, <-errc, &loadErr, "Stream and Load agree on missing labels")
		})
	}
}

func TestCSVProvider_ColumnTypeFixedAtFirstRead(t *testing.T) {
	train := writeCSV(t, "train.csv", "AGE,Y\n70,1\n?,0\n30,1\n")
	holdout := writeCSV(t, "holdout.csv", "AGE,Y\n70,1\n30,0\n")
	p := NewCSVProvider()

	samples, errc := p.Stream(context.Background(), train, "Y")
	var got [][]float64
	for s := range samples {
		got = append(got, s.X)
	}
	require.NoError(t, <-errc)
	assert.Equal(t, [][]float64{{70}, {0}, {30}}, got, "an unparsable cell in a numeric column is missing")

	table, err := p.Load(holdout)
	require.NoError(t, err)
	X, _, err := table.SplitLabel("Y")
	require.NoError(t, err)
	assert.Equal(t, []float64{70, 30}, mat.Col(nil, 0, X))
	assert.Empty(t, p.Encoder().Mapping("AGE"))

	categorical, known := p.Encoder().Kind("AGE")
	assert.True(t, known)
	assert.False(t, categorical)
}

func TestCSVProvider_LoadAndStreamAgree(t *testing.T) {
	content := "AGE,WARD,Y\n,icu,1\n61,?,0\nx,er,1\n45,5,0\n"
	path := writeCSV(t, "window.csv", content)

	loaded, err := NewCSVProvider().Load(path)
	require.NoError(t, err)
	X, _, err := loaded.SplitLabel("Y")
	require.NoError(t, err)

	samples, errc := NewCSVProvider().Stream(context.Background(), path, "Y")
	var streamed []float64
	for s := range samples {
		streamed = append(streamed, s.X...)
	}
	require.NoError(t, <-errc)
	assert.Equal(t, X.RawMatrix().Data, streamed)
}

func TestCSVProvider_Errors(t *testing.T) {
	p := NewCSVProvider()
	missing := filepath.Join(t.TempDir(), "absent.csv")

	var notFound *errors.DatasetNotFoundError
	require.ErrorAs(t, p.Exists(missing), &notFound)
	assert.Equal(t, missing, notFound.Source)
	_, err := p.Load(missing)
	require.ErrorAs(t, err, &notFound)

	require.ErrorAs(t, p.Exists(t.TempDir()), &notFound, "directories are not datasets")

	var loadErr *errors.DatasetLoadError
	ragged := writeCSV(t, "ragged.csv", "A,Y\n1,0\n2,1,9\n")
	_, err = p.Load(ragged)
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ragged, loadErr.Source)

	empty := writeCSV(t, "empty.csv", "")
	_, err = p.Load(empty)
	require.ErrorAs(t, err, &loadErr)
}

func TestTable_SplitLabelErrors(t *testing.T) {
	table := &Table{
		Source:  "mem",
		Columns: []string{"A", "Y"},
		Data:    mat.NewDense(2, 2, []float64{1, 0, 2, 3}),
	}

	_, _, err := table.SplitLabel("")
	var valErr *errors.ValidationError
	require.ErrorAs(t, err, &valErr)

	var loadErr *errors.DatasetLoadError
	_, _, err = table.SplitLabel("MISSING")
	require.ErrorAs(t, err, &loadErr)

	_, _, err = table.SplitLabel("Y")
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, errors.ErrNonBinaryLabel)

	headerOnly := &Table{Source: "mem", Columns: []string{"A", "Y"}}
	X, y, err := headerOnly.SplitLabel("Y")
	require.NoError(t, err)
	r, _ := X.Dims()
	assert.Zero(t, r)
	assert.Zero(t, y.Len())
}

func TestCSVProvider_Stream(t *testing.T) {
	path := writeCSV(t, "stream.csv", "A,WARD,Y\n1,icu,1\n2,er,0\n3,icu,1\n")
	p := NewCSVProvider()

	samples, errc := p.Stream(context.Background(), path, "Y")
	var got [][]float64
	var labels []int
	for s := range samples {
		got = append(got, s.X)
		labels = append(labels, s.Y)
	}
	require.NoError(t, <-errc)
	assert.Equal(t, [][]float64{{1, 0}, {2, 1}, {3, 0}}, got)
	assert.Equal(t, []int{1, 0, 1}, labels)

	bad := writeCSV(t, "bad.csv", "A,Y\n1,7\n")
	samples, errc = p.Stream(context.Background(), bad, "Y")
	for range samples {
	}
	err := <-errc
	var loadErr *errors.DatasetLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, errors.ErrNonBinaryLabel)
}

func TestCSVProvider_StreamCancel(t *testing.T) {
	path := writeCSV(t, "long.csv", "A,Y\n1,0\n2,1\n3,0\n")
	ctx, cancel := context.WithCancel(context.Background())

	samples, errc := NewCSVProvider().Stream(ctx, path, "Y")
	<-samples
	cancel()
	for range samples {
	}
	err := <-errc
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestStaticProvider(t *testing.T) {
	table := &Table{Source: "jul", Columns: []string{"A", "Y"}, Data: mat.NewDense(1, 2, []float64{1, 1})}
	p := NewStaticProvider(table)

	require.NoError(t, p.Exists("jul"))
	got, err := p.Load("jul")
	require.NoError(t, err)
	assert.Same(t, table, got)

	var notFound *errors.DatasetNotFoundError
	require.ErrorAs(t, p.Exists("aug"), &notFound)
}
