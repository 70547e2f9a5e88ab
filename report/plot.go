package report

import (
	"fmt"
	"image/color"
	"path/filepath"
	"regexp"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/holdout/evaluation"
	"github.com/YuminosukeSato/holdout/pkg/errors"
)

var (
	positiveColor = color.RGBA{R: 214, G: 39, B: 40, A: 160}
	negativeColor = color.RGBA{R: 31, G: 119, B: 180, A: 160}
	unsafeName    = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// PlotProbaDistribution renders the class-conditional distributions of P(class=1)
// in h to path. Both classes are normalised to unit area so that imbalanced
// windows stay comparable. The image format follows the file extension.
func PlotProbaDistribution(path string, h *evaluation.ProbaHistogram) error {
	if h == nil || h.Total() == 0 {
		return errors.NewValueError("PlotProbaDistribution", "histogram has no probabilities")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("P(class=1) on %s", filepath.Base(h.Source))
	p.X.Label.Text = "predicted probability"
	p.Y.Label.Text = "density"
	p.X.Min, p.X.Max = 0, 1
	p.Legend.Top = true

	for _, class := range []struct {
		name   string
		values []float64
		fill   color.Color
	}{
		{"actual 0", h.NegativeProba, negativeColor},
		{"actual 1", h.PositiveProba, positiveColor},
	} {
		if len(class.values) == 0 {
			continue
		}
		hist, err := plotter.NewHist(plotter.Values(class.values), h.Bins())
		if err != nil {
			return errors.Wrapf(err, "histogram of %s", class.name)
		}
		hist.Normalize(1)
		hist.FillColor = class.fill
		hist.LineStyle.Width = vg.Length(0)
		p.Add(hist)
		p.Legend.Add(fmt.Sprintf("%s (n=%d)", class.name, len(class.values)), hist)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save probability plot %s", path)
	}
	return nil
}

// PlotPath derives the chart file of dataset index from the configured base path,
// e.g. "out/proba.png" and "data/2020-07.csv" give "out/proba_00_2020-07.png".
func PlotPath(base string, index int, source string) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".png"
	}
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	name = unsafeName.ReplaceAllString(name, "_")
	return fmt.Sprintf("%s_%02d_%s%s", stem, index, name, ext)
}
