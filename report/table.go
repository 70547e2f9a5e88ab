// Package report renders run results for people: an aligned text table of the
// per-dataset metrics, text histograms of predicted probabilities and PNG charts.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/YuminosukeSato/holdout/evaluation"
	"github.com/YuminosukeSato/holdout/trainer"
)

// WriteResults prints one row per scored dataset followed by the pooled row.
func WriteResults(w io.Writer, r *trainer.Report) error {
	fmt.Fprintf(w, "run %s  algorithm %s (%s)  trained on %d rows in %s\n",
		r.RunID, r.Algorithm, r.Kind, r.TrainRows, r.FitDuration.Round(time.Millisecond))
	switch {
	case r.Persistence != nil:
		fmt.Fprintf(w, "artifact NOT saved: %v\n", r.Persistence)
	case r.Artifact != "":
		fmt.Fprintf(w, "artifact %s\n", r.Artifact)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tsource\trows\taccuracy\tprecision\trecall\tf1\tauc\tlogloss\tdrift\t")
	for _, d := range r.Results {
		auc, ll := "-", "-"
		if d.Scored {
			auc, ll = fmt.Sprintf("%.4f", d.AUC), fmt.Sprintf("%.4f", d.LogLoss)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%s\t%s\t%s\t\n",
			d.Index, d.Source, d.Result.Confusion.N(),
			d.Result.Accuracy, d.Result.Precision, d.Result.Recall, d.Result.F1,
			auc, ll, driftCell(d.Drift))
	}
	if len(r.Results) > 1 {
		p := r.Pooled()
		fmt.Fprintf(tw, "\tpooled\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t\t\t\t\n",
			p.Confusion.N(), p.Accuracy, p.Precision, p.Recall, p.F1)
	}
	return tw.Flush()
}

func driftCell(d *evaluation.WindowDrift) string {
	switch {
	case d == nil:
		return "-"
	case d.Drift:
		return fmt.Sprintf("drift@%v", d.DriftRows)
	case d.Warning:
		return "warning"
	default:
		return "stable"
	}
}

// WriteHistogram prints the per-class probability counts of h as horizontal bars
// scaled to width characters. Empty bins are skipped.
func WriteHistogram(w io.Writer, h *evaluation.ProbaHistogram, width int) error {
	if width < 1 {
		width = 40
	}
	peak := 1
	for i := 0; i < h.Bins(); i++ {
		peak = max(peak, h.Positive[i], h.Negative[i])
	}

	fmt.Fprintf(w, "%s: P(class=1) for %d positive and %d negative rows\n",
		h.Source, len(h.PositiveProba), len(h.NegativeProba))
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for i := 0; i < h.Bins(); i++ {
		if h.Positive[i] == 0 && h.Negative[i] == 0 {
			continue
		}
		fmt.Fprintf(tw, "[%.2f, %.2f)\t1 %s %d\t0 %s %d\n",
			h.Edges[i], h.Edges[i+1],
			bar(h.Positive[i], peak, width), h.Positive[i],
			bar(h.Negative[i], peak, width), h.Negative[i])
	}
	return tw.Flush()
}

func bar(n, peak, width int) string {
	k := n * width / peak
	if n > 0 && k == 0 {
		k = 1
	}
	return strings.Repeat("#", k) + strings.Repeat(".", width-k)
}
