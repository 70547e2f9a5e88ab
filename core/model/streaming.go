package model

import (
	"context"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// Sample is one labelled row arriving from a stream.
type Sample struct {
	X []float64
	Y int
}

// FitStream trains clf from samples until the channel is closed or ctx is done.
// Cancellation is observed between samples, never inside LearnOne. It returns the
// number of samples learned.
func FitStream(ctx context.Context, clf IncrementalClassifier, samples <-chan Sample) (int, error) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case s, ok := <-samples:
			if !ok {
				return n, nil
			}
			if err := clf.LearnOne(s.X, s.Y); err != nil {
				return n, errors.Wrapf(err, "stream sample %d", n)
			}
			n++
		}
	}
}
