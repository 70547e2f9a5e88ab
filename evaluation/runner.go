// Package evaluation runs a fitted model over an ordered list of holdout datasets.
//
// A Runner is configured once with NewRunner, which validates everything it can
// before any data is read, and then produces a single-pass lazy sequence of
// per-dataset predictions:
//
//	runner, err := evaluation.NewRunner(frozen, sources, "SEPSIS", evaluation.WithThreshold(0.4))
//	if err != nil {
//		return err
//	}
//	for wp, err := range runner.Run(ctx) {
//		if err != nil {
//			return err
//		}
//		res, _ := metrics.Compute(wp.Predicted, wp.Actual)
//		fmt.Println(wp.Source, res)
//	}
package evaluation

import (
	"context"
	"iter"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/core/parallel"
	"github.com/YuminosukeSato/holdout/dataset"
	"github.com/YuminosukeSato/holdout/pkg/errors"
	"github.com/YuminosukeSato/holdout/pkg/log"
)

// ErrRunnerConsumed is yielded when Run is called on a Runner that already ran.
var ErrRunnerConsumed = errors.New("evaluation runner has already been run")

// State is the lifecycle position of a Runner.
type State int

const (
	StateConfigured State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	default:
		return "done"
	}
}

// WindowPrediction is the output of one holdout dataset.
type WindowPrediction struct {
	Index     int
	Source    string
	Predicted *mat.VecDense
	Actual    *mat.VecDense
	// Proba is set only when probability capture is enabled and the model supports it.
	Proba    *mat.VecDense
	Drift    *WindowDrift
	Duration time.Duration
}

// Runner evaluates a model over holdout sources in list order.
type Runner struct {
	model     model.Predictor
	sources   []string
	label     string
	threshold float64
	provider  dataset.Provider
	workers   int
	capture   bool
	monitor   *DriftMonitor
	logger    log.Logger

	mu    sync.Mutex
	state State
}

// Option configures a Runner.
type Option func(*Runner)

// WithThreshold sets the decision threshold applied to every dataset.
func WithThreshold(t float64) Option {
	return func(r *Runner) { r.threshold = t }
}

// WithProvider replaces the default CSV provider.
func WithProvider(p dataset.Provider) Option {
	return func(r *Runner) { r.provider = p }
}

// WithWorkers splits prediction of each dataset across n goroutines.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithProbaCapture records P(class=1) alongside the labels.
func WithProbaCapture(on bool) Option {
	return func(r *Runner) { r.capture = on }
}

// WithDriftMonitor feeds per-row outcomes of every dataset into m.
func WithDriftMonitor(m *DriftMonitor) Option {
	return func(r *Runner) { r.monitor = m }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner validates, in order, that m is fitted, that sources is non-empty and
// every source exists, and that label is set. No dataset is loaded.
func NewRunner(m model.Predictor, sources []string, label string, opts ...Option) (*Runner, error) {
	r := &Runner{
		model:     m,
		label:     label,
		threshold: model.DefaultThreshold,
		workers:   1,
		logger:    log.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.provider == nil {
		r.provider = dataset.NewCSVProvider(dataset.WithLogger(r.logger))
	}

	if m == nil {
		return nil, errors.NewValueError("NewRunner", "model must not be nil")
	}
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError(m.Algorithm(), "Evaluate")
	}
	if len(sources) == 0 {
		return nil, errors.NewValidationError("sources", "at least one holdout source is required", sources)
	}
	for _, src := range sources {
		if err := r.provider.Exists(src); err != nil {
			return nil, err
		}
	}
	if label == "" {
		return nil, errors.NewValidationError("label", "must not be empty", label)
	}
	if err := model.ValidateThreshold(r.threshold); err != nil {
		return nil, err
	}
	if r.workers < 1 {
		return nil, errors.NewValidationError("workers", "must be at least 1", r.workers)
	}

	r.sources = append([]string(nil), sources...)
	r.logger = r.logger.With(log.ComponentKey, "evaluation", log.ModelNameKey, m.Algorithm())
	return r, nil
}

// State returns the lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Sources returns the configured source list.
func (r *Runner) Sources() []string { return append([]string(nil), r.sources...) }

// Run returns the lazy sequence of per-dataset predictions. Datasets are loaded only
// as the sequence is consumed. The first failure is yielded and ends the sequence,
// and ctx is checked only between datasets. Run may be consumed once; later calls
// yield ErrRunnerConsumed.
func (r *Runner) Run(ctx context.Context) iter.Seq2[*WindowPrediction, error] {
	return func(yield func(*WindowPrediction, error) bool) {
		r.mu.Lock()
		if r.state != StateConfigured {
			r.mu.Unlock()
			yield(nil, ErrRunnerConsumed)
			return
		}
		r.state = StateRunning
		r.mu.Unlock()

		defer func() {
			r.mu.Lock()
			r.state = StateDone
			r.mu.Unlock()
		}()

		for i, src := range r.sources {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			wp, err := r.evaluate(i, src)
			if err != nil {
				r.logger.Error("dataset evaluation failed", err, log.SourceKey, src, log.DatasetIndexKey, i)
				yield(nil, err)
				return
			}
			if !yield(wp, nil) {
				return
			}
		}
	}
}

func (r *Runner) evaluate(index int, src string) (*WindowPrediction, error) {
	start := time.Now()

	table, err := r.provider.Load(src)
	if err != nil {
		return nil, asLoadError(src, err)
	}
	X, y, err := table.SplitLabel(r.label)
	if err != nil {
		return nil, asLoadError(src, err)
	}

	pred, err := r.predict(X)
	if err != nil {
		return nil, errors.Wrapf(err, "predict %s", src)
	}

	wp := &WindowPrediction{Index: index, Source: src, Predicted: pred, Actual: y}
	if r.capture {
		proba, err := r.model.PredictProba(X)
		var unsupported *errors.UnsupportedOperationError
		switch {
		case errors.As(err, &unsupported):
			r.logger.Debug("probability capture skipped", log.SourceKey, src, "reason", err.Error())
		case err != nil:
			return nil, errors.Wrapf(err, "predict_proba %s", src)
		default:
			wp.Proba = proba
		}
	}
	if r.monitor != nil {
		d, err := r.monitor.Observe(src, pred, y)
		if err != nil {
			return nil, err
		}
		wp.Drift = d
	}
	wp.Duration = time.Since(start)

	r.logger.Info("dataset evaluated",
		log.SourceKey, src,
		log.DatasetIndexKey, index,
		log.SamplesKey, y.Len(),
		log.PositivesKey, model.CountPositives(pred),
		log.ThresholdKey, r.threshold,
		log.DurationMsKey, wp.Duration.Milliseconds(),
	)
	return wp, nil
}

// asLoadError keeps typed dataset errors and wraps anything else so that the failing
// source is always identified.
func asLoadError(src string, err error) error {
	var notFound *errors.DatasetNotFoundError
	var loadErr *errors.DatasetLoadError
	if errors.As(err, &notFound) || errors.As(err, &loadErr) {
		return err
	}
	return errors.NewDatasetLoadError(src, err)
}

// predict labels X in row chunks. Predictor methods are read-only, so chunks run
// concurrently when more than one worker is configured.
func (r *Runner) predict(X *mat.Dense) (*mat.VecDense, error) {
	rows, cols := X.Dims()
	if rows == 0 || r.workers == 1 {
		return r.model.Predict(X, r.threshold)
	}

	out := mat.NewVecDense(rows, nil)
	err := parallel.Chunks(rows, r.workers, func(start, end int) error {
		part, err := r.model.Predict(X.Slice(start, end, 0, cols), r.threshold)
		if err != nil {
			return err
		}
		for i := 0; i < part.Len(); i++ {
			out.SetVec(start+i, part.AtVec(i))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
