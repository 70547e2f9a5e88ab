// Package trainer sequences one training and evaluation run: obtain the training
// table, fit the configured algorithm, persist the artifact on a best-effort basis,
// hand the frozen model to an evaluation runner and score every holdout dataset.
//
// The orchestrator is the only place where an algorithm is chosen, and it chooses
// purely from configuration through the model registry.
package trainer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/holdout/artifact"
	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/dataset"
	"github.com/YuminosukeSato/holdout/evaluation"
	"github.com/YuminosukeSato/holdout/internal/config"
	"github.com/YuminosukeSato/holdout/internal/monitoring"
	"github.com/YuminosukeSato/holdout/metrics"
	"github.com/YuminosukeSato/holdout/pkg/errors"
	"github.com/YuminosukeSato/holdout/pkg/log"
	"github.com/YuminosukeSato/holdout/sklearn/drift"
)

// Stage names passed to the progress callback.
const (
	StageFit      = "fit"
	StageEvaluate = "evaluate"
)

// Streamer is implemented by providers that can deliver a source row by row.
type Streamer interface {
	Stream(ctx context.Context, source, label string) (<-chan model.Sample, <-chan error)
}

// DatasetResult is the scored outcome of one holdout dataset.
type DatasetResult struct {
	Index  int
	Source string
	Result metrics.EvaluationResult
	Drift  *evaluation.WindowDrift
	// Set only when probabilities were captured.
	Histogram *evaluation.ProbaHistogram
	AUC       float64
	LogLoss   float64
	Scored    bool
	Duration  time.Duration
}

// Report collects everything one run produced. It is returned even when the run
// fails part way, holding every dataset that was scored before the failure.
type Report struct {
	RunID       string
	Algorithm   string
	Kind        model.Kind
	TrainRows   int
	FitDuration time.Duration
	// Artifact is the store location of the saved model, empty when nothing was saved.
	Artifact string
	// Persistence is set when saving failed. The run continues regardless.
	Persistence *errors.PersistenceWriteWarning
	Results     []DatasetResult
}

// Pooled merges the confusion counts of all scored datasets.
func (r *Report) Pooled() metrics.EvaluationResult {
	res := make([]metrics.EvaluationResult, len(r.Results))
	for i, d := range r.Results {
		res[i] = d.Result
	}
	return metrics.Pool(res...)
}

// Orchestrator runs the pipeline described by a Config.
type Orchestrator struct {
	cfg      *config.Config
	provider dataset.Provider
	store    artifact.Store
	storeErr error
	logger   log.Logger
	metrics  *monitoring.Metrics
	progress func(stage string, done, total int)
	runID    func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProvider sets the dataset provider used for training and evaluation.
func WithProvider(p dataset.Provider) Option {
	return func(o *Orchestrator) { o.provider = p }
}

// WithStore sets where the fitted model is persisted. Without a store nothing is saved.
func WithStore(s artifact.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithStoreError records that the configured store could not be opened. Training
// still runs; the failure is reported as the run's persistence warning.
func WithStoreError(err error) Option {
	return func(o *Orchestrator) { o.storeErr = err }
}

func WithLogger(l log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithProgress receives fit progress per row and evaluation progress per dataset.
func WithProgress(fn func(stage string, done, total int)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithRunID overrides the uuid run identifier generator.
func WithRunID(fn func() string) Option {
	return func(o *Orchestrator) { o.runID = fn }
}

// New validates cfg and builds an orchestrator.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.NewValueError("trainer.New", "config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:    cfg,
		logger: log.Nop(),
		runID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = log.OrNop(o.logger)
	if o.provider == nil {
		o.provider = dataset.NewCSVProvider(dataset.WithLogger(o.logger))
	}
	return o, nil
}

// Run executes fit, persist, freeze and evaluation. Missing sources are reported
// before any data is read.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	cfg := o.cfg
	report := &Report{RunID: o.runID(), Algorithm: cfg.Model.Algorithm}
	logger := o.logger.With(log.RunIDKey, report.RunID, log.ModelNameKey, cfg.Model.Algorithm)

	// 入力検証
	if err := o.provider.Exists(cfg.Training.Source); err != nil {
		return report, err
	}
	for _, src := range cfg.Evaluation.Sources {
		if err := o.provider.Exists(src); err != nil {
			return report, err
		}
	}

	clf, err := model.New(cfg.Model.Algorithm, cfg.Model.Params)
	if err != nil {
		return report, err
	}
	report.Kind = clf.Kind()

	start := time.Now()
	var rows int
	err = errors.SafeExecute("fit "+cfg.Model.Algorithm, func() (ferr error) {
		rows, ferr = o.fit(ctx, clf)
		return ferr
	})
	if err != nil {
		return report, errors.Wrapf(err, "fit %s on %s", cfg.Model.Algorithm, cfg.Training.Source)
	}
	report.TrainRows = rows
	report.FitDuration = time.Since(start)
	o.metrics.ObserveFit(rows, report.FitDuration)
	logger.Info("model fitted",
		log.OperationKey, log.OperationFit,
		log.SourceKey, cfg.Training.Source,
		log.SamplesKey, rows,
		log.ModelKindKey, clf.Kind().String(),
		log.DurationMsKey, report.FitDuration.Milliseconds(),
	)

	report.Artifact, report.Persistence = o.persist(ctx, report.RunID, clf, logger)

	frozen, err := model.Freeze(clf)
	if err != nil {
		return report, err
	}
	return report, o.evaluate(ctx, frozen, report, logger)
}

func (o *Orchestrator) fit(ctx context.Context, clf model.Classifier) (int, error) {
	cfg := o.cfg
	onRow := func(done, total int) {
		if o.progress != nil {
			o.progress(StageFit, done, total)
		}
	}

	if inc, ok := clf.(model.IncrementalClassifier); ok && cfg.Training.Stream && clf.Kind() == model.KindIncremental {
		if s, ok := o.provider.(Streamer); ok {
			return o.fitStream(ctx, inc, s, onRow)
		}
		o.logger.Warn("provider cannot stream, loading training table", log.SourceKey, cfg.Training.Source)
	}

	table, err := o.provider.Load(cfg.Training.Source)
	if err != nil {
		return 0, err
	}
	X, y, err := table.SplitLabel(cfg.Training.Label)
	if err != nil {
		return 0, err
	}
	if table.Rows() == 0 {
		return 0, errors.NewDatasetLoadError(cfg.Training.Source, errors.ErrEmptyData)
	}
	if err := model.Train(clf, X, y, model.WithProgress(onRow)); err != nil {
		return 0, err
	}
	return table.Rows(), nil
}

func (o *Orchestrator) fitStream(ctx context.Context, clf model.IncrementalClassifier, s Streamer, onRow func(done, total int)) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples, errc := s.Stream(ctx, o.cfg.Training.Source, o.cfg.Training.Label)
	counted := make(chan model.Sample)
	go func() {
		defer close(counted)
		n := 0
		for smp := range samples {
			select {
			case counted <- smp:
			case <-ctx.Done():
				return
			}
			n++
			// total is unknown while streaming
			onRow(n, 0)
		}
	}()

	n, err := model.FitStream(ctx, clf, counted)
	if err != nil {
		return n, err
	}
	if err := <-errc; err != nil {
		return n, err
	}
	if n == 0 {
		return 0, errors.NewDatasetLoadError(o.cfg.Training.Source, errors.ErrEmptyData)
	}
	return n, nil
}

// persist saves clf and converts any failure into a warning.
func (o *Orchestrator) persist(ctx context.Context, runID string, clf model.Classifier, logger log.Logger) (string, *errors.PersistenceWriteWarning) {
	backend := o.cfg.Persistence.Backend
	target := o.cfg.Persistence.Path
	err := o.storeErr
	if err == nil && o.store == nil {
		return "", nil
	}

	var data []byte
	if err == nil {
		backend = o.store.Backend()
		data, err = model.Marshal(clf)
	}
	if err == nil {
		var loc string
		if loc, err = o.store.Put(ctx, runID, data); err == nil {
			o.metrics.ArtifactSaved(len(data))
			logger.Info("model persisted", log.BackendKey, backend, log.ArtifactKey, loc)
			return loc, nil
		}
	}

	warn := errors.NewPersistenceWriteWarning(backend, target, err)
	errors.Warn(warn)
	o.metrics.PersistenceFailed(backend)
	logger.Warn("model persistence failed, continuing with evaluation", "warning", warn)
	return "", warn
}

func (o *Orchestrator) evaluate(ctx context.Context, frozen *model.Frozen, report *Report, logger log.Logger) error {
	cfg := o.cfg
	capture := cfg.Evaluation.CaptureProba || cfg.Report.ProbaPlot != ""
	opts := []evaluation.Option{
		evaluation.WithThreshold(cfg.Evaluation.Threshold),
		evaluation.WithProvider(o.provider),
		evaluation.WithWorkers(cfg.Evaluation.Workers),
		evaluation.WithProbaCapture(capture),
		evaluation.WithLogger(logger),
	}
	if cfg.Evaluation.Drift {
		opts = append(opts, evaluation.WithDriftMonitor(evaluation.NewDriftMonitor(drift.NewDDM(), logger)))
	}

	runner, err := evaluation.NewRunner(frozen, cfg.Evaluation.Sources, cfg.Training.Label, opts...)
	if err != nil {
		return err
	}

	total := len(cfg.Evaluation.Sources)
	for wp, err := range runner.Run(ctx) {
		if err != nil {
			o.metrics.ObserveWindowError()
			return err
		}
		dr, err := o.score(wp)
		if err != nil {
			return err
		}
		report.Results = append(report.Results, dr)

		o.metrics.ObserveWindow(dr.Source, dr.Result, dr.Duration)
		if dr.Drift != nil {
			o.metrics.ObserveDrift(dr.Drift.Warning, dr.Drift.Drift)
		}
		logger.Info("dataset scored",
			log.SourceKey, dr.Source,
			log.DatasetIndexKey, dr.Index,
			log.AccuracyKey, dr.Result.Accuracy,
			log.PrecisionKey, dr.Result.Precision,
			log.RecallKey, dr.Result.Recall,
			log.F1Key, dr.Result.F1,
		)
		if o.progress != nil {
			o.progress(StageEvaluate, len(report.Results), total)
		}
	}
	return nil
}

func (o *Orchestrator) score(wp *evaluation.WindowPrediction) (DatasetResult, error) {
	dr := DatasetResult{Index: wp.Index, Source: wp.Source, Drift: wp.Drift, Duration: wp.Duration}
	res, err := metrics.Compute(wp.Predicted, wp.Actual)
	if err != nil {
		return dr, errors.Wrapf(err, "score %s", wp.Source)
	}
	dr.Result = res

	if wp.Proba == nil || wp.Proba.Len() == 0 {
		return dr, nil
	}
	if dr.Histogram, err = evaluation.NewProbaHistogram(wp.Source, wp.Proba, wp.Actual, o.cfg.Report.Bins); err != nil {
		return dr, err
	}
	if dr.AUC, err = metrics.AUC(wp.Actual, wp.Proba); err != nil {
		return dr, err
	}
	if dr.LogLoss, err = metrics.BinaryLogLoss(wp.Actual, wp.Proba); err != nil {
		return dr, err
	}
	dr.Scored = true
	return dr, nil
}
