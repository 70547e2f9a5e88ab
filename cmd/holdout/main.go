// Command holdout trains the configured classifier on one dataset, saves it and
// scores it on an ordered list of holdout datasets.
//
//	holdout run -c holdout.yaml
//	holdout inspect -c holdout.yaml --run 6f1c...
//	holdout list -c holdout.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alexflint/go-arg"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/YuminosukeSato/holdout/artifact"
	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/internal/config"
	"github.com/YuminosukeSato/holdout/internal/monitoring"
	"github.com/YuminosukeSato/holdout/pkg/errors"
	"github.com/YuminosukeSato/holdout/pkg/log"
	"github.com/YuminosukeSato/holdout/report"
	"github.com/YuminosukeSato/holdout/trainer"

	_ "github.com/YuminosukeSato/holdout/sklearn/ensemble"
	_ "github.com/YuminosukeSato/holdout/sklearn/linear_model"
	_ "github.com/YuminosukeSato/holdout/sklearn/tree"
)

var (
	name    = "holdout"
	version = "0.3.0"
)

type args struct {
	Command string `arg:"positional" help:"run, inspect or list"`
	Config  string `arg:"-c" help:"YAML configuration file (default $HOLDOUT_CONFIG)"`
	EnvFile string `arg:"--env" help:".env file loaded before the configuration"`
	Run     string `arg:"--run" help:"run id for inspect (default latest)"`
	Quiet   bool   `arg:"-q" help:"hide progress bars"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", name, version)
}

func (args) Description() string {
	return "Train a classifier and evaluate it over time-ordered holdout datasets."
}

func main() {
	a := args{Command: "run", EnvFile: ".env"}
	p := arg.MustParse(&a)

	if err := config.LoadDotEnv(a.EnvFile); err != nil {
		p.Fail(err.Error())
	}
	cfg, err := config.Load(a.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(2)
	}
	level, _ := log.ParseLevel(cfg.Logging.Level)
	logger := log.SetupLogger(os.Stderr, level, cfg.Logging.Format)
	log.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch a.Command {
	case "run":
		err = run(ctx, cfg, logger, a.Quiet)
	case "inspect":
		err = inspect(ctx, cfg, a.Run)
	case "list":
		err = list(ctx, cfg)
	default:
		p.Fail(fmt.Sprintf("unknown command %q", a.Command))
	}
	if err != nil {
		logger.Error("holdout failed", err, log.OperationKey, a.Command)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger log.Logger, quiet bool) error {
	// A store that cannot be opened only costs the artifact, never the run.
	store, storeErr := artifact.Open(cfg.Persistence.Backend, cfg.Persistence.Path, cfg.Persistence.Name)
	if storeErr != nil {
		logger.Warn("artifact store unavailable, the model will not be saved",
			log.BackendKey, cfg.Persistence.Backend, "error", storeErr)
	}
	if store != nil {
		defer store.Close()
	}

	m := monitoring.New()
	bars := newProgress(quiet)
	orch, err := trainer.New(cfg,
		trainer.WithStore(store),
		trainer.WithStoreError(storeErr),
		trainer.WithLogger(logger),
		trainer.WithMetrics(m),
		trainer.WithProgress(bars.update),
	)
	if err != nil {
		return err
	}

	start := time.Now()
	rep, runErr := orch.Run(ctx)
	bars.finish()

	// Partial results are printed even when a later dataset failed.
	if err := report.WriteResults(os.Stdout, rep); err != nil {
		return err
	}
	for _, r := range rep.Results {
		if r.Histogram == nil {
			continue
		}
		if cfg.Evaluation.CaptureProba {
			fmt.Println()
			if err := report.WriteHistogram(os.Stdout, r.Histogram, 40); err != nil {
				return err
			}
		}
		if cfg.Report.ProbaPlot != "" {
			path := report.PlotPath(cfg.Report.ProbaPlot, r.Index, r.Source)
			if err := report.PlotProbaDistribution(path, r.Histogram); err != nil {
				logger.Warn("probability plot failed", "path", path, "error", err)
			}
		}
	}

	if cfg.Monitoring.Textfile != "" {
		if err := m.WriteTextfile(cfg.Monitoring.Textfile); err != nil {
			logger.Warn("metrics export failed", "path", cfg.Monitoring.Textfile, "error", err)
		}
	}
	logger.Info("run finished", log.RunIDKey, rep.RunID, log.DurationMsKey, time.Since(start).Milliseconds())
	return runErr
}

func openStore(cfg *config.Config) (artifact.Store, error) {
	store, err := artifact.Open(cfg.Persistence.Backend, cfg.Persistence.Path, cfg.Persistence.Name)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.NewValidationError("persistence.backend", "no artifact store configured", cfg.Persistence.Backend)
	}
	return store, nil
}

func inspect(ctx context.Context, cfg *config.Config, runID string) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	data, err := store.Get(ctx, runID)
	if err != nil {
		return err
	}
	info, err := model.Inspect(data)
	if err != nil {
		return err
	}
	out, err := info.ToJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

func list(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bs, ok := store.(*artifact.BoltStore)
	if !ok {
		return errors.NewUnsupportedOperationError(store.Backend()+" store", "List")
	}
	entries, err := bs.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tALGORITHM\tCREATED\tBYTES\tLATEST")
	for _, e := range entries {
		latest := ""
		if e.Latest {
			latest = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.RunID, e.Algorithm, e.CreatedAt.Format(time.RFC3339), e.Size, latest)
	}
	return tw.Flush()
}

// progress drives one pb bar per pipeline stage on stderr.
type progress struct {
	quiet bool
	bars  map[string]*pb.ProgressBar
}

func newProgress(quiet bool) *progress {
	return &progress{quiet: quiet, bars: make(map[string]*pb.ProgressBar)}
}

func (p *progress) update(stage string, done, total int) {
	if p.quiet {
		return
	}
	bar, ok := p.bars[stage]
	if !ok {
		bar = pb.New(total).Prefix(stage + " ")
		bar.Output = os.Stderr
		bar.ShowSpeed = stage == trainer.StageFit
		bar.Start()
		p.bars[stage] = bar
	}
	bar.Set(done)
	if total > 0 && done == total {
		bar.Finish()
		delete(p.bars, stage)
	}
}

func (p *progress) finish() {
	for stage, bar := range p.bars {
		bar.Finish()
		delete(p.bars, stage)
	}
}
