// Package holdout trains binary classifiers and evaluates them over ordered
// holdout datasets, one time window per dataset.
//
// A run fits one configured algorithm on a training table, saves the fitted model
// as a versioned artifact (best effort: a failed save is reported as a warning and
// never stops the run), freezes it, and then lazily scores every holdout dataset in
// list order. Every dataset that was scored before a failure is still reported.
//
// # Features
//
//   - One Classifier interface for batch and incremental models
//   - Adaptive random forest of Hoeffding trees with ADWIN drift handling
//   - Lazy, single-pass evaluation with fail-fast error propagation
//   - Accuracy, precision, recall and F1 per window, plus AUC and log loss
//   - DDM drift detection across successive windows
//   - File and bbolt artifact stores, Prometheus textfile metrics
//
// # Quick Start
//
//	clf, err := model.New("adaptive_random_forest", map[string]interface{}{
//	    "max_depth": 5, "grace_period": 1000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := model.Train(clf, X, y); err != nil {
//	    log.Fatal(err)
//	}
//	frozen, _ := model.Freeze(clf)
//
//	runner, err := evaluation.NewRunner(frozen, []string{"2020-07.csv", "2020-08.csv"}, "SEPSIS")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for wp, err := range runner.Run(ctx) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    res, _ := metrics.Compute(wp.Predicted, wp.Actual)
//	    fmt.Println(wp.Source, res)
//	}
//
// # Packages
//
//   - core/model: Classifier interfaces, registry, threshold policy, artifacts, Freeze
//   - core/parallel: chunked parallel prediction
//   - sklearn/linear_model: LogisticRegression (batch), PassiveAggressiveClassifier (incremental)
//   - sklearn/tree: HoeffdingTreeClassifier
//   - sklearn/ensemble: AdaptiveRandomForestClassifier
//   - sklearn/drift: ADWIN and DDM detectors
//   - preprocessing: StandardScaler
//   - dataset: Provider contract, CSV provider, categorical encoder
//   - evaluation: Runner, drift monitor, probability histograms
//   - metrics: Compute, AUC, log loss
//   - artifact: file and bbolt stores
//   - trainer: the training and evaluation orchestrator
//   - report: result tables and probability plots
//
// The holdout command in cmd/holdout drives a whole run from a YAML file.
package holdout
