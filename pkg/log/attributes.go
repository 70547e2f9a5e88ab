// Package log defines standard attribute keys for training and evaluation runs.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples") so that
// log lines from the orchestrator, the runner and the models can be filtered together.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of machine learning model.
	// Examples: "LogisticRegression", "AdaptiveRandomForestClassifier"
	ModelNameKey = "model.name"

	// ModelKindKey is "batch" or "incremental".
	ModelKindKey = "model.kind"

	// RunIDKey identifies one orchestrator run (a UUID).
	RunIDKey = "run.id"

	// OperationKey specifies the machine learning operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which component is logging.
	// Examples: "trainer", "evaluation", "artifact"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// SourceKey names a dataset source (file path).
	SourceKey = "dataset.source"

	// DatasetIndexKey is the position of a source in the ordered evaluation list.
	DatasetIndexKey = "dataset.index"

	// LabelKey names the label column.
	LabelKey = "dataset.label"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy for evaluation operations.
	AccuracyKey = "metrics.accuracy"

	// PrecisionKey records precision of the positive class.
	PrecisionKey = "metrics.precision"

	// RecallKey records recall of the positive class.
	RecallKey = "metrics.recall"

	// F1Key records the F1 score of the positive class.
	F1Key = "metrics.f1"

	// IterationKey records the current iteration number during iterative processes.
	IterationKey = "training.iteration"
)

// Prediction and Output Context
const (
	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"

	// PositivesKey counts rows predicted as the positive class.
	PositivesKey = "preds.positives"

	// ThresholdKey records decision thresholds used for classification.
	ThresholdKey = "preds.threshold"
)

// Error and Persistence Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"

	// ArtifactKey names a persisted model artifact.
	ArtifactKey = "artifact.name"

	// BackendKey names an artifact storage backend.
	BackendKey = "artifact.backend"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit        = "fit"
	OperationPredict    = "predict"
	OperationPersist    = "persist"
	OperationEvaluate   = "evaluate"
	OperationPartialFit = "partial_fit"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseTesting    = "testing"
)
