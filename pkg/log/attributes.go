// Standard attribute keys for textclf log records.
//
// Keys follow a dotted hierarchy ("model.name", "data.samples") so log lines
// from different stages of a run can be filtered the same way.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type, e.g. "LogisticRegression".
	ModelNameKey = "model.name"

	// EstimatorIDKey identifies a specific estimator instance.
	EstimatorIDKey = "estimator.id"

	// OperationKey is one of the Operation* values below.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package emitting the record.
	ComponentKey = "ml.component"

	PhaseKey = "ml.phase"

	// RunIDKey is the uuid of an experiment run.
	RunIDKey = "run.id"

	// StepKey names a pipeline step such as "vectorize".
	StepKey = "run.step"
)

// Data Shape and Characteristics
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ClassesKey  = "data.classes"

	// SparsityKey is the fraction of zero entries in a document-term matrix.
	SparsityKey = "data.sparsity"

	// DatasetKey names the data source, e.g. "20newsgroups" or a file path.
	DatasetKey = "data.source"

	SubsetKey = "data.subset"
)

// Text processing
const (
	// DocumentsKey is the number of documents processed.
	DocumentsKey = "text.documents"

	// VocabularySizeKey is the number of terms kept after df pruning.
	VocabularySizeKey = "text.vocabulary_size"

	// PrunedTermsKey is the number of terms removed by min_df/max_df/max_features.
	PrunedTermsKey = "text.pruned_terms"

	// EmptyDocsKey counts documents that are empty after cleaning.
	EmptyDocsKey = "text.empty_documents"
)

// Performance Metrics
const (
	DurationMsKey = "perf.duration_ms"

	AccuracyKey = "metrics.accuracy"
	LossKey     = "metrics.loss"
	F1ScoreKey  = "metrics.f1_macro"

	// IterationKey records the current iteration of an iterative solver.
	IterationKey = "training.iteration"

	// GradNormKey records the gradient infinity norm at termination.
	GradNormKey = "training.grad_norm"

	// StatusKey records the solver termination status.
	StatusKey = "training.status"

	// ClassKey identifies the class a binary OvR sub-problem is fitting.
	ClassKey = "training.class"

	// DivergenceKey records the KL divergence reported by t-SNE.
	DivergenceKey = "training.kl_divergence"

	// ExplainedVarianceKey records the total explained variance ratio of PCA.
	ExplainedVarianceKey = "metrics.explained_variance"
)

// Error and Warning Context
const (
	ErrorCodeKey  = "error.code"
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"

	// WarningKey carries a structured warning from pkg/errors.
	WarningKey = "warning"

	// SuggestionKey provides a hint for resolving the issue.
	SuggestionKey = "error.suggestion"
)

// Hyperparameters and Configuration
const (
	HyperParamsKey    = "model.hyperparams"
	RegularizationKey = "hyperparams.C"
	RandomSeedKey     = "config.random_seed"
	WorkersKey        = "config.workers"

	// PathKey records an output or input file path.
	PathKey = "io.path"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"
	OperationLoad         = "load"
	OperationClean        = "clean"
	OperationPlot         = "plot"

	PhaseTraining      = "training"
	PhaseTesting       = "testing"
	PhasePreprocessing = "preprocessing"
	PhaseVisualization = "visualization"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
	ErrorEmptyVocabulary   = "EMPTY_VOCABULARY"
)
