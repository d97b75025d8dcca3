package linear_model

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/textclf/core/model"
	"github.com/YuminosukeSato/textclf/core/parallel"
	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

const modelName = "LogisticRegression"

// Multi-class strategies.
const (
	MultiClassOvR         = "ovr"
	MultiClassMultinomial = "multinomial"
)

// Penalties.
const (
	PenaltyL2   = "l2"
	PenaltyNone = "none"
)

var (
	_ model.LinearClassifier = (*LogisticRegression)(nil)
	_ model.WeightExporter   = (*LogisticRegression)(nil)
	_ model.ParameterSetter  = (*LogisticRegression)(nil)
)

// LogisticRegression implements logistic regression for classification
// Compatible with scikit-learn's LogisticRegression (solver="lbfgs")
//
// 目的関数は C·Σ logloss + ½‖w‖²（切片は正則化しない）で、
// gonum/optimize の L-BFGS で最小化する。
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // "l2" or "none"
	C            float64 // Inverse regularization strength
	fitIntercept bool
	maxIter      int
	tol          float64 // Gradient infinity-norm threshold
	multiClass   string  // "ovr" or "multinomial"
	nJobs        int     // Concurrent OvR fits; <= 0 means all CPUs
	randomState  int64   // Recorded only; L-BFGS from zero is deterministic

	// Model parameters
	coef_      [][]float64 // rows x n_features (1 row for binary problems)
	intercept_ []float64
	classes_   []int
	nIter_     []int // Iterations per coefficient row problem

	logger log.Logger
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(modelName),
		penalty:      PenaltyL2,
		C:            1.0,
		fitIntercept: true,
		maxIter:      100,
		tol:          1e-4,
		multiClass:   MultiClassOvR,
		randomState:  -1,
	}
	for _, opt := range opts {
		opt(lr)
	}
	if lr.logger == nil {
		lr.logger = log.GetLoggerWithName(modelName)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.penalty = penalty }
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.C = c }
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.fitIntercept = fit }
}

// WithLRMaxIter sets the maximum number of L-BFGS iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.maxIter = maxIter }
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.tol = tol }
}

// WithLRMultiClass selects "ovr" or "multinomial"
func WithLRMultiClass(mc string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.multiClass = mc }
}

// WithLRNJobs bounds the number of concurrent OvR fits
func WithLRNJobs(n int) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.nJobs = n }
}

// WithLRRandomState sets the random seed
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.randomState = seed }
}

// WithLRLogger sets the logger
func WithLRLogger(l log.Logger) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.logger = l }
}

func (lr *LogisticRegression) validate() error {
	if lr.C <= 0 || math.IsNaN(lr.C) || math.IsInf(lr.C, 0) {
		return errors.NewValidationError("C", "must be a positive finite number", lr.C)
	}
	if lr.penalty != PenaltyL2 && lr.penalty != PenaltyNone {
		return errors.NewValidationError("penalty", "must be l2 or none", lr.penalty)
	}
	if lr.multiClass != MultiClassOvR && lr.multiClass != MultiClassMultinomial {
		return errors.NewValidationError("multi_class", "must be ovr or multinomial", lr.multiClass)
	}
	if lr.maxIter <= 0 {
		return errors.NewValidationError("max_iter", "must be positive", lr.maxIter)
	}
	if lr.tol < 0 {
		return errors.NewValidationError("tol", "must be non-negative", lr.tol)
	}
	return nil
}

// Fit trains the model. y holds one class label per row of X.
func (lr *LogisticRegression) Fit(X mat.Matrix, y []int) error {
	return lr.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation; ctx is checked between L-BFGS
// iterations and between OvR sub-problems.
func (lr *LogisticRegression) FitContext(ctx context.Context, X mat.Matrix, y []int) error {
	if err := lr.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError(modelName+".Fit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != nSamples {
		return errors.NewDimensionError(modelName+".Fit", nSamples, len(y), 0)
	}

	classes := uniqueSorted(y)
	if len(classes) < 2 {
		return errors.NewValueError(modelName+".Fit",
			fmt.Sprintf("needs samples of at least 2 classes, got %d", len(classes)))
	}
	classIndex := make(map[int]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}

	start := time.Now()
	ds := newDesign(X)
	lr.state.Reset()

	var err error
	switch {
	case len(classes) == 2:
		err = lr.fitOVR(ctx, ds, y, classes[1:])
	case lr.multiClass == MultiClassMultinomial:
		err = lr.fitMultinomial(ctx, ds, y, classIndex, len(classes))
	default:
		err = lr.fitOVR(ctx, ds, y, classes)
	}
	if err != nil {
		return err
	}

	lr.classes_ = classes
	lr.state.SetDimensions(nFeatures, nSamples, len(classes))
	lr.state.SetFitted()

	lr.logger.Info("Model fitted",
		log.ModelNameKey, modelName,
		log.OperationKey, log.OperationFit,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, len(classes),
		log.RegularizationKey, lr.C,
		log.IterationKey, lr.maxNIter(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// fitOVR fits one binary problem per entry of positives, concurrently.
func (lr *LogisticRegression) fitOVR(ctx context.Context, ds *design, y []int, positives []int) error {
	rows := len(positives)
	coef := make([][]float64, rows)
	intercept := make([]float64, rows)
	nIter := make([]int, rows)

	err := parallel.ParallelizeWorkers(ctx, rows, lr.nJobs, func(r int) error {
		target := make([]float64, len(y))
		for i, label := range y {
			if label == positives[r] {
				target[i] = 1
			}
		}
		p := &binaryLoss{
			X:         ds,
			y:         target,
			C:         lr.C,
			l2:        lr.penalty == PenaltyL2,
			intercept: lr.fitIntercept,
		}
		x, iters, err := lr.minimize(ctx, p.dim(), p.eval, positives[r])
		if err != nil {
			return err
		}
		coef[r] = x[:ds.d]
		if lr.fitIntercept {
			intercept[r] = x[ds.d]
		}
		nIter[r] = iters
		return nil
	})
	if err != nil {
		return err
	}
	lr.coef_, lr.intercept_, lr.nIter_ = coef, intercept, nIter
	return nil
}

// fitMultinomial fits one softmax problem over all classes.
func (lr *LogisticRegression) fitMultinomial(ctx context.Context, ds *design, y []int, classIndex map[int]int, K int) error {
	idx := make([]int, len(y))
	for i, label := range y {
		idx[i] = classIndex[label]
	}
	p := &softmaxLoss{
		X:         ds,
		y:         idx,
		K:         K,
		C:         lr.C,
		l2:        lr.penalty == PenaltyL2,
		intercept: lr.fitIntercept,
	}
	x, iters, err := lr.minimize(ctx, p.dim(), p.eval, -1)
	if err != nil {
		return err
	}
	d := ds.d
	lr.coef_ = make([][]float64, K)
	lr.intercept_ = make([]float64, K)
	for k := 0; k < K; k++ {
		lr.coef_[k] = x[k*d : (k+1)*d]
		if lr.fitIntercept {
			lr.intercept_[k] = x[K*d+k]
		}
	}
	lr.nIter_ = []int{iters}
	return nil
}

// minimize runs L-BFGS from zero. class is only used for logging (-1 for
// the multinomial problem).
func (lr *LogisticRegression) minimize(ctx context.Context, dim int, eval func(x, grad []float64) float64, class int) ([]float64, int, error) {
	obj := newObjective(dim, eval)
	problem := optimize.Problem{
		Func: obj.Func,
		Grad: obj.Grad,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: lr.tol,
		MajorIterations:   lr.maxIter,
	}

	res, err := optimize.Minimize(problem, make([]float64, dim), settings, &optimize.LBFGS{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, 0, ctxErr
	}
	if res == nil {
		return nil, 0, errors.NewModelError(modelName+".Fit", "optimization failed", err)
	}
	if err := errors.CheckScalar("logistic_loss", res.F, res.MajorIterations); err != nil {
		return nil, res.MajorIterations, err
	}
	if err := errors.CheckNumericalStability("logistic_coef", res.X, res.MajorIterations); err != nil {
		return nil, res.MajorIterations, err
	}

	gradNorm := 0.0
	if len(res.Gradient) > 0 {
		gradNorm = floats.Norm(res.Gradient, math.Inf(1))
	}
	lr.logger.Debug("L-BFGS finished",
		log.ClassKey, class,
		log.IterationKey, res.MajorIterations,
		log.StatusKey, res.Status.String(),
		log.LossKey, res.F,
		log.GradNormKey, gradNorm,
	)
	if err != nil || res.Status == optimize.IterationLimit {
		msg := "lbfgs failed to converge; increase max_iter or scale the data"
		if err != nil {
			msg = fmt.Sprintf("lbfgs stopped early: %v", err)
		}
		errors.Warn(errors.NewConvergenceWarning("lbfgs", res.MajorIterations, msg))
	}
	return res.X, res.MajorIterations, nil
}

// DecisionFunction returns X·coefᵀ + intercept (samples × rows).
// Binary problems have a single column scoring the second class.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (*mat.Dense, error) {
	if err := lr.state.RequireFitted("DecisionFunction"); err != nil {
		return nil, err
	}
	n, d := X.Dims()
	if err := lr.state.RequireFeatures("DecisionFunction", d); err != nil {
		return nil, err
	}
	ds := newDesign(X)
	out := mat.NewDense(n, len(lr.coef_), nil)
	for i := 0; i < n; i++ {
		for r, w := range lr.coef_ {
			out.Set(i, r, ds.dot(i, w)+lr.intercept_[r])
		}
	}
	return out, nil
}

// Predict returns the class label with the highest score for each row.
func (lr *LogisticRegression) Predict(X mat.Matrix) ([]int, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n, cols := scores.Dims()
	pred := make([]int, n)
	for i := 0; i < n; i++ {
		if cols == 1 {
			if scores.At(i, 0) > 0 {
				pred[i] = lr.classes_[1]
			} else {
				pred[i] = lr.classes_[0]
			}
			continue
		}
		pred[i] = lr.classes_[floats.MaxIdx(scores.RawRowView(i))]
	}
	return pred, nil
}

// PredictProba returns class probabilities (samples × classes).
//
// 2クラス: [1-σ(z), σ(z)]。OvR: 各クラスのσを行ごとに正規化。
// multinomial: softmax。
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n, cols := scores.Dims()
	K := len(lr.classes_)
	proba := mat.NewDense(n, K, nil)
	for i := 0; i < n; i++ {
		row := scores.RawRowView(i)
		out := proba.RawRowView(i)
		switch {
		case cols == 1:
			p := sigmoid(row[0])
			out[0], out[1] = 1-p, p
		case lr.multiClass == MultiClassMultinomial:
			lse := errors.LogSumExp(row)
			for k, z := range row {
				out[k] = math.Exp(z - lse)
			}
		default:
			for k, z := range row {
				out[k] = sigmoid(z)
			}
			if s := floats.Sum(out); s > 0 {
				floats.Scale(1/s, out)
			}
		}
	}
	return proba, nil
}

// Score returns the mean accuracy on the given data and labels
func (lr *LogisticRegression) Score(X mat.Matrix, y []int) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	if len(y) != len(pred) {
		return 0, errors.NewDimensionError(modelName+".Score", len(pred), len(y), 0)
	}
	correct := 0
	for i := range pred {
		if pred[i] == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(pred)), nil
}

// Classes returns the sorted class labels seen during Fit.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.classes_...)
}

// Coef returns the coefficient matrix (rows × features), or nil before Fit.
func (lr *LogisticRegression) Coef() *mat.Dense {
	if len(lr.coef_) == 0 {
		return nil
	}
	d := len(lr.coef_[0])
	out := mat.NewDense(len(lr.coef_), d, nil)
	for r, w := range lr.coef_ {
		out.SetRow(r, w)
	}
	return out
}

// Intercept returns the intercept of each coefficient row.
func (lr *LogisticRegression) Intercept() []float64 {
	return append([]float64(nil), lr.intercept_...)
}

// NIter returns the L-BFGS iterations of each sub-problem.
func (lr *LogisticRegression) NIter() []int {
	return append([]int(nil), lr.nIter_...)
}

// IsFitted reports whether the model has been fitted.
func (lr *LogisticRegression) IsFitted() bool { return lr.state.IsFitted() }

func (lr *LogisticRegression) maxNIter() int {
	m := 0
	for _, n := range lr.nIter_ {
		m = max(m, n)
	}
	return m
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
		"multi_class":   lr.multiClass,
		"n_jobs":        lr.nJobs,
		"random_state":  lr.randomState,
		"solver":        "lbfgs",
	}
}

// SetParams sets the model hyperparameters. Numbers may arrive as any
// numeric type, e.g. float64 after a JSON round trip.
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			lr.penalty, ok = value.(string)
		case "C":
			lr.C, ok = toFloat(value)
		case "fit_intercept":
			lr.fitIntercept, ok = value.(bool)
		case "max_iter":
			lr.maxIter, ok = toInt(value)
		case "tol":
			lr.tol, ok = toFloat(value)
		case "multi_class":
			lr.multiClass, ok = value.(string)
		case "n_jobs":
			lr.nJobs, ok = toInt(value)
		case "random_state":
			var seed int
			seed, ok = toInt(value)
			lr.randomState = int64(seed)
		case "solver":
			ok = value == "lbfgs"
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "invalid value", value)
		}
	}
	return lr.validate()
}

// ExportWeights returns the learned coefficients. Feature and class names
// are left for the caller to fill in.
func (lr *LogisticRegression) ExportWeights() (*model.ModelWeights, error) {
	if err := lr.state.RequireFitted("ExportWeights"); err != nil {
		return nil, err
	}
	w := &model.ModelWeights{
		ModelType:       modelName,
		Version:         model.WeightsVersion,
		Classes:         lr.Classes(),
		Coefficients:    make([][]float64, len(lr.coef_)),
		Intercepts:      lr.Intercept(),
		Hyperparameters: lr.GetParams(),
		Metadata:        map[string]interface{}{"n_iter": lr.NIter()},
		IsFitted:        true,
	}
	for r, row := range lr.coef_ {
		w.Coefficients[r] = append([]float64(nil), row...)
	}
	return w, nil
}

// ImportWeights restores a model saved by ExportWeights.
func (lr *LogisticRegression) ImportWeights(w *model.ModelWeights) error {
	if w == nil {
		return errors.NewValidationError("weights", "is nil", nil)
	}
	if w.ModelType != modelName {
		return errors.NewValidationError("model_type", "expected "+modelName, w.ModelType)
	}
	if err := w.Validate(); err != nil {
		return err
	}
	if !w.IsFitted {
		return errors.NewNotFittedError(modelName, "ImportWeights")
	}
	params := make(map[string]interface{}, len(w.Hyperparameters))
	for k, v := range w.Hyperparameters {
		if _, known := lr.GetParams()[k]; known {
			params[k] = v
		}
	}
	if err := lr.SetParams(params); err != nil {
		return err
	}

	c := w.Clone()
	lr.coef_ = c.Coefficients
	lr.intercept_ = c.Intercepts
	lr.classes_ = c.Classes
	lr.nIter_ = nil
	lr.state.SetState(model.ModelState{
		Fitted:    true,
		NFeatures: c.NFeatures(),
		NClasses:  len(c.Classes),
	})
	return nil
}

func uniqueSorted(y []int) []int {
	seen := make(map[int]struct{}, 32)
	out := make([]int, 0, 32)
	for _, v := range y {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if x == math.Trunc(x) {
			return int(x), true
		}
	}
	return 0, false
}
