// Package naive_bayes implements naive Bayes classifiers for count-like
// features such as term frequencies and TF-IDF weights.
package naive_bayes

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/core/model"
	"github.com/YuminosukeSato/textclf/core/parallel"
	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

const modelName = "MultinomialNB"

// minAlpha is the smallest smoothing applied to avoid log(0).
const minAlpha = 1e-10

var _ model.Classifier = (*MultinomialNB)(nil)

type nonZeroDoer interface {
	DoNonZero(fn func(i, j int, v float64))
}

type rowNonZeroDoer interface {
	DoRowNonZero(i int, fn func(i, j int, v float64))
}

// MultinomialNB は多項分布ナイーブベイズ分類器
//
// 特徴量は非負である必要がある（語の出現回数や TF-IDF）。
// PartialFit によるミニバッチ学習に対応する。
type MultinomialNB struct {
	state *model.StateManager

	// Alpha は加法 (Laplace/Lidstone) スムージングのパラメータ
	Alpha float64
	// FitPrior が false の場合は一様な事前分布を使う
	FitPrior bool
	// ClassPrior が指定されていればデータから推定しない
	ClassPrior []float64

	classes        []int
	classIndex     map[int]int
	classCount     []float64
	featureCount   *mat.Dense // classes × features
	classLogPrior  []float64
	featureLogProb *mat.Dense
	nSeen          int

	logger log.Logger
}

// Option configures a MultinomialNB.
type Option func(*MultinomialNB)

// WithAlpha sets the additive smoothing.
func WithAlpha(alpha float64) Option { return func(nb *MultinomialNB) { nb.Alpha = alpha } }

// WithFitPrior toggles learning class priors from the data.
func WithFitPrior(fit bool) Option { return func(nb *MultinomialNB) { nb.FitPrior = fit } }

// WithClassPrior fixes the class priors.
func WithClassPrior(prior []float64) Option {
	return func(nb *MultinomialNB) { nb.ClassPrior = append([]float64(nil), prior...) }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(nb *MultinomialNB) { nb.logger = l } }

// NewMultinomialNB creates a classifier with alpha=1 and learned priors.
func NewMultinomialNB(opts ...Option) *MultinomialNB {
	nb := &MultinomialNB{
		state:    model.NewStateManager(modelName),
		Alpha:    1.0,
		FitPrior: true,
	}
	for _, opt := range opts {
		opt(nb)
	}
	if nb.logger == nil {
		nb.logger = log.GetLoggerWithName(modelName)
	}
	return nb
}

// Fit は既存の学習結果を破棄して X, y で学習する
func (nb *MultinomialNB) Fit(X mat.Matrix, y []int) error {
	nb.reset()
	return nb.PartialFit(X, y, uniqueSorted(y))
}

func (nb *MultinomialNB) reset() {
	nb.state.Reset()
	nb.classes = nil
	nb.classIndex = nil
	nb.classCount = nil
	nb.featureCount = nil
	nb.classLogPrior = nil
	nb.featureLogProb = nil
	nb.nSeen = 0
}

// PartialFit はミニバッチで逐次学習する
//
// 最初の呼び出しでは classes に全クラスを渡す必要がある。
// 以降の呼び出しでは nil でよい。
func (nb *MultinomialNB) PartialFit(X mat.Matrix, y []int, classes []int) error {
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return errors.NewModelError(modelName+".PartialFit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != n {
		return errors.NewDimensionError(modelName+".PartialFit", n, len(y), 0)
	}
	if nb.Alpha < 0 {
		return errors.NewValidationError("alpha", "must be non-negative", nb.Alpha)
	}

	if nb.classes == nil {
		if len(classes) == 0 {
			return errors.NewValueError(modelName+".PartialFit", "classes must be given on the first call")
		}
		nb.classes = uniqueSorted(classes)
		nb.classIndex = make(map[int]int, len(nb.classes))
		for i, c := range nb.classes {
			nb.classIndex[c] = i
		}
		nb.classCount = make([]float64, len(nb.classes))
		nb.featureCount = mat.NewDense(len(nb.classes), d, nil)
	} else if err := nb.state.RequireFeatures("PartialFit", d); err != nil {
		return err
	}
	if nb.ClassPrior != nil && len(nb.ClassPrior) != len(nb.classes) {
		return errors.NewDimensionError(modelName+".PartialFit", len(nb.classes), len(nb.ClassPrior), 0)
	}

	rows := make([]int, n)
	for i, label := range y {
		k, ok := nb.classIndex[label]
		if !ok {
			return errors.NewValueError(modelName+".PartialFit", fmt.Sprintf("label %d not in classes %v", label, nb.classes))
		}
		rows[i] = k
	}

	// 負の値を検出してから集計する
	var negative bool
	eachNonZero(X, func(_, _ int, v float64) {
		if v < 0 || math.IsNaN(v) {
			negative = true
		}
	})
	if negative {
		return errors.NewValueError(modelName+".PartialFit", "negative or NaN values in X")
	}
	eachNonZero(X, func(i, j int, v float64) {
		k := rows[i]
		nb.featureCount.Set(k, j, nb.featureCount.At(k, j)+v)
	})
	for _, k := range rows {
		nb.classCount[k]++
	}
	nb.nSeen += n

	nb.updateLogProbs()
	nb.state.SetDimensions(d, nb.nSeen, len(nb.classes))
	nb.state.SetFitted()

	nb.logger.Debug("MultinomialNB updated",
		log.ModelNameKey, modelName,
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, d,
		log.ClassesKey, len(nb.classes),
	)
	return nil
}

func (nb *MultinomialNB) updateLogProbs() {
	alpha := nb.Alpha
	if alpha < minAlpha {
		errors.Warn(errors.NewDataConversionWarning("alpha", fmt.Sprint(minAlpha), "alpha too small, clipped to avoid log(0)"))
		alpha = minAlpha
	}
	k, d := nb.featureCount.Dims()
	nb.featureLogProb = mat.NewDense(k, d, nil)
	for c := 0; c < k; c++ {
		src := nb.featureCount.RawRowView(c)
		dst := nb.featureLogProb.RawRowView(c)
		total := floats.Sum(src) + alpha*float64(d)
		logTotal := math.Log(total)
		for j, v := range src {
			dst[j] = math.Log(v+alpha) - logTotal
		}
	}

	nb.classLogPrior = make([]float64, k)
	switch {
	case nb.ClassPrior != nil:
		for c, p := range nb.ClassPrior {
			nb.classLogPrior[c] = math.Log(p)
		}
	case nb.FitPrior:
		logN := math.Log(floats.Sum(nb.classCount))
		for c, cnt := range nb.classCount {
			nb.classLogPrior[c] = math.Log(cnt) - logN
		}
	default:
		for c := range nb.classLogPrior {
			nb.classLogPrior[c] = -math.Log(float64(k))
		}
	}
}

// DecisionFunction returns the joint log likelihood log P(c) + log P(x|c).
func (nb *MultinomialNB) DecisionFunction(X mat.Matrix) (*mat.Dense, error) {
	if err := nb.state.RequireFitted("DecisionFunction"); err != nil {
		return nil, err
	}
	n, d := X.Dims()
	if err := nb.state.RequireFeatures("DecisionFunction", d); err != nil {
		return nil, err
	}
	k := len(nb.classes)
	jll := mat.NewDense(n, k, nil)
	rows, sparseRows := X.(rowNonZeroDoer)
	// 各行は独立に計算できる
	parallel.Parallelize(n, func(start, end int) {
		for i := start; i < end; i++ {
			out := jll.RawRowView(i)
			add := func(_, j int, v float64) {
				for c := 0; c < k; c++ {
					out[c] += v * nb.featureLogProb.At(c, j)
				}
			}
			if sparseRows {
				rows.DoRowNonZero(i, add)
			} else {
				for j := 0; j < d; j++ {
					if v := X.At(i, j); v != 0 {
						add(i, j, v)
					}
				}
			}
			floats.Add(out, nb.classLogPrior)
		}
	})
	return jll, nil
}

// PredictLogProba は正規化した対数確率を返す
func (nb *MultinomialNB) PredictLogProba(X mat.Matrix) (*mat.Dense, error) {
	jll, err := nb.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n, _ := jll.Dims()
	for i := 0; i < n; i++ {
		row := jll.RawRowView(i)
		floats.AddConst(-errors.LogSumExp(row), row)
	}
	return jll, nil
}

// PredictProba returns class probabilities, columns in Classes() order.
func (nb *MultinomialNB) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	lp, err := nb.PredictLogProba(X)
	if err != nil {
		return nil, err
	}
	lp.Apply(func(_, _ int, v float64) float64 { return math.Exp(v) }, lp)
	return lp, nil
}

// Predict returns the most likely class for each row.
func (nb *MultinomialNB) Predict(X mat.Matrix) ([]int, error) {
	jll, err := nb.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n, _ := jll.Dims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = nb.classes[floats.MaxIdx(jll.RawRowView(i))]
	}
	return out, nil
}

// Score returns the mean accuracy on X and y.
func (nb *MultinomialNB) Score(X mat.Matrix, y []int) (float64, error) {
	pred, err := nb.Predict(X)
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

// Classes returns the sorted class labels.
func (nb *MultinomialNB) Classes() []int { return append([]int(nil), nb.classes...) }

// NSamplesSeen returns the number of rows seen across Fit and PartialFit calls.
func (nb *MultinomialNB) NSamplesSeen() int { return nb.nSeen }

// FeatureLogProb returns log P(feature | class), classes × features.
func (nb *MultinomialNB) FeatureLogProb() *mat.Dense {
	if nb.featureLogProb == nil {
		return nil
	}
	return mat.DenseCopyOf(nb.featureLogProb)
}

// ClassLogPrior returns the log prior of each class.
func (nb *MultinomialNB) ClassLogPrior() []float64 {
	return append([]float64(nil), nb.classLogPrior...)
}

// IsFitted reports whether the model has seen data.
func (nb *MultinomialNB) IsFitted() bool { return nb.state.IsFitted() }

// GetParams returns the hyperparameters.
func (nb *MultinomialNB) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"alpha":       nb.Alpha,
		"fit_prior":   nb.FitPrior,
		"class_prior": nb.ClassPrior,
	}
}

func eachNonZero(X mat.Matrix, fn func(i, j int, v float64)) {
	if nz, ok := X.(nonZeroDoer); ok {
		nz.DoNonZero(fn)
		return
	}
	n, d := X.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			if v := X.At(i, j); v != 0 {
				fn(i, j, v)
			}
		}
	}
}

func uniqueSorted(y []int) []int {
	seen := make(map[int]struct{}, len(y))
	var out []int
	for _, v := range y {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
