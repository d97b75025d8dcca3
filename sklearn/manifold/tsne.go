// Package manifold provides non-linear embeddings for visualisation.
package manifold

import (
	"context"
	"fmt"
	"time"

	"github.com/danaugrs/go-tsne/tsne"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

// logEvery is the iteration interval of progress records.
const logEvery = 50

// TSNE は t-SNE による低次元埋め込み (github.com/danaugrs/go-tsne)
//
// 初期配置は go-tsne 内部の乱数で決まるため、実行ごとに結果は変わる。
type TSNE struct {
	NComponents  int
	Perplexity   float64
	LearningRate float64
	MaxIter      int

	divergence float64
	nIter      int
	logger     log.Logger
}

// Option configures a TSNE.
type Option func(*TSNE)

// WithNComponents sets the embedding dimension.
func WithNComponents(n int) Option { return func(t *TSNE) { t.NComponents = n } }

// WithPerplexity sets the effective number of neighbours.
func WithPerplexity(p float64) Option { return func(t *TSNE) { t.Perplexity = p } }

// WithLearningRate sets the gradient descent step.
func WithLearningRate(lr float64) Option { return func(t *TSNE) { t.LearningRate = lr } }

// WithMaxIter sets the number of optimisation steps.
func WithMaxIter(n int) Option { return func(t *TSNE) { t.MaxIter = n } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(t *TSNE) { t.logger = l } }

// NewTSNE はscikit-learnと同じデフォルト (2次元, perplexity=30,
// learning_rate=200, max_iter=1000) の TSNE を作成する
func NewTSNE(opts ...Option) *TSNE {
	t := &TSNE{NComponents: 2, Perplexity: 30, LearningRate: 200, MaxIter: 1000}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("TSNE")
	}
	return t
}

// FitTransform embeds the rows of X. Cancelling ctx stops the optimisation
// at the next iteration and returns ctx.Err().
func (t *TSNE) FitTransform(ctx context.Context, X mat.Matrix) (*mat.Dense, error) {
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return nil, errors.NewModelError("TSNE.FitTransform", "empty data", errors.ErrEmptyData)
	}
	if t.NComponents < 1 {
		return nil, errors.NewValidationError("n_components", "must be positive", t.NComponents)
	}
	if t.MaxIter < 1 {
		return nil, errors.NewValidationError("max_iter", "must be positive", t.MaxIter)
	}
	if t.LearningRate <= 0 {
		return nil, errors.NewValidationError("learning_rate", "must be positive", t.LearningRate)
	}
	if t.Perplexity <= 0 || t.Perplexity >= float64(n) {
		return nil, errors.NewValueError("TSNE.FitTransform",
			fmt.Sprintf("perplexity=%g must be in (0, n_samples=%d)", t.Perplexity, n))
	}
	if err := errors.CheckMatrix("TSNE.FitTransform", X); err != nil {
		return nil, err
	}

	start := time.Now()
	t.nIter = 0
	model := tsne.NewTSNE(t.NComponents, t.Perplexity, t.LearningRate, t.MaxIter, false)
	step := func(iter int, divergence float64, _ mat.Matrix) bool {
		t.nIter = iter + 1
		t.divergence = divergence
		if iter%logEvery == 0 {
			t.logger.Debug("t-SNE progress",
				log.IterationKey, iter,
				log.DivergenceKey, divergence,
			)
		}
		return ctx.Err() != nil
	}

	Y, err := errors.SafeCall("TSNE.FitTransform", func() (mat.Matrix, error) {
		return model.EmbedData(X, step), nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	out := mat.DenseCopyOf(Y)
	if err := errors.CheckMatrix("TSNE.FitTransform", out); err != nil {
		return nil, err
	}

	t.logger.Info("t-SNE finished",
		log.SamplesKey, n,
		log.IterationKey, t.nIter,
		log.DivergenceKey, t.divergence,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return out, nil
}

// KLDivergence returns the divergence reported at the last iteration.
func (t *TSNE) KLDivergence() float64 { return t.divergence }

// NIter returns the number of iterations run by the last FitTransform.
func (t *TSNE) NIter() int { return t.nIter }
