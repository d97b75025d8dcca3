// Package decomposition は行列分解による次元削減を提供する
package decomposition

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/textclf/core/model"
	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

var _ model.Transformer = (*PCA)(nil)

type nonZeroDoer interface {
	DoNonZero(fn func(i, j int, v float64))
}

// PCA は主成分分析 (gonum/stat.PC による特異値分解)
//
// 疎行列を渡した場合も内部では密行列に展開するため、
// 大規模コーパスではサンプルを絞ってから使う。
type PCA struct {
	state *model.StateManager

	NComponents int

	mean       []float64
	components *mat.Dense // d × NComponents (列が主成分)
	variance   []float64
	ratio      []float64

	logger log.Logger
}

// Option configures a PCA.
type Option func(*PCA)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(p *PCA) { p.logger = l } }

// NewPCA creates a PCA keeping nComponents directions.
func NewPCA(nComponents int, opts ...Option) *PCA {
	p := &PCA{state: model.NewStateManager("PCA"), NComponents: nComponents}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.GetLoggerWithName("PCA")
	}
	return p
}

// Fit は主成分を計算する
func (p *PCA) Fit(X mat.Matrix) error {
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return errors.NewModelError("PCA.Fit", "empty data", errors.ErrEmptyData)
	}
	if p.NComponents < 1 || p.NComponents > min(n, d) {
		return errors.NewValueError("PCA.Fit",
			fmt.Sprintf("n_components=%d must be between 1 and min(n_samples, n_features)=%d", p.NComponents, min(n, d)))
	}
	start := time.Now()
	dense := toDense(X)
	if err := errors.CheckMatrix("PCA.Fit", dense); err != nil {
		return err
	}

	var pc stat.PC
	var vecs mat.Dense
	var vars []float64
	err := errors.SafeExecute("PCA.Fit", func() error {
		if !pc.PrincipalComponents(dense, nil) {
			return errors.NewModelError("PCA.Fit", "svd failed", errors.ErrSingularMatrix)
		}
		pc.VectorsTo(&vecs)
		vars = pc.VarsTo(nil)
		return nil
	})
	if err != nil {
		return err
	}

	k := p.NComponents
	p.components = mat.DenseCopyOf(vecs.Slice(0, d, 0, k))
	p.mean = make([]float64, d)
	for j := 0; j < d; j++ {
		p.mean[j] = floats.Sum(mat.Col(nil, j, dense)) / float64(n)
	}
	total := floats.Sum(vars)
	p.variance = append([]float64(nil), vars[:k]...)
	p.ratio = make([]float64, k)
	if total > 0 {
		for i, v := range p.variance {
			p.ratio[i] = v / total
		}
	}
	p.state.SetDimensions(d, n, 0)
	p.state.SetFitted()

	p.logger.Debug("PCA fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, d,
		log.ExplainedVarianceKey, floats.Sum(p.ratio),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// Transform は X を主成分空間へ射影する: (X - mean) · V
// 戻り値の実体は n × NComponents の *mat.Dense
func (p *PCA) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.state.RequireFitted("Transform"); err != nil {
		return nil, err
	}
	n, d := X.Dims()
	if err := p.state.RequireFeatures("Transform", d); err != nil {
		return nil, err
	}
	k := p.NComponents
	out := mat.NewDense(n, k, nil)
	if nz, ok := X.(nonZeroDoer); ok {
		// X·V を非ゼロ要素だけで計算し、mean·V を引く
		nz.DoNonZero(func(i, j int, v float64) {
			row := out.RawRowView(i)
			for c := 0; c < k; c++ {
				row[c] += v * p.components.At(j, c)
			}
		})
	} else {
		out.Mul(X, p.components)
	}
	shift := make([]float64, k)
	for c := 0; c < k; c++ {
		shift[c] = floats.Dot(p.mean, mat.Col(nil, c, p.components))
	}
	for i := 0; i < n; i++ {
		floats.Sub(out.RawRowView(i), shift)
	}
	return out, nil
}

// FitTransform は Fit の後に Transform を実行する
func (p *PCA) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// Components returns the principal axes as rows (NComponents × features).
func (p *PCA) Components() *mat.Dense {
	if p.components == nil {
		return nil
	}
	return mat.DenseCopyOf(p.components.T())
}

// ExplainedVariance returns the variance along each component.
func (p *PCA) ExplainedVariance() []float64 {
	return append([]float64(nil), p.variance...)
}

// ExplainedVarianceRatio returns each component's share of the total variance.
func (p *PCA) ExplainedVarianceRatio() []float64 {
	return append([]float64(nil), p.ratio...)
}

// Mean returns the per-feature mean removed before projection.
func (p *PCA) Mean() []float64 {
	return append([]float64(nil), p.mean...)
}

func toDense(X mat.Matrix) *mat.Dense {
	if d, ok := X.(*mat.Dense); ok {
		return d
	}
	n, c := X.Dims()
	out := mat.NewDense(n, c, nil)
	if nz, ok := X.(nonZeroDoer); ok {
		nz.DoNonZero(out.Set)
		return out
	}
	out.Copy(X)
	return out
}
