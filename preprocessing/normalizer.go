package preprocessing

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/core/parallel"
	"github.com/YuminosukeSato/textclf/pkg/errors"
)

// parallelRowThreshold is the row count above which dense input is
// normalised concurrently.
const parallelRowThreshold = 1000

// Norm names accepted by Normalizer.
const (
	NormL1  = "l1"
	NormL2  = "l2"
	NormMax = "max"
)

// Normalizer はscikit-learn互換の行正規化器
// 各サンプル（行）をノルム1にスケーリングする。ゼロ行はそのまま残す。
//
// 学習するパラメータはないため Fit は入力の検証のみを行う。
type Normalizer struct {
	// Norm は "l1", "l2", "max" のいずれか (デフォルト: "l2")
	Norm string
}

// NewNormalizer は新しいNormalizerを作成する
//
// 使用例:
//
//	n, err := preprocessing.NewNormalizer("l2")
//	Xn, err := n.Transform(X)
func NewNormalizer(norm string) (*Normalizer, error) {
	if norm == "" {
		norm = NormL2
	}
	if norm != NormL1 && norm != NormL2 && norm != NormMax {
		return nil, errors.NewValidationError("norm", "must be l1, l2 or max", norm)
	}
	return &Normalizer{Norm: norm}, nil
}

// Fit validates X; Normalizer is stateless.
func (n *Normalizer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("Normalizer.Fit", "empty data", errors.ErrEmptyData)
	}
	return nil
}

// Transform は各行を正規化する
//
// *sparse.CSR を渡した場合は疎行列のまま返し、それ以外は *mat.Dense を返す。
func (n *Normalizer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := n.Fit(X); err != nil {
		return nil, err
	}
	if csr, ok := X.(*sparse.CSR); ok {
		return n.transformCSR(csr), nil
	}

	r, _ := X.Dims()
	out := mat.DenseCopyOf(X)
	// 行ごとに独立なので行範囲で並列化する
	parallel.ParallelizeWithThreshold(r, parallelRowThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			row := out.RawRowView(i)
			if scale := rowNorm(n.Norm, row); scale != 0 {
				for j := range row {
					row[j] /= scale
				}
			}
		}
	})
	return out, nil
}

// FitTransform is Fit followed by Transform.
func (n *Normalizer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	return n.Transform(X)
}

func (n *Normalizer) transformCSR(X *sparse.CSR) *sparse.CSR {
	r, c := X.Dims()
	indptr := make([]int, r+1)
	ind := make([]int, 0, X.NNZ())
	data := make([]float64, 0, X.NNZ())

	var vals []float64
	for i := 0; i < r; i++ {
		start := len(data)
		X.DoRowNonZero(i, func(_, j int, v float64) {
			ind = append(ind, j)
			data = append(data, v)
		})
		vals = data[start:]
		if scale := rowNorm(n.Norm, vals); scale != 0 {
			for k := range vals {
				vals[k] /= scale
			}
		}
		indptr[i+1] = len(data)
	}
	return sparse.NewCSR(r, c, indptr, ind, data)
}

// GetParams returns the hyperparameters.
func (n *Normalizer) GetParams() map[string]interface{} {
	return map[string]interface{}{"norm": n.Norm}
}

func (n *Normalizer) String() string {
	return fmt.Sprintf("Normalizer(norm=%s)", n.Norm)
}

func rowNorm(norm string, row []float64) float64 {
	var s float64
	switch norm {
	case NormL1:
		for _, v := range row {
			s += math.Abs(v)
		}
	case NormMax:
		for _, v := range row {
			if a := math.Abs(v); a > s {
				s = a
			}
		}
	default:
		for _, v := range row {
			s += v * v
		}
		s = math.Sqrt(s)
	}
	return s
}
