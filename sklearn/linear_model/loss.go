package linear_model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/pkg/errors"
)

// rowNonZeroDoer is implemented by *sparse.CSR.
type rowNonZeroDoer interface {
	DoRowNonZero(i int, fn func(i, j int, v float64))
}

// design is a compressed row copy of X. Sparse inputs keep only their
// non-zeros, so every pass over the data costs O(nnz).
type design struct {
	n, d   int
	indptr []int
	ind    []int
	val    []float64
}

func newDesign(X mat.Matrix) *design {
	n, d := X.Dims()
	ds := &design{n: n, d: d, indptr: make([]int, n+1)}
	add := func(_, j int, v float64) {
		if v != 0 {
			ds.ind = append(ds.ind, j)
			ds.val = append(ds.val, v)
		}
	}
	switch m := X.(type) {
	case rowNonZeroDoer:
		for i := 0; i < n; i++ {
			m.DoRowNonZero(i, add)
			ds.indptr[i+1] = len(ds.ind)
		}
	case *mat.Dense:
		for i := 0; i < n; i++ {
			for j, v := range m.RawRowView(i) {
				add(i, j, v)
			}
			ds.indptr[i+1] = len(ds.ind)
		}
	default:
		for i := 0; i < n; i++ {
			for j := 0; j < d; j++ {
				add(i, j, X.At(i, j))
			}
			ds.indptr[i+1] = len(ds.ind)
		}
	}
	return ds
}

// dot returns x_i · w.
func (ds *design) dot(i int, w []float64) float64 {
	s := 0.0
	for k := ds.indptr[i]; k < ds.indptr[i+1]; k++ {
		s += ds.val[k] * w[ds.ind[k]]
	}
	return s
}

// axpy adds a·x_i to g.
func (ds *design) axpy(i int, a float64, g []float64) {
	for k := ds.indptr[i]; k < ds.indptr[i+1]; k++ {
		g[ds.ind[k]] += a * ds.val[k]
	}
}

// objective caches the value and gradient at the last evaluated point;
// L-BFGS asks for both at the same x.
type objective struct {
	last    []float64
	f       float64
	g       []float64
	compute func(x, grad []float64) float64
}

func newObjective(dim int, compute func(x, grad []float64) float64) *objective {
	return &objective{g: make([]float64, dim), compute: compute}
}

func (o *objective) ensure(x []float64) {
	if o.last != nil && floats.Equal(o.last, x) {
		return
	}
	o.f = o.compute(x, o.g)
	o.last = append(o.last[:0], x...)
}

func (o *objective) Func(x []float64) float64 {
	o.ensure(x)
	return o.f
}

func (o *objective) Grad(grad, x []float64) {
	o.ensure(x)
	copy(grad, o.g)
}

// binaryLoss is C·Σ log(1+exp(-s·z)) + ½‖w‖² with s = ±1.
// Parameters are laid out as [w (d), b].
type binaryLoss struct {
	X         *design
	y         []float64 // 0 or 1
	C         float64
	l2        bool
	intercept bool
}

func (p *binaryLoss) dim() int {
	if p.intercept {
		return p.X.d + 1
	}
	return p.X.d
}

func (p *binaryLoss) eval(x, grad []float64) float64 {
	d := p.X.d
	w := x[:d]
	b := 0.0
	if p.intercept {
		b = x[d]
	}
	for k := range grad {
		grad[k] = 0
	}
	loss := 0.0
	for i := 0; i < p.X.n; i++ {
		z := p.X.dot(i, w) + b
		s := 2*p.y[i] - 1
		loss -= errors.LogSigmoid(s * z)
		r := p.C * (sigmoid(z) - p.y[i])
		p.X.axpy(i, r, grad[:d])
		if p.intercept {
			grad[d] += r
		}
	}
	loss *= p.C
	if p.l2 {
		loss += 0.5 * floats.Dot(w, w)
		floats.Add(grad[:d], w)
	}
	return loss
}

// softmaxLoss is C·Σ (logΣexp(z_i) - z_i,y_i) + ½‖W‖².
// Parameters are laid out as [W (K×d row-major), b (K)].
type softmaxLoss struct {
	X         *design
	y         []int // class index
	K         int
	C         float64
	l2        bool
	intercept bool
}

func (p *softmaxLoss) dim() int {
	if p.intercept {
		return p.K*p.X.d + p.K
	}
	return p.K * p.X.d
}

func (p *softmaxLoss) eval(x, grad []float64) float64 {
	d, K := p.X.d, p.K
	W := x[:K*d]
	for k := range grad {
		grad[k] = 0
	}
	z := make([]float64, K)
	loss := 0.0
	for i := 0; i < p.X.n; i++ {
		for k := 0; k < K; k++ {
			z[k] = p.X.dot(i, W[k*d:(k+1)*d])
			if p.intercept {
				z[k] += x[K*d+k]
			}
		}
		lse := errors.LogSumExp(z)
		loss += lse - z[p.y[i]]
		for k := 0; k < K; k++ {
			r := math.Exp(z[k] - lse)
			if k == p.y[i] {
				r--
			}
			r *= p.C
			p.X.axpy(i, r, grad[k*d:(k+1)*d])
			if p.intercept {
				grad[K*d+k] += r
			}
		}
	}
	loss *= p.C
	if p.l2 {
		loss += 0.5 * floats.Dot(W, W)
		floats.Add(grad[:K*d], W)
	}
	return loss
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
