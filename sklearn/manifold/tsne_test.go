package manifold

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

// clusters returns k well separated groups of m points in d dimensions.
func clusters(k, m, d int) (*mat.Dense, []int) {
	rng := rand.New(rand.NewPCG(1, 2))
	X := mat.NewDense(k*m, d, nil)
	labels := make([]int, k*m)
	for c := 0; c < k; c++ {
		for i := 0; i < m; i++ {
			r := c*m + i
			labels[r] = c
			for j := 0; j < d; j++ {
				center := 0.0
				if j == c {
					center = 10
				}
				X.Set(r, j, center+0.1*rng.NormFloat64())
			}
		}
	}
	return X, labels
}

func TestTSNE_FitTransform(t *testing.T) {
	X, labels := clusters(3, 10, 5)
	ts := NewTSNE(WithPerplexity(5), WithMaxIter(500), WithLogger(log.Nop()))
	Y, err := ts.FitTransform(context.Background(), X)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := Y.Dims(); r != 30 || c != 2 {
		t.Fatalf("Dims() = (%d, %d), want (30, 2)", r, c)
	}
	for _, v := range Y.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite embedding value %v", v)
		}
	}
	if ts.NIter() == 0 {
		t.Error("NIter() = 0")
	}

	var intra, inter float64
	var nIntra, nInter int
	for i := 0; i < 30; i++ {
		for j := i + 1; j < 30; j++ {
			dist := floats.Distance(Y.RawRowView(i), Y.RawRowView(j), 2)
			if labels[i] == labels[j] {
				intra += dist
				nIntra++
			} else {
				inter += dist
				nInter++
			}
		}
	}
	if intra/float64(nIntra) >= inter/float64(nInter) {
		t.Errorf("clusters not separated: intra=%v inter=%v", intra/float64(nIntra), inter/float64(nInter))
	}
}

func TestTSNE_Errors(t *testing.T) {
	X, _ := clusters(2, 5, 3)
	tests := []struct {
		name string
		opts []Option
	}{
		{"perplexity equals samples", []Option{WithPerplexity(10)}},
		{"perplexity above samples", []Option{WithPerplexity(30)}},
		{"negative perplexity", []Option{WithPerplexity(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append(tt.opts, WithLogger(log.Nop()))
			var ve *errors.ValueError
			if _, err := NewTSNE(opts...).FitTransform(context.Background(), X); !errors.As(err, &ve) {
				t.Errorf("expected ValueError, got %v", err)
			}
		})
	}

	var val *errors.ValidationError
	_, err := NewTSNE(WithPerplexity(3), WithNComponents(0), WithLogger(log.Nop())).FitTransform(context.Background(), X)
	if !errors.As(err, &val) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	if _, err := NewTSNE(WithLogger(log.Nop())).FitTransform(context.Background(), &mat.Dense{}); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestTSNE_Cancelled(t *testing.T) {
	X, _ := clusters(2, 5, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ts := NewTSNE(WithPerplexity(3), WithMaxIter(1000), WithLogger(log.Nop()))
	if _, err := ts.FitTransform(ctx, X); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ts.NIter() > 1 {
		t.Errorf("NIter() = %d, want stop at first step", ts.NIter())
	}
}
