package preprocessing

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

func TestTextCleaner_Clean(t *testing.T) {
	tests := []struct {
		name string
		opts []CleanerOption
		in   string
		want string
	}{
		{
			name: "url removed",
			in:   "See http://www.nasa.gov/shuttle/index.html for DETAILS",
			want: "see for details",
		},
		{
			name: "url with userinfo removed whole",
			in:   "see http://user@host.com/path today",
			want: "see today",
		},
		{
			name: "email on a www host",
			in:   "ask jdoe@www.example.com first",
			want: "ask first",
		},
		{
			name: "bare www url",
			in:   "www.nasa.gov has images",
			want: "has images",
		},
		{
			name: "email removed",
			in:   "mail jdoe@cs.example.edu now",
			want: "mail now",
		},
		{
			name: "html and digits",
			in:   "<b>Launch</b> in 1993 at T-10",
			want: "launch in at",
		},
		{
			name: "accents stripped",
			in:   "Café naïve résumé",
			want: "cafe naive resume",
		},
		{
			name: "punctuation becomes space",
			in:   "it's a re-entry!!!",
			want: "it re entry",
		},
		{
			name: "short tokens kept when disabled",
			opts: []CleanerOption{WithMinTokenLen(0)},
			in:   "a b cd",
			want: "a b cd",
		},
		{
			name: "min token length 3",
			opts: []CleanerOption{WithMinTokenLen(3)},
			in:   "to be or not",
			want: "not",
		},
		{
			name: "lowercase off",
			opts: []CleanerOption{WithLowercase(false)},
			in:   "NASA Orbit",
			want: "NASA Orbit",
		},
		{
			name: "digits kept when only digits disabled and letters only off",
			opts: []CleanerOption{WithRemoveDigits(false), WithLettersOnly(false)},
			in:   "v8 engine",
			want: "v8 engine",
		},
		{
			name: "whitespace collapsed",
			in:   "  many\t\tspaces \n here ",
			want: "many spaces here",
		},
		{
			name: "only noise",
			in:   "1234 !!! http://x.y",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]CleanerOption{WithCleanerLogger(log.Nop())}, tt.opts...)
			c := NewTextCleaner(opts...)
			if got := c.Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextCleaner_CleanAll(t *testing.T) {
	docs := make([]string, 1000)
	for i := range docs {
		docs[i] = fmt.Sprintf("Doc %d ABOUT orbit-%d", i, i)
	}
	logger, _ := log.NewTestLogger(log.LevelDebug)
	c := NewTextCleaner(WithWorkers(4), WithCleanerLogger(logger))

	out, err := c.CleanAll(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(docs) {
		t.Fatalf("got %d docs", len(out))
	}
	for i, d := range out {
		if d != "doc about orbit" {
			t.Fatalf("out[%d] = %q", i, d)
		}
	}
	if !logger.ContainsField(log.DocumentsKey, 1000.0) {
		t.Error("expected document count in log")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.CleanAll(ctx, docs); err == nil {
		t.Error("expected cancellation error")
	}
}

func TestNormalizer_Dense(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		3, 4,
		0, 0,
		-1, 1,
	})
	tests := []struct {
		norm string
		want []float64
	}{
		{NormL2, []float64{0.6, 0.8, 0, 0, -1 / math.Sqrt2, 1 / math.Sqrt2}},
		{NormL1, []float64{3.0 / 7, 4.0 / 7, 0, 0, -0.5, 0.5}},
		{NormMax, []float64{0.75, 1, 0, 0, -1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.norm, func(t *testing.T) {
			n, err := NewNormalizer(tt.norm)
			if err != nil {
				t.Fatal(err)
			}
			got, err := n.FitTransform(X)
			if err != nil {
				t.Fatal(err)
			}
			if !mat.EqualApprox(got, mat.NewDense(3, 2, tt.want), 1e-12) {
				t.Errorf("got %v", mat.Formatted(got))
			}
		})
	}
}

func TestNormalizer_ManyRows(t *testing.T) {
	rows := parallelRowThreshold*2 + 7
	X := mat.NewDense(rows, 2, nil)
	for i := 0; i < rows; i++ {
		X.Set(i, 0, float64(i%5))
		X.Set(i, 1, float64(i%3+1))
	}
	n, _ := NewNormalizer(NormL2)
	got, err := n.Transform(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < rows; i++ {
		a, b := got.At(i, 0), got.At(i, 1)
		if math.Abs(math.Hypot(a, b)-1) > 1e-12 {
			t.Fatalf("row %d has norm %v", i, math.Hypot(a, b))
		}
	}
	if X.At(1, 0) != 1 {
		t.Error("input was modified")
	}
}

func TestNormalizer_SparseStaysSparse(t *testing.T) {
	dok := sparse.NewDOK(2, 4)
	dok.Set(0, 1, 3)
	dok.Set(0, 3, 4)
	dok.Set(1, 2, 2)
	X := dok.ToCSR()

	n, _ := NewNormalizer("")
	got, err := n.Transform(X)
	if err != nil {
		t.Fatal(err)
	}
	csr, ok := got.(*sparse.CSR)
	if !ok {
		t.Fatalf("expected *sparse.CSR, got %T", got)
	}
	if csr.NNZ() != 3 {
		t.Errorf("NNZ = %d, want 3", csr.NNZ())
	}
	want := mat.NewDense(2, 4, []float64{0, 0.6, 0, 0.8, 0, 0, 1, 0})
	if !mat.EqualApprox(csr, want, 1e-12) {
		t.Errorf("got %v", mat.Formatted(csr))
	}
}

func TestNormalizer_Errors(t *testing.T) {
	if _, err := NewNormalizer("l3"); err == nil {
		t.Error("expected invalid norm error")
	}
	n, _ := NewNormalizer(NormL2)
	_, err := n.Transform(emptyMatrix{})
	if !errors.Is(err, errors.ErrEmptyData) {
		t.Errorf("expected ErrEmptyData, got %v", err)
	}
}

type emptyMatrix struct{}

func (emptyMatrix) Dims() (int, int)    { return 0, 0 }
func (emptyMatrix) At(i, j int) float64 { panic("empty") }
func (e emptyMatrix) T() mat.Matrix     { return e }
