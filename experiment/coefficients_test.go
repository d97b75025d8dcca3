package experiment

import (
	"slices"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/pkg/errors"
)

func terms(tw []TermWeight) []string {
	out := make([]string, len(tw))
	for i, t := range tw {
		out[i] = t.Term
	}
	return out
}

func TestCoefficientSummary(t *testing.T) {
	features := []string{"car", "goal", "moon", "orbit", "puck"}
	coef := mat.NewDense(3, 5, []float64{
		2.0, -0.5, -1.0, -1.0, 0.0,
		-0.3, 1.5, 0.0, -0.2, 1.5,
		-1.0, 0.0, 3.0, 2.5, -0.4,
	})
	got, err := CoefficientSummary(coef, features, []int{0, 1, 2}, []string{"autos", "hockey", "space"}, 2)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		positive []string
		negative []string
	}{
		{"autos", []string{"car"}, []string{"moon", "orbit"}},
		{"hockey", []string{"goal", "puck"}, []string{"car", "orbit"}},
		{"space", []string{"moon", "orbit"}, []string{"car", "puck"}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := got[i]
			if s.Name != tt.name || s.Label != i {
				t.Errorf("class = %d %q", s.Label, s.Name)
			}
			if p := terms(s.Positive); !slices.Equal(p, tt.positive) {
				t.Errorf("Positive = %v, want %v", p, tt.positive)
			}
			if n := terms(s.Negative); !slices.Equal(n, tt.negative) {
				t.Errorf("Negative = %v, want %v", n, tt.negative)
			}
		})
	}
}

func TestCoefficientSummary_Binary(t *testing.T) {
	features := []string{"nasa", "price", "sale"}
	coef := mat.NewDense(1, 3, []float64{-2, 1, 0.5})
	got, err := CoefficientSummary(coef, features, []int{4, 9}, nil, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d summaries, want 2", len(got))
	}
	if got[0].Name != "4" || !slices.Equal(terms(got[0].Positive), []string{"nasa"}) {
		t.Errorf("negative class = %+v", got[0])
	}
	if got[1].Name != "9" || !slices.Equal(terms(got[1].Positive), []string{"price", "sale"}) {
		t.Errorf("positive class = %+v", got[1])
	}
	if got[0].Positive[0].Weight != 2 {
		t.Errorf("negated weight = %v, want 2", got[0].Positive[0].Weight)
	}
}

func TestCoefficientSummary_Errors(t *testing.T) {
	coef := mat.NewDense(2, 2, nil)
	var de *errors.DimensionError
	if _, err := CoefficientSummary(coef, []string{"a"}, []int{0, 1}, nil, 3); !errors.As(err, &de) {
		t.Errorf("feature mismatch: expected DimensionError, got %v", err)
	}
	if _, err := CoefficientSummary(coef, []string{"a", "b"}, []int{0, 1, 2}, nil, 3); !errors.As(err, &de) {
		t.Errorf("class mismatch: expected DimensionError, got %v", err)
	}
	var ve *errors.ValidationError
	if _, err := CoefficientSummary(coef, []string{"a", "b"}, []int{0, 1}, nil, 0); !errors.As(err, &ve) {
		t.Errorf("top_n 0: expected ValidationError, got %v", err)
	}
}

func TestGridTiles(t *testing.T) {
	tiles := gridTiles([]ClassSummary{
		{Name: "space", Positive: []TermWeight{{"orbit", 2}, {"moon", 1}}},
		{Name: "empty"},
	})
	if len(tiles) != 2 || tiles[0].Name != "space" || !slices.Equal(tiles[0].Terms, []string{"orbit", "moon"}) {
		t.Errorf("tiles = %+v", tiles)
	}
	if len(tiles[1].Terms) != 0 || len(tiles[1].Weights) != 0 {
		t.Errorf("empty tile = %+v", tiles[1])
	}
}
