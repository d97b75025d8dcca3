package model

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	scierrors "github.com/YuminosukeSato/textclf/pkg/errors"
)

func fittedWeights() *ModelWeights {
	return &ModelWeights{
		ModelType:    "LogisticRegression",
		Version:      WeightsVersion,
		Classes:      []int{0, 1, 2},
		ClassNames:   []string{"alt.atheism", "sci.space", "rec.autos"},
		Coefficients: [][]float64{{0.1, -0.2}, {0.3, 0.4}, {-0.5, 0.6}},
		Intercepts:   []float64{0.01, 0.02, 0.03},
		Features:     []string{"god", "orbit"},
		Hyperparameters: map[string]interface{}{
			"C": 1.0,
		},
		Metadata: map[string]interface{}{"n_iter": 12},
		IsFitted: true,
	}
}

func TestStateManager(t *testing.T) {
	sm := NewStateManager("TfidfVectorizer")

	err := sm.RequireFitted("Transform")
	var nf *scierrors.NotFittedError
	if !scierrors.As(err, &nf) {
		t.Fatalf("expected NotFittedError, got %v", err)
	}
	if nf.ModelName != "TfidfVectorizer" || nf.Method != "Transform" {
		t.Errorf("unexpected error fields: %+v", nf)
	}

	sm.SetDimensions(100, 20, 3)
	sm.SetFitted()
	if err := sm.RequireFeatures("Transform", 100); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	var dim *scierrors.DimensionError
	if err := sm.RequireFeatures("Transform", 99); !scierrors.As(err, &dim) {
		t.Errorf("expected DimensionError, got %v", err)
	}

	state := sm.GetState()
	if state != (ModelState{Fitted: true, NFeatures: 100, NSamples: 20, NClasses: 3}) {
		t.Errorf("GetState = %+v", state)
	}

	sm.Reset()
	if sm.IsFitted() {
		t.Error("Reset should clear the fitted flag")
	}
	sm.SetState(state)
	if f, s, c := sm.GetDimensions(); f != 100 || s != 20 || c != 3 {
		t.Errorf("GetDimensions after SetState = %d %d %d", f, s, c)
	}
}

func TestStateManagerConcurrent(t *testing.T) {
	sm := NewStateManager("x")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); sm.SetFitted() }()
		go func() { defer wg.Done(); _ = sm.IsFitted() }()
	}
	wg.Wait()
	if !sm.IsFitted() {
		t.Error("expected fitted")
	}
}

func TestModelWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(w *ModelWeights)
		wantErr bool
	}{
		{"valid multiclass", func(w *ModelWeights) {}, false},
		{"valid binary single row", func(w *ModelWeights) {
			w.Classes = []int{0, 1}
			w.ClassNames = nil
			w.Coefficients = w.Coefficients[:1]
			w.Intercepts = w.Intercepts[:1]
		}, false},
		{"missing type", func(w *ModelWeights) { w.ModelType = "" }, true},
		{"missing version", func(w *ModelWeights) { w.Version = "" }, true},
		{"ragged rows", func(w *ModelWeights) { w.Coefficients[1] = []float64{1} }, true},
		{"intercept count", func(w *ModelWeights) { w.Intercepts = w.Intercepts[:2] }, true},
		{"feature names", func(w *ModelWeights) { w.Features = []string{"a"} }, true},
		{"class names", func(w *ModelWeights) { w.ClassNames = []string{"a"} }, true},
		{"one class", func(w *ModelWeights) { w.Classes = []int{0} }, true},
		{"unfitted with coef", func(w *ModelWeights) { w.IsFitted = false }, true},
		{"unfitted empty", func(w *ModelWeights) {
			w.IsFitted = false
			w.Coefficients = nil
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := fittedWeights()
			tt.mutate(w)
			err := w.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestModelWeightsClone(t *testing.T) {
	w := fittedWeights()
	c := w.Clone()
	c.Coefficients[0][0] = 99
	c.Hyperparameters["C"] = 2.0
	c.Features[0] = "changed"
	if w.Coefficients[0][0] != 0.1 || w.Hyperparameters["C"] != 1.0 || w.Features[0] != "god" {
		t.Error("Clone must not share memory with the original")
	}
}

func TestSaveLoadWeights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")

	w := fittedWeights()
	if err := SaveWeights(path, w); err != nil {
		t.Fatalf("SaveWeights: %v", err)
	}

	got, err := LoadWeights(path)
	if err != nil {
		t.Fatalf("LoadWeights: %v", err)
	}
	if got.ModelType != w.ModelType || got.NFeatures() != 2 || len(got.Classes) != 3 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Coefficients[2][1] != 0.6 || got.ClassNames[1] != "sci.space" {
		t.Errorf("values lost in round trip: %+v", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestSaveWeightsRejectsInvalid(t *testing.T) {
	w := fittedWeights()
	w.Version = ""
	if err := SaveWeights(filepath.Join(t.TempDir(), "m.json"), w); err == nil {
		t.Error("expected validation error")
	}
}

func TestReadWeightsBadJSON(t *testing.T) {
	if _, err := ReadWeights(strings.NewReader("{not json")); err == nil {
		t.Error("expected decode error")
	}
}
