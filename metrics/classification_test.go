package metrics

import (
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/pkg/errors"
)

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []int
		yPred   []int
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect accuracy",
			yTrue: []int{0, 1, 2, 1, 0},
			yPred: []int{0, 1, 2, 1, 0},
			want:  1.0,
		},
		{
			name:  "80% accuracy",
			yTrue: []int{0, 1, 2, 1, 0},
			yPred: []int{0, 1, 1, 1, 0},
			want:  0.8,
		},
		{
			name:  "Zero accuracy",
			yTrue: []int{0, 0, 0},
			yPred: []int{1, 1, 1},
			want:  0.0,
		},
		{
			name:    "Empty slices",
			yTrue:   []int{},
			yPred:   []int{},
			wantErr: true,
		},
		{
			name:    "Length mismatch",
			yTrue:   []int{0, 1},
			yPred:   []int{0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accuracy(tt.yTrue, tt.yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("Accuracy() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Accuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfusionMatrix(t *testing.T) {
	yTrue := []int{2, 0, 2, 2, 0, 1}
	yPred := []int{0, 0, 2, 2, 0, 2}

	tests := []struct {
		name   string
		labels []int
		want   []float64
		k      int
	}{
		{
			name: "labels inferred",
			want: []float64{
				2, 0, 0,
				0, 0, 1,
				1, 0, 2,
			},
			k: 3,
		},
		{
			name:   "label order respected",
			labels: []int{2, 1, 0},
			want: []float64{
				2, 0, 1,
				1, 0, 0,
				0, 0, 2,
			},
			k: 3,
		},
		{
			name:   "subset of labels",
			labels: []int{0, 2},
			want: []float64{
				2, 0,
				1, 2,
			},
			k: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm, err := ConfusionMatrix(yTrue, yPred, tt.labels)
			if err != nil {
				t.Fatal(err)
			}
			if !mat.Equal(cm, mat.NewDense(tt.k, tt.k, tt.want)) {
				t.Errorf("ConfusionMatrix() =\n%v", mat.Formatted(cm))
			}
		})
	}

	if _, err := ConfusionMatrix(yTrue, yPred, []int{0, 0}); err == nil {
		t.Error("expected error for duplicate labels")
	}
}

func TestPrecisionRecallFScoreSupport(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1, 2}
	yPred := []int{0, 0, 1, 1, 2, 2}

	p, r, f, s, err := PrecisionRecallFScoreSupport(yTrue, yPred, nil)
	if err != nil {
		t.Fatal(err)
	}
	wantP := []float64{1, 0.5, 0.5}
	wantR := []float64{2.0 / 3, 0.5, 1}
	wantS := []int{3, 2, 1}
	for i := range wantP {
		if math.Abs(p[i]-wantP[i]) > 1e-12 || math.Abs(r[i]-wantR[i]) > 1e-12 || s[i] != wantS[i] {
			t.Errorf("label %d: p=%v r=%v s=%v", i, p[i], r[i], s[i])
		}
		wantF := 2 * wantP[i] * wantR[i] / (wantP[i] + wantR[i])
		if math.Abs(f[i]-wantF) > 1e-12 {
			t.Errorf("label %d: f1=%v want %v", i, f[i], wantF)
		}
	}
}

func TestPrecisionRecall_ZeroDivision(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	t.Cleanup(func() { errors.SetWarningHandler(nil) })

	// label 2 is never predicted, label 3 never occurs
	p, r, f, _, err := PrecisionRecallFScoreSupport([]int{0, 1, 2}, []int{0, 1, 3}, []int{0, 1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if p[2] != 0 || r[3] != 0 || f[2] != 0 || f[3] != 0 {
		t.Errorf("undefined metrics should be 0: p=%v r=%v f=%v", p, r, f)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %d", len(warnings))
	}
	var uw *errors.UndefinedMetricWarning
	if !errors.As(warnings[0], &uw) {
		t.Errorf("expected UndefinedMetricWarning, got %T", warnings[0])
	}
}

func TestClassificationReport(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1, 2}
	yPred := []int{0, 0, 1, 1, 2, 2}
	names := []string{"alt.atheism", "sci.space", "rec.autos"}

	rep, err := ClassificationReport(yTrue, yPred, []int{0, 1, 2}, names)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Support != 6 || math.Abs(rep.Accuracy-4.0/6) > 1e-12 {
		t.Errorf("support=%d accuracy=%v", rep.Support, rep.Accuracy)
	}
	if math.Abs(rep.MacroAvg.Precision-2.0/3) > 1e-12 {
		t.Errorf("macro precision = %v", rep.MacroAvg.Precision)
	}
	// (1·3 + 0.5·2 + 0.5·1) / 6
	if math.Abs(rep.WeightedAvg.Precision-4.5/6) > 1e-12 {
		t.Errorf("weighted precision = %v", rep.WeightedAvg.Precision)
	}
	if rep.Classes[1].Name != "sci.space" || rep.Classes[1].Label != 1 {
		t.Errorf("class row = %+v", rep.Classes[1])
	}

	out := rep.String()
	for _, want := range []string{"precision", "sci.space", "accuracy", "macro avg", "weighted avg", "0.67"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}

	if _, err := ClassificationReport(yTrue, yPred, []int{0, 1, 2}, names[:2]); err == nil {
		t.Error("expected error for short names")
	}
}

func TestLogLoss(t *testing.T) {
	labels := []int{0, 1, 2}
	tests := []struct {
		name    string
		yTrue   []int
		proba   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect predictions",
			yTrue: []int{0, 1, 2},
			proba: []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
			want:  0,
		},
		{
			name:  "Typical case",
			yTrue: []int{0, 1},
			proba: []float64{0.8, 0.1, 0.1, 0.2, 0.5, 0.3},
			want:  (-math.Log(0.8) - math.Log(0.5)) / 2,
		},
		{
			name:  "Rows are renormalised",
			yTrue: []int{0},
			proba: []float64{2, 1, 1},
			want:  -math.Log(0.5),
		},
		{
			name:    "Unknown label",
			yTrue:   []int{5},
			proba:   []float64{0.3, 0.3, 0.4},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := len(tt.proba) / 3
			got, err := LogLoss(tt.yTrue, mat.NewDense(rows, 3, tt.proba), labels)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LogLoss() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("LogLoss() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := LogLoss([]int{0}, mat.NewDense(1, 2, []float64{0.5, 0.5}), labels); err == nil {
		t.Error("expected error for column mismatch")
	}
}

func BenchmarkConfusionMatrix(b *testing.B) {
	n := 10000
	yTrue := make([]int, n)
	yPred := make([]int, n)
	for i := 0; i < n; i++ {
		yTrue[i] = i % 20
		yPred[i] = (i * 7) % 20
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ConfusionMatrix(yTrue, yPred, nil)
	}
}
