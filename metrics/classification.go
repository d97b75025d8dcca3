package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/pkg/errors"
)

// logLossEps clips probabilities away from 0 and 1.
const logLossEps = 1e-15

func checkLabels(op string, yTrue, yPred []int) error {
	if len(yTrue) == 0 {
		return errors.NewValueError(op, "empty label slice")
	}
	if len(yPred) != len(yTrue) {
		return errors.NewDimensionError(op, len(yTrue), len(yPred), 0)
	}
	return nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred []int) (float64, error) {
	if err := checkLabels("Accuracy", yTrue, yPred); err != nil {
		return 0, err
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// UniqueLabels returns the sorted union of the labels in the given slices.
func UniqueLabels(ys ...[]int) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, y := range ys {
		for _, v := range y {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	sort.Ints(out)
	return out
}

// ConfusionMatrix は混同行列を計算する
//
// 行が真のラベル、列が予測ラベルで、順序は labels に従う。
// labels が nil の場合は yTrue と yPred に現れるラベルを昇順で使う。
// labels に含まれないラベルのサンプルは数えない。
func ConfusionMatrix(yTrue, yPred, labels []int) (*mat.Dense, error) {
	if err := checkLabels("ConfusionMatrix", yTrue, yPred); err != nil {
		return nil, err
	}
	if labels == nil {
		labels = UniqueLabels(yTrue, yPred)
	}
	if len(labels) == 0 {
		return nil, errors.NewValueError("ConfusionMatrix", "labels is empty")
	}
	index := make(map[int]int, len(labels))
	for i, l := range labels {
		if _, dup := index[l]; dup {
			return nil, errors.NewValueError("ConfusionMatrix", fmt.Sprintf("duplicate label %d", l))
		}
		index[l] = i
	}
	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := range yTrue {
		r, ok1 := index[yTrue[i]]
		c, ok2 := index[yPred[i]]
		if ok1 && ok2 {
			cm.Set(r, c, cm.At(r, c)+1)
		}
	}
	return cm, nil
}

// PrecisionRecallFScoreSupport はラベルごとの適合率、再現率、F1、サポートを返す
//
// 分母が0になる指標は0とし、UndefinedMetricWarning を発行する。
func PrecisionRecallFScoreSupport(yTrue, yPred, labels []int) (precision, recall, f1 []float64, support []int, err error) {
	cm, err := ConfusionMatrix(yTrue, yPred, labels)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	k, _ := cm.Dims()
	precision = make([]float64, k)
	recall = make([]float64, k)
	f1 = make([]float64, k)
	support = make([]int, k)

	var noPred, noTrue int
	for i := 0; i < k; i++ {
		tp := cm.At(i, i)
		predicted := floats.Sum(mat.Col(nil, i, cm))
		actual := floats.Sum(cm.RawRowView(i))
		support[i] = int(actual)

		if predicted > 0 {
			precision[i] = tp / predicted
		} else {
			noPred++
		}
		if actual > 0 {
			recall[i] = tp / actual
		} else {
			noTrue++
		}
		if s := precision[i] + recall[i]; s > 0 {
			f1[i] = 2 * precision[i] * recall[i] / s
		}
	}
	if noPred > 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("precision",
			fmt.Sprintf("%d label(s) with no predicted samples", noPred), 0))
	}
	if noTrue > 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall",
			fmt.Sprintf("%d label(s) with no true samples", noTrue), 0))
	}
	return precision, recall, f1, support, nil
}

// ClassMetrics is one row of a ClassificationReport.
type ClassMetrics struct {
	Label     int     `json:"label"`
	Name      string  `json:"name"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Averages holds averaged precision, recall and F1.
type Averages struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
}

// Report はscikit-learnの classification_report に相当する集計
type Report struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    Averages       `json:"macro_avg"`
	WeightedAvg Averages       `json:"weighted_avg"`
	Support     int            `json:"support"`
}

// ClassificationReport computes per-label metrics with accuracy, macro and
// support-weighted averages. names, when non-nil, must have one entry per
// label; otherwise labels are printed as numbers.
func ClassificationReport(yTrue, yPred, labels []int, names []string) (*Report, error) {
	if labels == nil {
		labels = UniqueLabels(yTrue, yPred)
	}
	if names != nil && len(names) != len(labels) {
		return nil, errors.NewDimensionError("ClassificationReport", len(labels), len(names), 0)
	}
	p, r, f, s, err := PrecisionRecallFScoreSupport(yTrue, yPred, labels)
	if err != nil {
		return nil, err
	}
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}

	rep := &Report{Accuracy: acc, Classes: make([]ClassMetrics, len(labels))}
	w := make([]float64, len(labels))
	for i, l := range labels {
		name := strconv.Itoa(l)
		if names != nil {
			name = names[i]
		}
		rep.Classes[i] = ClassMetrics{Label: l, Name: name, Precision: p[i], Recall: r[i], F1: f[i], Support: s[i]}
		rep.Support += s[i]
		w[i] = float64(s[i])
	}
	n := float64(len(labels))
	rep.MacroAvg = Averages{floats.Sum(p) / n, floats.Sum(r) / n, floats.Sum(f) / n}
	if rep.Support > 0 {
		total := float64(rep.Support)
		rep.WeightedAvg = Averages{floats.Dot(p, w) / total, floats.Dot(r, w) / total, floats.Dot(f, w) / total}
	}
	return rep, nil
}

// String renders the report as an aligned text table.
func (r *Report) String() string {
	width := len("weighted avg")
	for _, c := range r.Classes {
		width = max(width, len(c.Name))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, c.Name, c.Precision, c.Recall, c.F1, c.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Support)
	fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, "macro avg",
		r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.Support)
	fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, "weighted avg",
		r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.Support)
	return b.String()
}

// LogLoss は多クラスの交差エントロピーを計算する
//
// proba の列は labels の順に対応する。各行は正規化し直し、
// 確率は [eps, 1-eps] にクリップする。
func LogLoss(yTrue []int, proba mat.Matrix, labels []int) (float64, error) {
	n, k := proba.Dims()
	if len(yTrue) == 0 {
		return 0, errors.NewValueError("LogLoss", "empty label slice")
	}
	if n != len(yTrue) {
		return 0, errors.NewDimensionError("LogLoss", len(yTrue), n, 0)
	}
	if k != len(labels) {
		return 0, errors.NewDimensionError("LogLoss", len(labels), k, 1)
	}
	index := make(map[int]int, k)
	for j, l := range labels {
		index[l] = j
	}
	row := make([]float64, k)
	total := 0.0
	for i, y := range yTrue {
		j, ok := index[y]
		if !ok {
			return 0, errors.NewValueError("LogLoss", fmt.Sprintf("label %d not in labels", y))
		}
		mat.Row(row, i, proba)
		for c := range row {
			row[c] = errors.ClipValue(row[c], logLossEps, 1-logLossEps)
		}
		total -= math.Log(row[j] / floats.Sum(row))
	}
	return total / float64(n), nil
}
