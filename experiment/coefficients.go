package experiment

import (
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/viz"
)

// TermWeight is one vocabulary term with its coefficient.
type TermWeight struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// ClassSummary lists the strongest terms for one class.
type ClassSummary struct {
	Label    int          `json:"label"`
	Name     string       `json:"name"`
	Positive []TermWeight `json:"positive"`
	Negative []TermWeight `json:"negative"`
}

// CoefficientSummary は各クラスの係数から正負それぞれ上位 topN の語を抽出する
//
// coef は classes と同じ行数を持つ。二値分類で1行のみの場合、
// その行を classes[1] に、符号を反転した行を classes[0] に割り当てる。
// names が nil の場合はラベル番号を名前に使う。
func CoefficientSummary(coef mat.Matrix, features []string, classes []int, names []string, topN int) ([]ClassSummary, error) {
	if topN < 1 {
		return nil, errors.NewValidationError("top_n", "must be positive", topN)
	}
	rows, cols := coef.Dims()
	if cols != len(features) {
		return nil, errors.NewDimensionError("CoefficientSummary", len(features), cols, 1)
	}
	if names != nil && len(names) != len(classes) {
		return nil, errors.NewDimensionError("CoefficientSummary", len(classes), len(names), 0)
	}
	binary := len(classes) == 2 && rows == 1
	if !binary && rows != len(classes) {
		return nil, errors.NewDimensionError("CoefficientSummary", len(classes), rows, 0)
	}

	out := make([]ClassSummary, len(classes))
	for c, label := range classes {
		var w []float64
		switch {
		case binary && c == 0:
			w = mat.Row(nil, 0, coef)
			for j := range w {
				w[j] = -w[j]
			}
		case binary:
			w = mat.Row(nil, 0, coef)
		default:
			w = mat.Row(nil, c, coef)
		}
		s := ClassSummary{Label: label, Name: labelName(label, c, names)}
		s.Positive, s.Negative = topTerms(w, features, topN)
		out[c] = s
	}
	return out, nil
}

// topTerms returns up to n strictly positive weights in descending order
// and up to n strictly negative weights in ascending order. Ties are broken
// by term.
func topTerms(w []float64, features []string, n int) (pos, neg []TermWeight) {
	idx := make([]int, len(w))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if w[idx[a]] != w[idx[b]] {
			return w[idx[a]] > w[idx[b]]
		}
		return features[idx[a]] < features[idx[b]]
	})
	for _, j := range idx {
		if len(pos) == n || w[j] <= 0 {
			break
		}
		pos = append(pos, TermWeight{Term: features[j], Weight: w[j]})
	}
	for k := len(idx) - 1; k >= 0; k-- {
		j := idx[k]
		if len(neg) == n || w[j] >= 0 {
			break
		}
		neg = append(neg, TermWeight{Term: features[j], Weight: w[j]})
	}
	// 同じ重みの語は辞書順に並べる
	sort.SliceStable(neg, func(a, b int) bool {
		if neg[a].Weight != neg[b].Weight {
			return neg[a].Weight < neg[b].Weight
		}
		return neg[a].Term < neg[b].Term
	})
	return pos, neg
}

func labelName(label, i int, names []string) string {
	if names != nil {
		return names[i]
	}
	return strconv.Itoa(label)
}

// gridTiles converts summaries to the positive-term tiles drawn by viz.
func gridTiles(summaries []ClassSummary) []viz.ClassTerms {
	tiles := make([]viz.ClassTerms, len(summaries))
	for i, s := range summaries {
		t := viz.ClassTerms{Name: s.Name}
		for _, tw := range s.Positive {
			t.Terms = append(t.Terms, tw.Term)
			t.Weights = append(t.Weights, tw.Weight)
		}
		tiles[i] = t
	}
	return tiles
}
