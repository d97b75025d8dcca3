// Package model_selection はデータ分割のユーティリティを提供する
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/textclf/pkg/errors"
)

// TrainTestSplit はサンプルを学習用とテスト用のインデックスに分割する
//
// stratify が true の場合、各クラスから round(n_c × testSize) 件を
// テストに回す（2件以上あるクラスは最低1件ずつ両方に残す）。
// 同じ seed なら結果は同じで、返すインデックスは昇順。
//
// 使用例:
//
//	train, test, err := model_selection.TrainTestSplit(ds.Labels(), 0.2, 42, true)
func TrainTestSplit(labels []int, testSize float64, seed uint64, stratify bool) (train, test []int, err error) {
	if !(testSize > 0 && testSize < 1) {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	n := len(labels)
	if n < 2 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			"need at least 2 samples to split")
	}
	r := rand.New(rand.NewPCG(seed, seed))

	if !stratify {
		idx := r.Perm(n)
		nTest := clampSplit(int(math.Round(float64(n)*testSize)), n)
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	} else {
		for _, indices := range groupByClass(labels) {
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
			nTest := 0
			if len(indices) >= 2 {
				nTest = clampSplit(int(math.Round(float64(len(indices))*testSize)), len(indices))
			}
			test = append(test, indices[:nTest]...)
			train = append(train, indices[nTest:]...)
		}
	}

	if len(train) == 0 || len(test) == 0 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			"split leaves the train or test set empty")
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// StratifiedSample returns at most n indices whose class proportions match
// labels. Quotas are floor(n·n_c/N) with the remainder going to the classes
// with the largest fractional parts. The result is sorted.
func StratifiedSample(labels []int, n int, seed uint64) []int {
	total := len(labels)
	if n >= total {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if n <= 0 {
		return nil
	}

	groups := groupByClass(labels)
	quota := make([]int, len(groups))
	type frac struct {
		g int
		f float64
	}
	fracs := make([]frac, len(groups))
	assigned := 0
	for g, indices := range groups {
		exact := float64(n) * float64(len(indices)) / float64(total)
		quota[g] = int(exact)
		assigned += quota[g]
		fracs[g] = frac{g, exact - float64(quota[g])}
	}
	sort.SliceStable(fracs, func(a, b int) bool { return fracs[a].f > fracs[b].f })
	for k := 0; assigned < n; k = (k + 1) % len(fracs) {
		g := fracs[k].g
		if quota[g] < len(groups[g]) {
			quota[g]++
			assigned++
		}
	}

	r := rand.New(rand.NewPCG(seed, seed))
	out := make([]int, 0, n)
	for g, indices := range groups {
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		out = append(out, indices[:quota[g]]...)
	}
	sort.Ints(out)
	return out
}

// groupByClass returns the sample indices of each class, classes in
// ascending label order.
func groupByClass(labels []int) [][]int {
	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	groups := make([][]int, len(classes))
	for i, c := range classes {
		groups[i] = byClass[c]
	}
	return groups
}

func clampSplit(nTest, n int) int {
	return max(1, min(nTest, n-1))
}
