// Package text は文書集合を TF-IDF 行列へ変換する
//
// 語彙の構築、単語の計数、IDF 重み付けは github.com/james-bowman/nlp に
// 委譲し、このパッケージは文書頻度による語彙の刈り込み、max_features、
// サブリニア TF、行正規化、documents × terms への転置を担当する。
package text

import (
	"math"
	"sort"

	"github.com/james-bowman/nlp"
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/core/model"
	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
	"github.com/YuminosukeSato/textclf/preprocessing"
)

var _ model.TextTransformer = (*TfidfVectorizer)(nil)

// nonZeroDoer is implemented by the sparse matrix types.
type nonZeroDoer interface {
	DoNonZero(fn func(i, j int, v float64))
}

// TfidfVectorizer はscikit-learn互換の TF-IDF ベクトライザ
//
// MinDF と MaxDF は 1 未満 (MaxDF は 1 以下) なら文書数に対する割合、
// それ以外は文書数の絶対値として解釈する。
type TfidfVectorizer struct {
	state *model.StateManager

	// ハイパーパラメータ
	MinDF       float64
	MaxDF       float64
	MaxFeatures int // 0 なら無制限
	StopWords   []string
	SublinearTF bool
	Norm        string // "l1", "l2", "max", "none"

	// 学習済みパラメータ
	vocabulary   map[string]int
	featureNames []string
	rawVocabSize int
	prunedTerms  int
	pipeline     *nlp.Pipeline
	normalizer   *preprocessing.Normalizer

	logger log.Logger
}

// Option configures a TfidfVectorizer.
type Option func(*TfidfVectorizer)

// WithMinDF ignores terms that appear in fewer documents.
func WithMinDF(v float64) Option { return func(t *TfidfVectorizer) { t.MinDF = v } }

// WithMaxDF ignores terms that appear in more documents.
func WithMaxDF(v float64) Option { return func(t *TfidfVectorizer) { t.MaxDF = v } }

// WithMaxFeatures keeps the n most frequent terms.
func WithMaxFeatures(n int) Option { return func(t *TfidfVectorizer) { t.MaxFeatures = n } }

// WithStopWords sets a custom stop-word list.
func WithStopWords(words ...string) Option {
	return func(t *TfidfVectorizer) { t.StopWords = append([]string(nil), words...) }
}

// WithEnglishStopWords uses EnglishStopWords.
func WithEnglishStopWords() Option {
	return func(t *TfidfVectorizer) { t.StopWords = EnglishStopWords }
}

// WithSublinearTF replaces tf with 1 + ln(tf).
func WithSublinearTF(on bool) Option { return func(t *TfidfVectorizer) { t.SublinearTF = on } }

// WithNorm sets the row norm; "none" disables normalisation.
func WithNorm(norm string) Option { return func(t *TfidfVectorizer) { t.Norm = norm } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(t *TfidfVectorizer) { t.logger = l } }

// NewTfidfVectorizer は新しい TfidfVectorizer を作成する
//
// デフォルトは MinDF=1, MaxDF=1.0, Norm="l2" (scikit-learn と同じ)
//
// 使用例:
//
//	vec := text.NewTfidfVectorizer(text.WithMinDF(5), text.WithMaxDF(0.5))
//	Xtrain, err := vec.FitTransform(trainDocs)
//	Xtest, err := vec.Transform(testDocs)
func NewTfidfVectorizer(opts ...Option) *TfidfVectorizer {
	t := &TfidfVectorizer{
		state: model.NewStateManager("TfidfVectorizer"),
		MinDF: 1,
		MaxDF: 1.0,
		Norm:  preprocessing.NormL2,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("TfidfVectorizer")
	}
	return t
}

func (t *TfidfVectorizer) validate() error {
	if t.MinDF < 0 {
		return errors.NewValidationError("min_df", "must be non-negative", t.MinDF)
	}
	if t.MaxDF <= 0 {
		return errors.NewValidationError("max_df", "must be positive", t.MaxDF)
	}
	if t.MaxFeatures < 0 {
		return errors.NewValidationError("max_features", "must be non-negative", t.MaxFeatures)
	}
	if t.Norm != "none" {
		if _, err := preprocessing.NewNormalizer(t.Norm); err != nil {
			return err
		}
	}
	return nil
}

// dfBounds converts MinDF/MaxDF into document counts for a corpus of n documents.
func (t *TfidfVectorizer) dfBounds(n int) (lo, hi float64) {
	lo = t.MinDF
	if t.MinDF < 1 {
		lo = t.MinDF * float64(n)
	}
	hi = t.MaxDF
	if t.MaxDF <= 1 {
		hi = t.MaxDF * float64(n)
	}
	return lo, hi
}

// Fit は語彙と IDF 重みを学習する
func (t *TfidfVectorizer) Fit(docs []string) error {
	if err := t.validate(); err != nil {
		return err
	}
	if len(docs) == 0 {
		return errors.NewModelError("TfidfVectorizer.Fit", "empty data", errors.ErrEmptyData)
	}
	t.state.Reset()

	cv := nlp.NewCountVectoriser(t.StopWords...)
	cv.Fit(docs...)
	counts, err := cv.Transform(docs...)
	if err != nil {
		return errors.Wrap(err, "count terms")
	}
	raw := len(cv.Vocabulary)
	if raw == 0 {
		return errors.NewEmptyVocabularyError(0, t.MinDF, t.MaxDF)
	}

	// counts は terms × docs
	df := make([]int, raw)
	tf := make([]float64, raw)
	eachNonZero(counts, func(term, _ int, v float64) {
		df[term]++
		tf[term] += v
	})

	lo, hi := t.dfBounds(len(docs))
	if hi < lo {
		return errors.NewValueError("TfidfVectorizer.Fit", "max_df corresponds to fewer documents than min_df")
	}
	terms := make([]string, 0, raw)
	for term, i := range cv.Vocabulary {
		if d := float64(df[i]); d >= lo && d <= hi {
			terms = append(terms, term)
		}
	}
	t.prunedTerms = raw - len(terms)

	if t.MaxFeatures > 0 && len(terms) > t.MaxFeatures {
		sort.Slice(terms, func(a, b int) bool {
			fa, fb := tf[cv.Vocabulary[terms[a]]], tf[cv.Vocabulary[terms[b]]]
			if fa != fb {
				return fa > fb
			}
			return terms[a] < terms[b]
		})
		terms = terms[:t.MaxFeatures]
	}
	if len(terms) == 0 {
		return errors.NewEmptyVocabularyError(raw, t.MinDF, t.MaxDF)
	}
	sort.Strings(terms)

	vocab := make(map[string]int, len(terms))
	for i, term := range terms {
		vocab[term] = i
	}
	cv.Vocabulary = vocab

	var steps []nlp.Transformer
	if t.SublinearTF {
		steps = append(steps, sublinearTF{})
	}
	steps = append(steps, nlp.NewTfidfTransformer())

	// 刈り込んだ語彙で数え直し、各ステップを順に学習する
	m, err := cv.Transform(docs...)
	if err != nil {
		return errors.Wrap(err, "count pruned terms")
	}
	for _, step := range steps {
		if m, err = step.FitTransform(m); err != nil {
			return errors.Wrap(err, "fit tf-idf")
		}
	}

	if t.Norm != "none" {
		if t.normalizer, err = preprocessing.NewNormalizer(t.Norm); err != nil {
			return err
		}
	} else {
		t.normalizer = nil
	}
	t.pipeline = nlp.NewPipeline(cv, steps...)
	t.vocabulary = vocab
	t.featureNames = terms
	t.rawVocabSize = raw
	t.state.SetDimensions(len(terms), len(docs), 0)
	t.state.SetFitted()

	t.logger.Info("Vocabulary fitted",
		log.OperationKey, log.OperationFit,
		log.DocumentsKey, len(docs),
		log.VocabularySizeKey, len(terms),
		log.PrunedTermsKey, raw-len(terms),
	)
	return nil
}

// Transform は文書を documents × terms の TF-IDF 行列へ変換する
// 戻り値の実体は *sparse.CSR
func (t *TfidfVectorizer) Transform(docs []string) (mat.Matrix, error) {
	return t.TransformCSR(docs)
}

// TransformCSR is Transform with the concrete sparse type.
func (t *TfidfVectorizer) TransformCSR(docs []string) (*sparse.CSR, error) {
	if err := t.state.RequireFitted("Transform"); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.NewModelError("TfidfVectorizer.Transform", "empty data", errors.ErrEmptyData)
	}
	m, err := t.pipeline.Transform(docs...)
	if err != nil {
		return nil, errors.Wrap(err, "tf-idf transform")
	}
	X := transposeCSR(m, len(docs), len(t.featureNames))
	if t.normalizer == nil {
		return X, nil
	}
	out, err := t.normalizer.Transform(X)
	if err != nil {
		return nil, err
	}
	return out.(*sparse.CSR), nil
}

// FitTransform は Fit の後に Transform を実行する
func (t *TfidfVectorizer) FitTransform(docs []string) (mat.Matrix, error) {
	if err := t.Fit(docs); err != nil {
		return nil, err
	}
	return t.Transform(docs)
}

// FeatureNames returns the terms in column order.
func (t *TfidfVectorizer) FeatureNames() []string {
	return append([]string(nil), t.featureNames...)
}

// Vocabulary returns a copy of the term to column map.
func (t *TfidfVectorizer) Vocabulary() map[string]int {
	out := make(map[string]int, len(t.vocabulary))
	for k, v := range t.vocabulary {
		out[k] = v
	}
	return out
}

// NFeatures returns the number of output columns.
func (t *TfidfVectorizer) NFeatures() int { return len(t.featureNames) }

// RawVocabularySize returns the vocabulary size before pruning.
func (t *TfidfVectorizer) RawVocabularySize() int { return t.rawVocabSize }

// PrunedTerms returns the number of terms removed by the df bounds.
func (t *TfidfVectorizer) PrunedTerms() int { return t.prunedTerms }

// IsFitted reports whether Fit has completed.
func (t *TfidfVectorizer) IsFitted() bool { return t.state.IsFitted() }

// GetParams returns the hyperparameters.
func (t *TfidfVectorizer) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"min_df":       t.MinDF,
		"max_df":       t.MaxDF,
		"max_features": t.MaxFeatures,
		"stop_words":   len(t.StopWords),
		"sublinear_tf": t.SublinearTF,
		"norm":         t.Norm,
	}
}

func eachNonZero(m mat.Matrix, fn func(i, j int, v float64)) {
	if nz, ok := m.(nonZeroDoer); ok {
		nz.DoNonZero(fn)
		return
	}
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); v != 0 {
				fn(i, j, v)
			}
		}
	}
}

// transposeCSR turns a terms × docs matrix into a docs × terms CSR with
// sorted column indices.
func transposeCSR(m mat.Matrix, nDocs, nTerms int) *sparse.CSR {
	type entry struct {
		term int
		v    float64
	}
	rows := make([][]entry, nDocs)
	nnz := 0
	eachNonZero(m, func(term, doc int, v float64) {
		rows[doc] = append(rows[doc], entry{term, v})
		nnz++
	})
	indptr := make([]int, nDocs+1)
	ind := make([]int, 0, nnz)
	data := make([]float64, 0, nnz)
	for d, row := range rows {
		sort.Slice(row, func(a, b int) bool { return row[a].term < row[b].term })
		for _, e := range row {
			ind = append(ind, e.term)
			data = append(data, e.v)
		}
		indptr[d+1] = len(ind)
	}
	return sparse.NewCSR(nDocs, nTerms, indptr, ind, data)
}

// sublinearTF is an nlp.Transformer replacing each count with 1 + ln(count).
type sublinearTF struct{}

func (s sublinearTF) Fit(mat.Matrix) nlp.Transformer { return s }

func (s sublinearTF) Transform(m mat.Matrix) (mat.Matrix, error) {
	r, c := m.Dims()
	out := sparse.NewDOK(r, c)
	eachNonZero(m, func(i, j int, v float64) {
		if v > 0 {
			out.Set(i, j, 1+math.Log(v))
		}
	})
	return out.ToCSR(), nil
}

func (s sublinearTF) FitTransform(m mat.Matrix) (mat.Matrix, error) {
	return s.Transform(m)
}
