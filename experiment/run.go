package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textclf/core/model"
	"github.com/YuminosukeSato/textclf/metrics"
	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
	"github.com/YuminosukeSato/textclf/preprocessing"
	"github.com/YuminosukeSato/textclf/sklearn/datasets"
	"github.com/YuminosukeSato/textclf/sklearn/decomposition"
	"github.com/YuminosukeSato/textclf/sklearn/feature_extraction/text"
	"github.com/YuminosukeSato/textclf/sklearn/linear_model"
	"github.com/YuminosukeSato/textclf/sklearn/manifold"
	"github.com/YuminosukeSato/textclf/sklearn/model_selection"
	"github.com/YuminosukeSato/textclf/sklearn/naive_bayes"
	"github.com/YuminosukeSato/textclf/viz"
)

// Step names, in execution order.
const (
	StepLoad         = "load"
	StepDropMissing  = "drop_missing"
	StepClean        = "clean"
	StepSplit        = "split"
	StepVectorize    = "vectorize"
	StepFit          = "fit"
	StepEvaluate     = "evaluate"
	StepCoefficients = "coefficients"
	StepVisualize    = "visualize"
	StepWrite        = "write"
)

// Artefact file names inside the output directory.
const (
	ReportFile = "report.json"
	ModelFile  = "model.json"
)

// StepTiming records how long one step took.
type StepTiming struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
}

// DatasetSizes counts documents through the filtering steps.
type DatasetSizes struct {
	Loaded         int `json:"loaded"`
	DroppedMissing int `json:"dropped_missing"`
	DroppedEmpty   int `json:"dropped_empty"`
	Train          int `json:"train"`
	Test           int `json:"test"`
	Classes        int `json:"classes"`
}

// Report is the JSON summary of a run.
type Report struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Config    Config    `json:"config"`
	Dataset   string    `json:"dataset"`

	Sizes DatasetSizes `json:"sizes"`

	VocabularySize    int `json:"vocabulary_size"`
	RawVocabularySize int `json:"raw_vocabulary_size"`
	PrunedTerms       int `json:"pruned_terms"`

	Iterations     []int           `json:"iterations"`
	Accuracy       float64         `json:"accuracy"`
	LogLoss        *float64        `json:"log_loss,omitempty"`
	Classification *metrics.Report `json:"classification"`

	Baseline *BaselineResult `json:"baseline,omitempty"`

	// ConfusionMatrix rows are true labels in ConfusionLabels order.
	ConfusionMatrix [][]int  `json:"confusion_matrix"`
	ConfusionLabels []string `json:"confusion_labels"`

	TopTerms []ClassSummary `json:"top_terms"`

	PCAExplainedVariance []float64 `json:"pca_explained_variance,omitempty"`
	TSNEDivergence       float64   `json:"tsne_kl_divergence,omitempty"`

	Steps     []StepTiming      `json:"steps"`
	Artifacts map[string]string `json:"artifacts"`
}

// BaselineResult scores the naive Bayes baseline on the test split.
type BaselineResult struct {
	Model    string  `json:"model"`
	Accuracy float64 `json:"accuracy"`
	MacroF1  float64 `json:"macro_f1"`
}

// runner carries state between steps.
type runner struct {
	cfg    Config
	logger log.Logger
	report *Report

	data        *datasets.Dataset
	train, test *datasets.Dataset
	vec         *text.TfidfVectorizer
	xTrain      mat.Matrix
	xTest       mat.Matrix
	clf         *linear_model.LogisticRegression
	yPred       []int
	labels      []int
	cm          *mat.Dense
}

// Run は設定に従ってパイプライン全体を1回実行する
//
// 各ステップは順番に実行され、開始と終了が所要時間付きでログに残る。
// ctx はステップの間と、並列処理・t-SNE の反復の中で確認される。
func Run(ctx context.Context, cfg Config, logger log.Logger) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.GetLoggerWithName("experiment")
	}
	id := uuid.New()
	r := &runner{
		cfg:    cfg,
		logger: logger.With(log.RunIDKey, id.String()),
		report: &Report{
			RunID:     id.String(),
			StartedAt: time.Now().UTC(),
			Config:    cfg,
			Artifacts: map[string]string{},
		},
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output directory %s", cfg.Output.Dir)
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StepLoad, r.load},
		{StepDropMissing, r.dropMissing},
		{StepClean, r.clean},
		{StepSplit, r.split},
		{StepVectorize, r.vectorize},
		{StepFit, r.fit},
		{StepEvaluate, r.evaluate},
		{StepCoefficients, r.coefficients},
		{StepVisualize, r.visualize},
		{StepWrite, r.write},
	}
	for _, s := range steps {
		if err := r.step(ctx, s.name, s.fn); err != nil {
			r.logger.Error("Run failed", err, log.StepKey, s.name)
			return nil, err
		}
	}
	r.logger.Info("Run finished",
		log.AccuracyKey, r.report.Accuracy,
		log.PathKey, cfg.Output.path(ReportFile),
	)
	return r.report, nil
}

func (r *runner) step(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := r.logger.With(log.StepKey, name)
	l.Debug("Step started")
	start := time.Now()
	if err := fn(ctx); err != nil {
		return errors.Wrapf(err, "step %s", name)
	}
	ms := time.Since(start).Milliseconds()
	r.report.Steps = append(r.report.Steps, StepTiming{Name: name, DurationMs: ms})
	l.Info("Step finished", log.DurationMsKey, ms)
	return nil
}

func (r *runner) component(name string) log.Logger {
	return r.logger.With(log.ComponentKey, name)
}

func (r *runner) load(ctx context.Context) error {
	ds, err := datasets.Load(ctx, r.cfg.Dataset.source(), r.component("datasets"))
	if err != nil {
		return err
	}
	r.data = ds
	r.report.Dataset = ds.Name
	r.report.Sizes.Loaded = ds.Len()
	r.logger.Info("Dataset loaded",
		log.DatasetKey, ds.Name,
		log.DocumentsKey, ds.Len(),
		log.ClassesKey, ds.NClasses(),
	)
	return nil
}

func (r *runner) dropMissing(context.Context) error {
	ds, dropped := datasets.DropMissing(r.data)
	if ds.Len() == 0 {
		return errors.NewDatasetError(r.data.Name, "no documents left after dropping missing values", errors.ErrEmptyData)
	}
	r.data = ds
	r.report.Sizes.DroppedMissing = dropped
	return nil
}

func (r *runner) clean(ctx context.Context) error {
	c := r.cfg.Cleaning
	cleaner := preprocessing.NewTextCleaner(
		preprocessing.WithLowercase(c.Lowercase),
		preprocessing.WithStripAccents(c.StripAccents),
		preprocessing.WithRemoveEmails(c.RemoveEmails),
		preprocessing.WithRemoveURLs(c.RemoveURLs),
		preprocessing.WithRemoveHTML(c.RemoveHTML),
		preprocessing.WithRemoveDigits(c.RemoveDigits),
		preprocessing.WithLettersOnly(c.LettersOnly),
		preprocessing.WithMinTokenLen(c.MinTokenLen),
		preprocessing.WithWorkers(c.Workers),
		preprocessing.WithCleanerLogger(r.component("preprocessing")),
	)
	cleaned, err := cleaner.CleanAll(ctx, r.data.Texts())
	if err != nil {
		return err
	}
	docs := make([]datasets.Document, len(cleaned))
	for i, d := range r.data.Docs {
		d.Text = cleaned[i]
		docs[i] = d
	}
	before := len(docs)
	r.data = (&datasets.Dataset{Name: r.data.Name, Docs: docs, TargetNames: r.data.TargetNames}).
		Filter(func(d datasets.Document) bool { return d.Text != "" })
	r.report.Sizes.DroppedEmpty = before - r.data.Len()
	if r.data.Len() == 0 {
		return errors.NewDatasetError(r.data.Name, "every document is empty after cleaning", errors.ErrEmptyData)
	}
	return nil
}

func (r *runner) split(context.Context) error {
	s := r.cfg.Split
	trainIdx, testIdx, err := model_selection.TrainTestSplit(r.data.Labels(), s.TestSize, s.Seed, s.Stratify)
	if err != nil {
		return err
	}
	if r.train, err = r.data.Subset(trainIdx); err != nil {
		return err
	}
	if r.test, err = r.data.Subset(testIdx); err != nil {
		return err
	}
	r.report.Sizes.Train = r.train.Len()
	r.report.Sizes.Test = r.test.Len()
	r.report.Sizes.Classes = len(metrics.UniqueLabels(r.data.Labels()))
	r.logger.Info("Dataset split",
		log.SamplesKey, r.data.Len(),
		"split.train", r.train.Len(),
		"split.test", r.test.Len(),
		log.RandomSeedKey, s.Seed,
	)
	return nil
}

func (r *runner) vectorize(context.Context) error {
	v := r.cfg.Vectorizer
	opts := []text.Option{
		text.WithMinDF(v.MinDF),
		text.WithMaxDF(v.MaxDF),
		text.WithMaxFeatures(v.MaxFeatures),
		text.WithSublinearTF(v.SublinearTF),
		text.WithNorm(v.Norm),
		text.WithLogger(r.component("feature_extraction")),
	}
	if v.StopWords == "english" {
		opts = append(opts, text.WithEnglishStopWords())
	}
	r.vec = text.NewTfidfVectorizer(opts...)

	var err error
	if r.xTrain, err = r.vec.FitTransform(r.train.Texts()); err != nil {
		return err
	}
	if r.xTest, err = r.vec.Transform(r.test.Texts()); err != nil {
		return err
	}
	r.report.VocabularySize = r.vec.NFeatures()
	r.report.RawVocabularySize = r.vec.RawVocabularySize()
	r.report.PrunedTerms = r.vec.PrunedTerms()
	return nil
}

func (r *runner) fit(ctx context.Context) error {
	c := r.cfg.Classifier
	r.clf = linear_model.NewLogisticRegression(
		linear_model.WithLRC(c.C),
		linear_model.WithLRMaxIter(c.MaxIter),
		linear_model.WithLRTol(c.Tol),
		linear_model.WithLRMultiClass(c.MultiClass),
		linear_model.WithLRNJobs(c.Workers),
		linear_model.WithLRRandomState(int64(r.cfg.Split.Seed)),
		linear_model.WithLRLogger(r.component("linear_model")),
	)
	if err := r.clf.FitContext(ctx, r.xTrain, r.train.Labels()); err != nil {
		return err
	}
	r.report.Iterations = r.clf.NIter()
	return nil
}

func (r *runner) names(labels []int) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		if l >= 0 && l < len(r.data.TargetNames) {
			out[i] = r.data.TargetNames[l]
		} else {
			out[i] = fmt.Sprint(l)
		}
	}
	return out
}

func (r *runner) evaluate(context.Context) error {
	yTest := r.test.Labels()
	pred, err := r.clf.Predict(r.xTest)
	if err != nil {
		return err
	}
	r.yPred = pred
	if r.report.Accuracy, err = metrics.Accuracy(yTest, pred); err != nil {
		return err
	}

	// 学習時のクラスに、テストにしか現れないラベルを加える
	r.labels = metrics.UniqueLabels(r.clf.Classes(), yTest)
	names := r.names(r.labels)
	if r.report.Classification, err = metrics.ClassificationReport(yTest, pred, r.labels, names); err != nil {
		return err
	}
	if r.cm, err = metrics.ConfusionMatrix(yTest, pred, r.labels); err != nil {
		return err
	}
	k := len(r.labels)
	r.report.ConfusionMatrix = make([][]int, k)
	for i := 0; i < k; i++ {
		r.report.ConfusionMatrix[i] = make([]int, k)
		for j := 0; j < k; j++ {
			r.report.ConfusionMatrix[i][j] = int(r.cm.At(i, j))
		}
	}
	r.report.ConfusionLabels = names

	proba, err := r.clf.PredictProba(r.xTest)
	if err != nil {
		return err
	}
	if ll, err := metrics.LogLoss(yTest, proba, r.clf.Classes()); err == nil {
		r.report.LogLoss = &ll
	} else {
		r.logger.Warn("Log loss skipped", log.WarningKey, err.Error())
	}

	r.logger.Info("Model evaluated",
		log.AccuracyKey, r.report.Accuracy,
		log.F1ScoreKey, r.report.Classification.MacroAvg.F1,
		log.SamplesKey, len(yTest),
	)
	if r.logger.Enabled(context.Background(), log.LevelDebug) {
		r.logger.Debug("Classification report\n" + r.report.Classification.String())
	}
	if r.cfg.Baseline.Enabled {
		return r.baseline(names)
	}
	return nil
}

// baseline fits MultinomialNB on the TF-IDF features and scores it on the
// same test rows and label set as the main classifier.
func (r *runner) baseline(names []string) error {
	nb := naive_bayes.NewMultinomialNB(
		naive_bayes.WithAlpha(r.cfg.Baseline.Alpha),
		naive_bayes.WithLogger(r.component("naive_bayes")),
	)
	if err := nb.Fit(r.xTrain, r.train.Labels()); err != nil {
		return errors.Wrap(err, "baseline")
	}
	yTest := r.test.Labels()
	pred, err := nb.Predict(r.xTest)
	if err != nil {
		return errors.Wrap(err, "baseline")
	}
	acc, err := metrics.Accuracy(yTest, pred)
	if err != nil {
		return err
	}
	rep, err := metrics.ClassificationReport(yTest, pred, r.labels, names)
	if err != nil {
		return err
	}
	r.report.Baseline = &BaselineResult{Model: "MultinomialNB", Accuracy: acc, MacroF1: rep.MacroAvg.F1}
	r.logger.Info("Baseline evaluated",
		log.ModelNameKey, "MultinomialNB",
		log.AccuracyKey, acc,
		log.F1ScoreKey, rep.MacroAvg.F1,
	)
	return nil
}

func (r *runner) coefficients(context.Context) error {
	classes := r.clf.Classes()
	summaries, err := CoefficientSummary(r.clf.Coef(), r.vec.FeatureNames(), classes, r.names(classes), r.cfg.Visualize.TopN)
	if err != nil {
		return err
	}
	r.report.TopTerms = summaries
	return nil
}

func (r *runner) visualize(ctx context.Context) error {
	v := r.cfg.Visualize
	if !v.Enabled {
		r.logger.Debug("Visualisation disabled")
		return nil
	}
	out := r.cfg.Output
	artefact := func(key string) string {
		p := out.path(key + "." + v.Format)
		r.report.Artifacts[key] = p
		return p
	}

	counts := r.data.ClassCounts()
	if err := viz.SaveClassCountsBar(counts, r.data.TargetNames, artefact("class_distribution")); err != nil {
		return err
	}
	if err := viz.ConfusionMatrixHeatmap(r.cm, r.report.ConfusionLabels, artefact("confusion_matrix"), true); err != nil {
		return err
	}
	if err := viz.TopCoefficientsGrid(gridTiles(r.report.TopTerms), artefact("top_coefficients")); err != nil {
		return err
	}

	yTest := r.test.Labels()
	n := min(v.SampleSize, len(yTest))
	idx := model_selection.StratifiedSample(yTest, n, r.cfg.Split.Seed)
	if len(idx) < 3 {
		r.logger.Warn("Embedding plots skipped", log.SamplesKey, len(idx))
		return nil
	}
	sample := selectRows(r.xTest, idx)
	sampleY := make([]int, len(idx))
	for i, j := range idx {
		sampleY[i] = yTest[j]
	}
	names := make(map[int]string, len(r.data.TargetNames))
	for i, name := range r.data.TargetNames {
		names[i] = name
	}
	_, d := sample.Dims()
	if d < 2 {
		r.logger.Warn("Embedding plots skipped", log.FeaturesKey, d)
		return nil
	}

	pca := decomposition.NewPCA(2, decomposition.WithLogger(r.component("decomposition")))
	pts, err := pca.FitTransform(sample)
	if err != nil {
		return err
	}
	r.report.PCAExplainedVariance = pca.ExplainedVarianceRatio()
	if err := viz.ScatterByClass(pts, sampleY, names, "PCA of TF-IDF vectors", artefact("pca")); err != nil {
		return err
	}

	// t-SNE の入力は PCA で次元を落としてから渡す
	k := min(v.PCAComponents, len(idx), d)
	reduced, err := decomposition.NewPCA(k, decomposition.WithLogger(r.component("decomposition"))).FitTransform(sample)
	if err != nil {
		return err
	}
	perplexity := v.Perplexity
	if perplexity >= float64(len(idx)) {
		perplexity = float64(len(idx)-1) / 3
		r.logger.Warn("Perplexity reduced to fit the sample",
			"tsne.perplexity", perplexity,
			log.SamplesKey, len(idx),
		)
	}
	ts := manifold.NewTSNE(
		manifold.WithPerplexity(perplexity),
		manifold.WithLearningRate(v.LearningRate),
		manifold.WithMaxIter(v.Iterations),
		manifold.WithLogger(r.component("manifold")),
	)
	emb, err := ts.FitTransform(ctx, reduced)
	if err != nil {
		return err
	}
	if kl := ts.KLDivergence(); !math.IsNaN(kl) && !math.IsInf(kl, 0) {
		r.report.TSNEDivergence = kl
	}
	return viz.ScatterByClass(emb, sampleY, names, "t-SNE of TF-IDF vectors", artefact("tsne"))
}

func (r *runner) write(context.Context) error {
	out := r.cfg.Output
	if out.SaveModel {
		w, err := r.clf.ExportWeights()
		if err != nil {
			return err
		}
		w.Features = r.vec.FeatureNames()
		w.ClassNames = r.names(w.Classes)
		w.Metadata["run_id"] = r.report.RunID
		w.Metadata["vectorizer"] = r.vec.GetParams()
		path := out.path(ModelFile)
		if err := model.SaveWeights(path, w); err != nil {
			return err
		}
		r.report.Artifacts["model"] = path
	}

	path := out.path(ReportFile)
	r.report.Artifacts["report"] = path
	data, err := json.MarshalIndent(r.report, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

type rowNonZeroDoer interface {
	DoRowNonZero(i int, fn func(i, j int, v float64))
}

// selectRows copies the rows at idx into a new sparse matrix.
func selectRows(X mat.Matrix, idx []int) mat.Matrix {
	_, d := X.Dims()
	dok := sparse.NewDOK(len(idx), d)
	if nz, ok := X.(rowNonZeroDoer); ok {
		for r, i := range idx {
			nz.DoRowNonZero(i, func(_, j int, v float64) { dok.Set(r, j, v) })
		}
		return dok.ToCSR()
	}
	for r, i := range idx {
		for j := 0; j < d; j++ {
			if v := X.At(i, j); v != 0 {
				dok.Set(r, j, v)
			}
		}
	}
	return dok.ToCSR()
}
