// Package textclf classifies newsgroup posts with TF-IDF features and a
// one-vs-rest logistic regression, in the scikit-learn style on top of gonum.
//
// Each stage of the classic text-classification notebook is a small package
// with a familiar estimator API, and the experiment package chains them into a
// single reproducible run that writes a JSON report, the fitted weights and
// the evaluation plots.
//
// # Quick Start
//
// Run the whole pipeline on the 20 Newsgroups corpus:
//
//	go run ./cmd/textclf -out ./out -log-level info -log-pretty
//
// or drive the estimators directly:
//
//	vec := text.NewTfidfVectorizer(text.WithMinDF(5), text.WithMaxDF(0.5))
//	X, err := vec.FitTransform(docs)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	clf := linear_model.NewLogisticRegression(linear_model.WithLRMaxIter(1000))
//	if err := clf.Fit(X, labels); err != nil {
//	    log.Fatal(err)
//	}
//	pred, _ := clf.Predict(X)
//	report, _ := metrics.ClassificationReport(labels, pred, nil, nil)
//	fmt.Println(report)
//
// # Packages
//
//   - sklearn/datasets: 20 Newsgroups fetcher and JSON Lines / CSV loaders
//   - preprocessing: regex text cleaning and row normalisation
//   - sklearn/feature_extraction/text: TfidfVectorizer with min_df / max_df pruning
//   - sklearn/linear_model: LogisticRegression (L-BFGS, OvR or multinomial)
//   - sklearn/naive_bayes: MultinomialNB, the baseline reported next to the main model
//   - sklearn/model_selection: stratified train/test split and sampling
//   - sklearn/decomposition: PCA
//   - sklearn/manifold: t-SNE
//   - metrics: accuracy, precision / recall / F1, confusion matrix, log loss
//   - viz: confusion matrix heatmap, class scatter plots, coefficient bars
//   - experiment: YAML configuration and the end-to-end run
//   - core/model, core/parallel: estimator interfaces, weight files, worker fan-out
//   - pkg/errors, pkg/log: structured errors and zerolog-based logging
//
// # Concurrency
//
// A run is sequential step by step. Text cleaning and the per-class fits of
// one-vs-rest fan out to worker goroutines and write into pre-sized slices,
// so results do not depend on scheduling.
package textclf
