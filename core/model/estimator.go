package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能な分類モデルのインターフェース
type Fitter interface {
	// Fit は特徴量行列 X (samples × features) とクラスラベル y で学習する
	Fit(X mat.Matrix, y []int) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は各サンプルのクラスラベルを返す
	Predict(X mat.Matrix) ([]int, error)
}

// Classifier は多クラス分類器のインターフェース
type Classifier interface {
	Fitter
	Predictor

	// PredictProba は samples × classes の確率行列を返す（列順は Classes()）
	PredictProba(X mat.Matrix) (*mat.Dense, error)

	// DecisionFunction は samples × classes の決定関数値を返す
	DecisionFunction(X mat.Matrix) (*mat.Dense, error)

	// Score は正解率を返す
	Score(X mat.Matrix, y []int) (float64, error)

	// Classes は学習時に見たクラスラベルを昇順で返す
	Classes() []int
}

// LinearClassifier は係数を公開する線形分類器です。
type LinearClassifier interface {
	Classifier

	// Coef は classes × features の係数行列を返す（2クラスの場合は 1 × features）
	Coef() *mat.Dense

	// Intercept はクラスごとの切片を返す
	Intercept() []float64
}
