package model

import "gonum.org/v1/gonum/mat"

// Transformer は数値行列の変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// TextTransformer は文書の集合を行列へ変換するインターフェース
// 返す行列は documents × features
type TextTransformer interface {
	Fit(docs []string) error
	Transform(docs []string) (mat.Matrix, error)
	FitTransform(docs []string) (mat.Matrix, error)

	// FeatureNames は列に対応する特徴量名を返す
	FeatureNames() []string
}
