package model

import (
	"encoding/json"

	scierrors "github.com/YuminosukeSato/textclf/pkg/errors"
)

// WeightsVersion is written into every ModelWeights produced by this module.
const WeightsVersion = "1.0"

// ModelWeights はモデルの重みを表す構造体（シリアライゼーション用）
//
// 多クラスの線形モデルでは Coefficients の各行が1クラス分の係数になります。
// 2クラス問題では行は1つだけです（scikit-learn と同じ形）。
type ModelWeights struct {
	// ModelType はモデルの種類（LogisticRegression等）
	ModelType string `json:"model_type"`

	// Version は互換性チェック用のバージョン
	Version string `json:"version"`

	// Classes は学習時のクラスラベル（昇順）
	Classes []int `json:"classes"`

	// ClassNames はクラスラベルに対応する名前（オプション）
	ClassNames []string `json:"class_names,omitempty"`

	// Coefficients は rows × n_features の係数
	Coefficients [][]float64 `json:"coefficients"`

	// Intercepts は行ごとの切片
	Intercepts []float64 `json:"intercepts"`

	// Features は特徴量の名前（語彙）
	Features []string `json:"features,omitempty"`

	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// Metadata は追加のメタデータ（反復回数、学習時間等）
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	IsFitted bool `json:"is_fitted"`
}

// NFeatures returns the width of the coefficient rows.
func (mw *ModelWeights) NFeatures() int {
	if len(mw.Coefficients) == 0 {
		return 0
	}
	return len(mw.Coefficients[0])
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(mw, "", "  ")
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	if err := json.Unmarshal(data, mw); err != nil {
		return scierrors.Wrap(err, "decode model weights")
	}
	return nil
}

// Validate はModelWeightsの形と整合性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return scierrors.NewValidationError("model_type", "is required", mw.ModelType)
	}
	if mw.Version == "" {
		return scierrors.NewValidationError("version", "is required", mw.Version)
	}
	if !mw.IsFitted {
		if len(mw.Coefficients) > 0 {
			return scierrors.NewValidationError("coefficients", "unfitted model should not have coefficients", len(mw.Coefficients))
		}
		return nil
	}

	if len(mw.Coefficients) == 0 {
		return scierrors.NewValidationError("coefficients", "fitted model must have coefficients", 0)
	}
	if len(mw.Classes) < 2 {
		return scierrors.NewValidationError("classes", "fitted classifier needs at least two classes", len(mw.Classes))
	}
	wantRows := len(mw.Classes)
	if wantRows == 2 {
		wantRows = 1
	}
	if len(mw.Coefficients) != wantRows && len(mw.Coefficients) != len(mw.Classes) {
		return scierrors.NewValidationError("coefficients", "row count must match the number of classes", len(mw.Coefficients))
	}
	if len(mw.Intercepts) != len(mw.Coefficients) {
		return scierrors.NewValidationError("intercepts", "must have one value per coefficient row", len(mw.Intercepts))
	}
	width := mw.NFeatures()
	for i, row := range mw.Coefficients {
		if len(row) != width {
			return scierrors.NewDimensionError("ModelWeights.Validate", width, len(row), 1)
		}
		if err := scierrors.CheckNumericalStability("ModelWeights.Validate", row, i); err != nil {
			return err
		}
	}
	if len(mw.Features) > 0 && len(mw.Features) != width {
		return scierrors.NewValidationError("features", "must name every coefficient column", len(mw.Features))
	}
	if len(mw.ClassNames) > 0 && len(mw.ClassNames) != len(mw.Classes) {
		return scierrors.NewValidationError("class_names", "must name every class", len(mw.ClassNames))
	}
	return nil
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := &ModelWeights{
		ModelType:       mw.ModelType,
		Version:         mw.Version,
		IsFitted:        mw.IsFitted,
		Classes:         append([]int(nil), mw.Classes...),
		ClassNames:      append([]string(nil), mw.ClassNames...),
		Intercepts:      append([]float64(nil), mw.Intercepts...),
		Features:        append([]string(nil), mw.Features...),
		Coefficients:    make([][]float64, len(mw.Coefficients)),
		Hyperparameters: make(map[string]interface{}, len(mw.Hyperparameters)),
		Metadata:        make(map[string]interface{}, len(mw.Metadata)),
	}
	for i, row := range mw.Coefficients {
		clone.Coefficients[i] = append([]float64(nil), row...)
	}
	for k, v := range mw.Hyperparameters {
		clone.Hyperparameters[k] = v
	}
	for k, v := range mw.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}
