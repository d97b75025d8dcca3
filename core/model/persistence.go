package model

import (
	"io"
	"os"
	"path/filepath"

	scierrors "github.com/YuminosukeSato/textclf/pkg/errors"
)

// SaveWeights は重みを検証してからJSONファイルへ保存する
//
// 一時ファイルに書いてからリネームするため、途中で失敗しても
// 既存のファイルは壊れません。
//
// 使用例:
//
//	w, _ := clf.ExportWeights()
//	err := model.SaveWeights("out/model.json", w)
func SaveWeights(path string, w *ModelWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	data, err := w.ToJSON()
	if err != nil {
		return scierrors.Wrap(err, "encode model weights")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".weights-*.json")
	if err != nil {
		return scierrors.Wrapf(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return scierrors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return scierrors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return scierrors.Wrapf(err, "rename to %s", path)
	}
	return nil
}

// LoadWeights はJSONファイルから重みを読み込み、検証する
func LoadWeights(path string) (*ModelWeights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, scierrors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadWeights(f)
}

// ReadWeights は r から重みを読み込み、検証する
func ReadWeights(r io.Reader) (*ModelWeights, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, scierrors.Wrap(err, "read model weights")
	}
	w := &ModelWeights{}
	if err := w.FromJSON(data); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}
