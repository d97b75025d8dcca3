// Package viz renders evaluation plots with gonum/plot.
//
// 画像形式はファイル拡張子で決まる (png, svg, pdf, jpg, eps, tif)。
package viz

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/textclf/pkg/errors"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

var formats = map[string]bool{
	"png": true, "svg": true, "pdf": true, "jpg": true,
	"jpeg": true, "eps": true, "tif": true, "tiff": true,
}

func format(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !formats[ext] {
		return "", errors.NewValidationError("path", "unsupported image format", path)
	}
	return ext, nil
}

func save(p *plot.Plot, w, h vg.Length, path string) (err error) {
	// 描画中の panic はエラーとして返す
	defer errors.Recover(&err, "viz.save")
	if _, err := format(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	log.GetLoggerWithName("viz").Debug("Plot saved",
		log.OperationKey, log.OperationPlot,
		log.PathKey, path,
	)
	return nil
}

// confusionGrid adapts a confusion matrix to plotter.GridXYZ with the
// first true label drawn on the top row.
type confusionGrid struct {
	m *mat.Dense
	k int
}

func (g confusionGrid) Dims() (c, r int)   { return g.k, g.k }
func (g confusionGrid) Z(c, r int) float64 { return g.m.At(g.k-1-r, c) }
func (g confusionGrid) X(c int) float64    { return float64(c) }
func (g confusionGrid) Y(r int) float64    { return float64(r) }

// ConfusionMatrixHeatmap は混同行列をヒートマップとして保存する
//
// Y軸が真のラベル、X軸が予測ラベル。normalize が true の場合は
// 行ごとに割合へ変換してから描画する。各セルに値を注記する。
func ConfusionMatrixHeatmap(cm *mat.Dense, names []string, path string, normalize bool) error {
	r, c := cm.Dims()
	if r == 0 || r != c {
		return errors.NewDimensionError("ConfusionMatrixHeatmap", r, c, 1)
	}
	if len(names) != r {
		return errors.NewDimensionError("ConfusionMatrixHeatmap", r, len(names), 0)
	}
	k := r
	values := mat.DenseCopyOf(cm)
	if normalize {
		for i := 0; i < k; i++ {
			row := values.RawRowView(i)
			s := 0.0
			for _, v := range row {
				s += v
			}
			for j := range row {
				row[j] = errors.SafeDivide(row[j], s)
			}
		}
	}

	grid := confusionGrid{m: values, k: k}
	hm := plotter.NewHeatMap(grid, palette.Heat(64, 1))
	if hm.Min == hm.Max {
		hm.Max = hm.Min + 1
	}

	xys := make(plotter.XYs, 0, k*k)
	labels := make([]string, 0, k*k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			xys = append(xys, plotter.XY{X: float64(j), Y: float64(k - 1 - i)})
			if normalize {
				labels = append(labels, fmt.Sprintf("%.2f", values.At(i, j)))
			} else {
				labels = append(labels, fmt.Sprintf("%.0f", values.At(i, j)))
			}
		}
	}
	annot, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return errors.Wrap(err, "confusion matrix labels")
	}
	for i := range annot.TextStyle {
		annot.TextStyle[i].XAlign = text.XCenter
		annot.TextStyle[i].YAlign = text.YCenter
		annot.TextStyle[i].Font.Size = vg.Points(7)
	}

	p := plot.New()
	p.Title.Text = "Confusion matrix"
	if normalize {
		p.Title.Text += " (normalized)"
	}
	p.X.Label.Text = "Predicted label"
	p.Y.Label.Text = "True label"
	p.Add(hm, annot)
	p.NominalX(names...)
	reversed := make([]string, k)
	for i, n := range names {
		reversed[k-1-i] = n
	}
	p.NominalY(reversed...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = text.XRight
	p.X.Tick.Label.YAlign = text.YCenter

	side := vg.Length(math.Max(6, 0.45*float64(k))) * vg.Inch
	return save(p, side, side, path)
}

// ScatterByClass は2次元埋め込みをクラスごとに色分けした散布図として保存する
func ScatterByClass(points mat.Matrix, labels []int, names map[int]string, title, path string) error {
	n, d := points.Dims()
	if d < 2 {
		return errors.NewDimensionError("ScatterByClass", 2, d, 1)
	}
	if len(labels) != n {
		return errors.NewDimensionError("ScatterByClass", n, len(labels), 0)
	}
	groups := map[int]plotter.XYs{}
	var order []int
	for i, l := range labels {
		if _, ok := groups[l]; !ok {
			order = append(order, l)
		}
		groups[l] = append(groups[l], plotter.XY{X: points.At(i, 0), Y: points.At(i, 1)})
	}
	sort.Ints(order)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "component 1"
	p.Y.Label.Text = "component 2"
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.TextStyle.Font.Size = vg.Points(7)
	for i, l := range order {
		s, err := plotter.NewScatter(groups[l])
		if err != nil {
			return errors.Wrapf(err, "scatter for class %d", l)
		}
		s.GlyphStyle.Color = plotutil.Color(i)
		s.GlyphStyle.Shape = plotutil.Shape(i / len(plotutil.DefaultColors))
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		name, ok := names[l]
		if !ok {
			name = fmt.Sprint(l)
		}
		p.Legend.Add(name, s)
	}
	return save(p, 9*vg.Inch, 7*vg.Inch, path)
}

// SaveClassCountsBar saves the label distribution as a horizontal bar chart.
func SaveClassCountsBar(counts []int, names []string, path string) error {
	if len(counts) == 0 {
		return errors.NewValueError("SaveClassCountsBar", "no classes")
	}
	if len(names) != len(counts) {
		return errors.NewDimensionError("SaveClassCountsBar", len(counts), len(names), 0)
	}
	values := make(plotter.Values, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}
	bars, err := plotter.NewBarChart(values, vg.Points(10))
	if err != nil {
		return errors.Wrap(err, "class count bars")
	}
	bars.Horizontal = true
	bars.Color = plotutil.Color(0)

	p := plot.New()
	p.Title.Text = "Documents per class"
	p.X.Label.Text = "documents"
	p.Add(bars)
	p.NominalY(names...)
	h := vg.Length(math.Max(4, 0.3*float64(len(counts)))) * vg.Inch
	return save(p, 7*vg.Inch, h, path)
}

// ClassTerms is one tile of TopCoefficientsGrid.
type ClassTerms struct {
	Name    string
	Terms   []string
	Weights []float64
}

const gridCols = 4

// TopCoefficientsGrid は各クラスの上位係数を横棒グラフのタイルとして1枚の画像に保存する
func TopCoefficientsGrid(summaries []ClassTerms, path string) (err error) {
	defer errors.Recover(&err, "TopCoefficientsGrid")
	if len(summaries) == 0 {
		return errors.NewValueError("TopCoefficientsGrid", "no class summaries")
	}
	ext, err := format(path)
	if err != nil {
		return err
	}
	cols := min(gridCols, len(summaries))
	rows := (len(summaries) + cols - 1) / cols

	plots := make([][]*plot.Plot, rows)
	for r := range plots {
		plots[r] = make([]*plot.Plot, cols)
		for c := range plots[r] {
			plots[r][c] = plot.New()
		}
	}
	for i, s := range summaries {
		if len(s.Terms) != len(s.Weights) {
			return errors.NewDimensionError("TopCoefficientsGrid", len(s.Terms), len(s.Weights), 0)
		}
		p, err := coefficientPlot(s)
		if err != nil {
			return err
		}
		plots[i/cols][i%cols] = p
	}

	w := vg.Length(cols) * 4 * vg.Inch
	h := vg.Length(rows) * 3 * vg.Inch
	img, err := draw.NewFormattedCanvas(w, h, ext)
	if err != nil {
		return errors.Wrap(err, "create canvas")
	}
	tiles := draw.Tiles{
		Rows: rows, Cols: cols,
		PadX: vg.Millimeter, PadY: vg.Millimeter,
		PadTop: vg.Points(4), PadBottom: vg.Points(4),
		PadLeft: vg.Points(4), PadRight: vg.Points(4),
	}
	canvases := plot.Align(plots, tiles, draw.New(img))
	for i := range summaries {
		plots[i/cols][i%cols].Draw(canvases[i/cols][i%cols])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if _, err := img.WriteTo(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	log.GetLoggerWithName("viz").Debug("Plot saved",
		log.OperationKey, log.OperationPlot,
		log.PathKey, path,
	)
	return nil
}

// coefficientPlot draws the largest weight at the top.
func coefficientPlot(s ClassTerms) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = s.Name
	p.Title.TextStyle.Font.Size = vg.Points(9)
	if len(s.Terms) == 0 {
		return p, nil
	}
	n := len(s.Terms)
	values := make(plotter.Values, n)
	terms := make([]string, n)
	for i := range s.Terms {
		values[n-1-i] = s.Weights[i]
		terms[n-1-i] = s.Terms[i]
	}
	bars, err := plotter.NewBarChart(values, vg.Points(8))
	if err != nil {
		return nil, errors.Wrapf(err, "coefficient bars for %s", s.Name)
	}
	bars.Horizontal = true
	bars.Color = plotutil.Color(2)
	p.Add(bars)
	p.NominalY(terms...)
	p.Y.Tick.Label.Font.Size = vg.Points(7)
	p.X.Tick.Label.Font.Size = vg.Points(7)
	return p, nil
}
