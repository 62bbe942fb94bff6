package monitor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"golang.org/x/image/tiff"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/foam/internal/array"
)

var (
	errNoImage    = errors.New("no image processed yet")
	errNoValid    = errors.New("image has no valid pixels")
	errNotAnImage = errors.New("expected a 2D image")
)

// imageGrid adapts an image to plotter.GridXYZ. Grid row 0 is the bottom
// image row so the plot shows the image upright.
type imageGrid struct {
	img *array.Dense[float32]
}

func (g imageGrid) Dims() (c, r int)   { return g.img.Cols(), g.img.Rows() }
func (g imageGrid) Z(c, r int) float64 { return float64(g.img.At(g.img.Rows()-1-r, c)) }
func (g imageGrid) X(c int) float64    { return float64(c) }
func (g imageGrid) Y(r int) float64    { return float64(r) }

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// validRange returns the smallest and largest finite pixel.
func validRange(img *array.Dense[float32]) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range img.Data {
		if !finite(v) {
			continue
		}
		lo = math.Min(lo, float64(v))
		hi = math.Max(hi, float64(v))
		ok = true
	}
	return lo, hi, ok
}

func checkImage(img *array.Dense[float32]) error {
	if img == nil || img.Rank() != 2 {
		return errNotAnImage
	}
	return nil
}

func heatmapPlot(img *array.Dense[float32], title string) (*plot.Plot, vg.Length, vg.Length, error) {
	if err := checkImage(img); err != nil {
		return nil, 0, 0, err
	}
	if img.Rows() < 2 || img.Cols() < 2 {
		return nil, 0, 0, fmt.Errorf("heatmap needs at least 2x2 pixels, got %v", img.Shape)
	}
	lo, hi, ok := validRange(img)
	if !ok {
		return nil, 0, 0, errNoValid
	}
	if hi == lo {
		hi = lo + 1
	}

	hm := plotter.NewHeatMap(imageGrid{img}, palette.Heat(64, 1))
	hm.Min, hm.Max = lo, hi
	hm.NaN = color.Transparent

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "column"
	p.Y.Label.Text = "row (from bottom)"
	p.Add(hm)

	width := 8 * vg.Inch
	height := vg.Length(float64(width) * float64(img.Rows()) / float64(img.Cols()))
	height = max(min(height, 12*vg.Inch), 3*vg.Inch)
	return p, width, height, nil
}

// WriteHeatmapPNG saves img as a heatmap image. The format follows the file
// extension of path (png, svg, pdf...).
func WriteHeatmapPNG(img *array.Dense[float32], path, title string) error {
	p, w, h, err := heatmapPlot(img, title)
	if err != nil {
		return err
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("failed to save heatmap %s: %w", path, err)
	}
	return nil
}

// RenderHeatmapPNG writes img as a PNG heatmap to w.
func RenderHeatmapPNG(w io.Writer, img *array.Dense[float32], title string) error {
	p, width, height, err := heatmapPlot(img, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// WriteTIFF writes img as a 16-bit grayscale TIFF. Valid pixels are scaled
// linearly from the image minimum (1) to its maximum (65535); NaN pixels
// and infinities are written as 0.
func WriteTIFF(w io.Writer, img *array.Dense[float32]) error {
	if err := checkImage(img); err != nil {
		return err
	}
	rows, cols := img.Rows(), img.Cols()
	out := image.NewGray16(image.Rect(0, 0, cols, rows))
	lo, hi, ok := validRange(img)
	scale := 0.0
	if ok && hi > lo {
		scale = (math.MaxUint16 - 1) / (hi - lo)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := img.At(r, c)
			if !finite(v) {
				continue
			}
			g := 1 + math.Round((float64(v)-lo)*scale)
			out.SetGray16(c, r, color.Gray16{Y: uint16(g)})
		}
	}
	return tiff.Encode(w, out, &tiff.Options{Compression: tiff.Deflate})
}
