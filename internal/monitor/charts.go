package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/foam/internal/array"
	"github.com/banshee-data/foam/internal/httputil"
	"github.com/banshee-data/foam/internal/imageproc"
)

// maxHeatmapPoints bounds the points sent to the browser; larger images
// are down-sampled until they fit.
const maxHeatmapPoints = 40000

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// AttachAdminRoutes mounts the image, edge, Fourier and figure of merit pages under
// /debug/ on mux.
func (s *Snapshot) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("image", "Latest masked mean image (heatmap)", http.HandlerFunc(s.handleImage))
	debug.Handle("image.png", "Latest masked mean image as PNG", http.HandlerFunc(s.handleImagePNG))
	debug.Handle("image.tiff", "Latest masked mean image as 16-bit TIFF", http.HandlerFunc(s.handleImageTIFF))
	debug.Handle("edges", "Edges of the latest image", http.HandlerFunc(s.handleEdges))
	debug.Handle("fft", "Fourier transform magnitude of the latest image (?linear=1 for a linear scale)", http.HandlerFunc(s.handleFFT))
	debug.Handle("fom", "Figure of merit history", http.HandlerFunc(s.handleFOM))
	debug.Handle("fom.json", "Figure of merit history (JSON)", http.HandlerFunc(s.handleFOMJSON))
}

// downSampleFor halves img until it holds at most limit pixels and returns
// the result with the stride between kept pixels.
func downSampleFor(img *array.Dense[float32], limit int) (*array.Dense[float32], int, error) {
	stride := 1
	for img.Size() > limit && img.Rows() > 1 && img.Cols() > 1 {
		var err error
		if img, err = imageproc.DownSample(img); err != nil {
			return nil, 0, err
		}
		stride *= imageproc.SampleRate
	}
	return img, stride, nil
}

func writeChart(w http.ResponseWriter, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Snapshot) handleImage(w http.ResponseWriter, r *http.Request) {
	img, id, ok := s.Latest()
	if !ok {
		http.Error(w, errNoImage.Error(), http.StatusNotFound)
		return
	}
	writeHeatmap(w, r, img, "Masked mean image", fmt.Sprintf("train=%d shape=%v", id, img.Shape))
}

func (s *Snapshot) handleFFT(w http.ResponseWriter, r *http.Request) {
	logarithmic := r.URL.Query().Get("linear") == ""
	img, id, err := s.FourierTransform(logarithmic)
	if errors.Is(err, errNoImage) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Fourier transform failed: %v", err), http.StatusInternalServerError)
		return
	}
	scale := "log(1+|F|)"
	if !logarithmic {
		scale = "|F|"
	}
	writeHeatmap(w, r, img, "Fourier transform", fmt.Sprintf("train=%d shape=%v scale=%s", id, img.Shape, scale))
}

// writeHeatmap renders img as a down-sampled scatter heatmap page. The
// max_points query parameter overrides maxHeatmapPoints.
func writeHeatmap(w http.ResponseWriter, r *http.Request, img *array.Dense[float32], title, subtitle string) {
	limit := maxHeatmapPoints
	if v, err := strconv.Atoi(r.URL.Query().Get("max_points")); err == nil && v >= 100 && v <= 1000000 {
		limit = v
	}
	small, stride, err := downSampleFor(img, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	lo, hi, _ := validRange(small)
	data := make([]opts.ScatterData, 0, small.Size())
	for row := 0; row < small.Rows(); row++ {
		for col := 0; col < small.Cols(); col++ {
			v := small.At(row, col)
			if !finite(v) {
				continue
			}
			data = append(data, opts.ScatterData{Value: []interface{}{col * stride, img.Rows() - 1 - row*stride, v}})
		}
	}
	if len(data) == 0 {
		lo, hi = 0, 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "1000px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%s stride=%d", subtitle, stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: img.Cols(), Name: "column", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: img.Rows(), Name: "row (from bottom)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("image", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	writeChart(w, func(buf *bytes.Buffer) error { return scatter.Render(buf) })
}

func (s *Snapshot) handleEdges(w http.ResponseWriter, r *http.Request) {
	edges, id, err := s.Edges()
	if errors.Is(err, errNoImage) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("edge detection failed: %v", err), http.StatusInternalServerError)
		return
	}

	stride := 1
	if n := edges.Count(); n > maxHeatmapPoints {
		stride = int(math.Ceil(float64(n) / maxHeatmapPoints))
	}
	data := make([]opts.ScatterData, 0, edges.Count()/stride+1)
	seen := 0
	for row := 0; row < edges.Rows; row++ {
		for col := 0; col < edges.Cols; col++ {
			if !edges.At(row, col) {
				continue
			}
			if seen%stride == 0 {
				data = append(data, opts.ScatterData{Value: []interface{}{col, edges.Rows - 1 - row}})
			}
			seen++
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Edges", Theme: "dark", Width: "1000px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: "Edges", Subtitle: fmt.Sprintf("train=%d edge pixels=%d stride=%d", id, seen, stride)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: edges.Cols, Name: "column", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: edges.Rows, Name: "row (from bottom)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("edges", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	writeChart(w, func(buf *bytes.Buffer) error { return scatter.Render(buf) })
}

func (s *Snapshot) handleFOM(w http.ResponseWriter, r *http.Request) {
	points := s.FOMHistory()
	processed, skipped := s.Counts()

	x := make([]string, len(points))
	y := make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = strconv.FormatUint(p.TrainID, 10)
		if math.IsNaN(p.FOM) || math.IsInf(p.FOM, 0) {
			y[i] = opts.LineData{Value: "-"}
			continue
		}
		y[i] = opts.LineData{Value: p.FOM}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Figure of merit", Theme: "dark", Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Figure of merit", Subtitle: fmt.Sprintf("processed=%d skipped=%d", processed, skipped)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "train", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mean intensity", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).AddSeries("fom", y)
	writeChart(w, func(buf *bytes.Buffer) error { return line.Render(buf) })
}

// fomJSON encodes a NaN figure of merit as null.
type fomJSON struct {
	TrainID uint64   `json:"train_id"`
	FOM     *float64 `json:"fom"`
}

func (s *Snapshot) handleFOMJSON(w http.ResponseWriter, r *http.Request) {
	points := s.FOMHistory()
	processed, skipped := s.Counts()
	out := struct {
		Processed int       `json:"processed"`
		Skipped   int       `json:"skipped"`
		History   []fomJSON `json:"history"`
	}{Processed: processed, Skipped: skipped, History: make([]fomJSON, len(points))}
	for i, p := range points {
		out.History[i].TrainID = p.TrainID
		if !math.IsNaN(p.FOM) && !math.IsInf(p.FOM, 0) {
			v := p.FOM
			out.History[i].FOM = &v
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Snapshot) handleImagePNG(w http.ResponseWriter, r *http.Request) {
	img, id, ok := s.Latest()
	if !ok {
		http.Error(w, errNoImage.Error(), http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := RenderHeatmapPNG(&buf, img, fmt.Sprintf("train %d", id)); err != nil {
		http.Error(w, fmt.Sprintf("failed to render image: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (s *Snapshot) handleImageTIFF(w http.ResponseWriter, r *http.Request) {
	img, id, ok := s.Latest()
	if !ok {
		http.Error(w, errNoImage.Error(), http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := WriteTIFF(&buf, img); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode image: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/tiff")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=train-%d.tiff", id))
	_, _ = w.Write(buf.Bytes())
}
