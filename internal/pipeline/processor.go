package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/banshee-data/foam/internal/array"
	"github.com/banshee-data/foam/internal/config"
	"github.com/banshee-data/foam/internal/geometry"
	"github.com/banshee-data/foam/internal/imageproc"
)

// Options holds the processor dependencies and settings.
type Options struct {
	Geometry       *geometry.Geometry // required
	IgnoreTileEdge bool

	MovingAverageWindow int
	ThresholdLower      float64 // -Inf for no lower bound
	ThresholdUpper      float64 // +Inf for no upper bound
	Background          float64 // subtracted from every image

	Edge      imageproc.EdgeParams
	PulseMean imageproc.PulseMeanOptions
}

// OptionsFromConfig maps a pipeline configuration onto processor options.
func OptionsFromConfig(cfg *config.PipelineConfig, g *geometry.Geometry) Options {
	lo, hi := cfg.GetThresholdMask()
	return Options{
		Geometry:            g,
		IgnoreTileEdge:      cfg.GetIgnoreTileEdge(),
		MovingAverageWindow: cfg.GetMovingAverageWindow(),
		ThresholdLower:      lo,
		ThresholdUpper:      hi,
		Edge: imageproc.EdgeParams{
			KernelSize: cfg.GetEdgeKernelSize(),
			Sigma:      cfg.GetEdgeSigma(),
			Low:        cfg.GetEdgeThresholdLow(),
			High:       cfg.GetEdgeThresholdHigh(),
		},
	}
}

// Processor turns raw trains into processed trains. It owns the moving
// average and the operator masks; nothing else survives between trains.
//
// Process must be called from one goroutine at a time. The Set* methods
// and RegionMask edits may be called concurrently with it.
type Processor struct {
	geom           *geometry.Geometry
	ignoreTileEdge bool
	edge           imageproc.EdgeParams
	pulseMean      imageproc.PulseMeanOptions

	mu       sync.Mutex
	ma       *imageproc.MovingAverage[float32]
	lower    float64
	upper    float64
	region   *imageproc.RegionMask
	regionOn bool
	bkg      float64
	crop     image.Rectangle // empty for the full image
}

// NewProcessor validates opts and returns a processor. Invalid options are
// reported as a *StopPipelineError.
func NewProcessor(opts Options) (*Processor, error) {
	if opts.Geometry == nil {
		return nil, &StopPipelineError{Err: errors.New("processor needs a detector geometry")}
	}
	if opts.ThresholdLower > opts.ThresholdUpper {
		return nil, &StopPipelineError{Err: fmt.Errorf("threshold mask lower bound %v exceeds upper bound %v",
			opts.ThresholdLower, opts.ThresholdUpper)}
	}
	if _, err := imageproc.GaussianKernel(opts.Edge.KernelSize, opts.Edge.Sigma); err != nil {
		return nil, &StopPipelineError{Err: fmt.Errorf("edge detection settings: %w", err)}
	}
	if opts.Edge.Low > opts.Edge.High {
		return nil, &StopPipelineError{Err: fmt.Errorf("edge threshold low %v exceeds high %v", opts.Edge.Low, opts.Edge.High)}
	}

	shape := opts.Geometry.AssembledShape()
	p := &Processor{
		geom:           opts.Geometry,
		ignoreTileEdge: opts.IgnoreTileEdge,
		edge:           opts.Edge,
		pulseMean:      opts.PulseMean,
		ma:             imageproc.NewMovingAverage[float32](opts.MovingAverageWindow),
		lower:          opts.ThresholdLower,
		upper:          opts.ThresholdUpper,
		bkg:            opts.Background,
		region:         imageproc.NewRegionMask(shape[0], shape[1]),
	}
	diagf("processor ready: %s %v modules, assembled %v, ignoreTileEdge=%t, moving average window %d",
		p.geom.Variant().Name, p.geom.GridShape(), shape, p.ignoreTileEdge, p.ma.Window())
	return p, nil
}

// Geometry returns the detector geometry.
func (p *Processor) Geometry() *geometry.Geometry { return p.geom }

// SetMovingAverageWindow changes the moving-average window. Shrinking it
// restarts the average.
func (p *Processor) SetMovingAverageWindow(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ma.SetWindow(n)
}

// SetThreshold replaces the threshold mask range.
func (p *Processor) SetThreshold(lower, upper float64) error {
	if lower > upper {
		return fmt.Errorf("threshold mask lower bound %v exceeds upper bound %v", lower, upper)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lower, p.upper = lower, upper
	return nil
}

// MaskRegion masks (or, with masked false, unmasks) the w x h rectangle at
// column x, row y of the assembled image.
func (p *Processor) MaskRegion(x, y, w, h int, masked bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if masked {
		p.region.Add(x, y, w, h)
	} else {
		p.region.Remove(x, y, w, h)
	}
	p.regionOn = p.region.Count() > 0
}

// ClearRegionMask unmasks the whole image.
func (p *Processor) ClearRegionMask() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.region.Clear()
	p.regionOn = false
}

// SetBackground sets the value subtracted from the mean images. The moving
// average keeps the raw images, so a change applies to the next train
// without restarting it.
func (p *Processor) SetBackground(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("background must be finite, got %v", v)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bkg = v
	return nil
}

// SetCropArea restricts Mean, MaskedMean and the figures of merit to the
// w x h rectangle at column x, row y of the assembled image, clipped to the
// image.
func (p *Processor) SetCropArea(x, y, w, h int) error {
	shape := p.geom.AssembledShape()
	r, ok := imageproc.ClipRect(x, y, w, h, shape[0], shape[1])
	if !ok {
		return fmt.Errorf("crop area %dx%d at (%d, %d) does not overlap the %dx%d image", w, h, x, y, shape[1], shape[0])
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.crop = r
	return nil
}

// ClearCropArea restores the full image.
func (p *Processor) ClearCropArea() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.crop = image.Rectangle{}
}

// Process assembles one train and updates the moving average.
//
// Assembled is the full raw image. Mean and MaskedMean have the background
// subtracted and are cropped to the crop area; the threshold and region
// masks are applied to MaskedMean before cropping, in assembled
// coordinates.
//
// Shape problems are returned as a *ProcessingError and leave the
// processor unchanged, so the next train is processed as if this one had
// never arrived.
func (p *Processor) Process(ctx context.Context, t *RawTrain) (*ProcessedTrain, error) {
	skip := func(err error) error {
		return &ProcessingError{TrainID: t.TrainID, Source: t.SourceName, Err: err}
	}

	np := t.Pulses()
	if np < 0 {
		return nil, skip(errors.New("train holds no module data"))
	}
	shape := p.geom.AssembledShape()
	dims := []int{shape[0], shape[1]}
	if np > 0 {
		dims = append([]int{np}, dims...)
	}
	assembled := array.New[float32](dims...)

	var err error
	if t.Stack != nil {
		err = geometry.PositionAllModules(p.geom, t.Stack, assembled, p.ignoreTileEdge)
	} else {
		err = geometry.PositionModules(p.geom, t.Modules, assembled, p.ignoreTileEdge)
	}
	if err != nil {
		return nil, skip(err)
	}

	var mean *array.Dense[float32]
	if np > 0 {
		mean, err = imageproc.NanMeanPulses(ctx, assembled, p.pulseMean)
		if err != nil {
			return nil, err
		}
	} else {
		mean = assembled.Clone()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ma.Add(mean); err != nil {
		return nil, skip(err)
	}

	out := &ProcessedTrain{TrainID: t.TrainID, Source: t.SourceName, Assembled: assembled, MaCount: p.ma.Count()}
	if out.Mean, err = p.finish(mean); err != nil {
		return nil, skip(err)
	}
	out.PulseFOM = make([]float64, max(np, 1))
	for i := range out.PulseFOM {
		frame := assembled
		if np > 0 {
			frame = assembled.Frame(i)
		}
		if !p.crop.Empty() {
			if frame, err = imageproc.Crop(frame, p.crop); err != nil {
				return nil, skip(err)
			}
		}
		out.PulseFOM[i] = imageproc.NanMean(frame.Data) - p.bkg
	}

	out.MaskedMean = p.ma.Value()
	if err := imageproc.SubtractBackground(out.MaskedMean, p.bkg); err != nil {
		return nil, skip(err)
	}
	if !math.IsInf(p.lower, -1) || !math.IsInf(p.upper, 1) {
		if err := imageproc.ThresholdMask(out.MaskedMean, p.lower, p.upper); err != nil {
			return nil, skip(err)
		}
	}
	if p.regionOn {
		if err := imageproc.ApplyRegionMask(p.region, out.MaskedMean); err != nil {
			return nil, skip(err)
		}
	}
	if out.MaskedMean, err = p.cropped(out.MaskedMean); err != nil {
		return nil, skip(err)
	}
	out.FOM = imageproc.NanMean(out.MaskedMean.Data)
	return out, nil
}

// finish subtracts the background from img in place and crops it. p.mu
// must be held.
func (p *Processor) finish(img *array.Dense[float32]) (*array.Dense[float32], error) {
	if err := imageproc.SubtractBackground(img, p.bkg); err != nil {
		return nil, err
	}
	return p.cropped(img)
}

func (p *Processor) cropped(img *array.Dense[float32]) (*array.Dense[float32], error) {
	if p.crop.Empty() {
		return img, nil
	}
	return imageproc.Crop(img, p.crop)
}

// Edges runs edge detection on a processed image with the configured
// kernel and thresholds.
func (p *Processor) Edges(img *array.Dense[float32]) (*array.Mask, error) {
	return imageproc.EdgeDetect(img, p.edge)
}

// Dismantle splits an assembled image, (H, W) or (pulses, H, W), back
// into per-module arrays for the raw-module view.
func (p *Processor) Dismantle(img *array.Dense[float32]) ([]*array.Dense[float32], error) {
	if img == nil || (img.Rank() != 2 && img.Rank() != 3) {
		return nil, fmt.Errorf("%w: dismantle needs an assembled image", geometry.ErrShapeMismatch)
	}
	ms := p.geom.ModuleShape()
	dims := []int{ms[0], ms[1]}
	if img.Rank() == 3 {
		dims = append([]int{img.Shape[0]}, dims...)
	}
	mods := make([]*array.Dense[float32], p.geom.NModules())
	for i := range mods {
		mods[i] = array.New[float32](dims...)
	}
	if err := geometry.DismantleModules(p.geom, img, mods); err != nil {
		return nil, err
	}
	return mods, nil
}
