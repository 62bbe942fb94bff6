package monitor

import (
	"context"
	"sync"

	"github.com/banshee-data/foam/internal/array"
	"github.com/banshee-data/foam/internal/imageproc"
	"github.com/banshee-data/foam/internal/pipeline"
)

// DefaultHistory is the number of figure of merit points kept when Options
// does not say otherwise.
const DefaultHistory = 600

// Options configures a Snapshot.
type Options struct {
	History int                  // FOM points kept; <= 0 means DefaultHistory
	Edge    imageproc.EdgeParams // used by the edges debug page
}

// FOMPoint is the figure of merit of one processed train.
type FOMPoint struct {
	TrainID uint64  `json:"train_id"`
	FOM     float64 `json:"fom"`
}

// Snapshot is a pipeline.Sink holding the latest masked mean image and a
// bounded figure of merit history. It is safe for concurrent use.
type Snapshot struct {
	edge imageproc.EdgeParams

	mu        sync.RWMutex
	latest    *array.Dense[float32]
	latestID  uint64
	source    string
	history   []FOMPoint // ring buffer
	next      int
	full      bool
	processed int
	skipped   int
}

var _ pipeline.Sink = (*Snapshot)(nil)

// NewSnapshot returns an empty snapshot.
func NewSnapshot(opts Options) *Snapshot {
	n := opts.History
	if n <= 0 {
		n = DefaultHistory
	}
	return &Snapshot{edge: opts.Edge, history: make([]FOMPoint, n)}
}

// RecordTrain implements pipeline.Sink.
func (s *Snapshot) RecordTrain(_ context.Context, r pipeline.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Skipped() {
		s.skipped++
		return nil
	}
	s.processed++
	s.latest = r.Train.MaskedMean
	s.latestID = r.TrainID
	s.source = r.Source
	s.history[s.next] = FOMPoint{TrainID: r.TrainID, FOM: r.Train.FOM}
	s.next++
	if s.next == len(s.history) {
		s.next = 0
		s.full = true
	}
	return nil
}

// Latest returns a copy of the most recent masked mean image and its train
// id. ok is false until a train has been processed.
func (s *Snapshot) Latest() (img *array.Dense[float32], trainID uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, 0, false
	}
	return s.latest.Clone(), s.latestID, true
}

// FOMHistory returns the kept figure of merit points, oldest first.
func (s *Snapshot) FOMHistory() []FOMPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.full {
		return append([]FOMPoint(nil), s.history[:s.next]...)
	}
	out := make([]FOMPoint, 0, len(s.history))
	out = append(out, s.history[s.next:]...)
	return append(out, s.history[:s.next]...)
}

// Counts returns how many trains were processed and skipped.
func (s *Snapshot) Counts() (processed, skipped int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processed, s.skipped
}

// Edges runs edge detection on the latest image.
func (s *Snapshot) Edges() (*array.Mask, uint64, error) {
	img, id, ok := s.Latest()
	if !ok {
		return nil, 0, errNoImage
	}
	m, err := imageproc.EdgeDetect(img, s.edge)
	return m, id, err
}

// FourierTransform returns the centred 2D Fourier transform magnitude of
// the latest image.
func (s *Snapshot) FourierTransform(logarithmic bool) (*array.Dense[float32], uint64, error) {
	img, id, ok := s.Latest()
	if !ok {
		return nil, 0, errNoImage
	}
	f, err := imageproc.FourierTransform(img, logarithmic)
	return f, id, err
}
