package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/foam/internal/array"
	"github.com/banshee-data/foam/internal/geometry"
)

// ReadRawTrain reads one train of little-endian float32 module data laid
// out as (pulses, modules, h, w), or (modules, h, w) when pulses is 0.
func ReadRawTrain(r io.Reader, g *geometry.Geometry, pulses int, trainID uint64, source string) (*RawTrain, error) {
	ms := g.ModuleShape()
	dims := []int{g.NModules(), ms[0], ms[1]}
	if pulses > 0 {
		dims = append([]int{pulses}, dims...)
	}
	stack := array.New[float32](dims...)
	if err := binary.Read(r, binary.LittleEndian, stack.Data); err != nil {
		return nil, fmt.Errorf("read train %d (%v float32): %w", trainID, dims, err)
	}
	return &RawTrain{TrainID: trainID, SourceName: source, Stack: stack}, nil
}

// ReplayRaw streams consecutive trains from r until EOF, ctx is cancelled
// or a read fails. Train ids start at firstID. The returned channel is
// closed when the replay ends; a read error other than a clean EOF is
// logged.
func ReplayRaw(ctx context.Context, r io.Reader, g *geometry.Geometry, pulses int, firstID uint64, source string) <-chan RawTrain {
	out := make(chan RawTrain)
	go func() {
		defer close(out)
		for id := firstID; ; id++ {
			t, err := ReadRawTrain(r, g, pulses, id, source)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					opsf("replay stopped: %v", err)
				}
				return
			}
			select {
			case out <- *t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// SyntheticSource generates trains with a diffraction-ring pattern plus
// noise, for running the pipeline without a bridge.
type SyntheticSource struct {
	Geometry *geometry.Geometry
	Pulses   int    // 0 for pulse-less trains
	Source   string // source name stamped on every train
	Seed     uint64

	// BadEvery, when > 0, makes every BadEvery-th train carry one module
	// too few, exercising the skip path.
	BadEvery int
}

// Trains emits n trains (n <= 0 means until ctx is cancelled) and closes
// the channel.
func (s SyntheticSource) Trains(ctx context.Context, n int) <-chan RawTrain {
	out := make(chan RawTrain)
	go func() {
		defer close(out)
		rng := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))
		for i := 0; n <= 0 || i < n; i++ {
			t := s.train(rng, uint64(i+1))
			if s.BadEvery > 0 && (i+1)%s.BadEvery == 0 {
				t.Modules = t.Modules[:len(t.Modules)-1]
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (s SyntheticSource) train(rng *rand.Rand, id uint64) RawTrain {
	g := s.Geometry
	ms := g.ModuleShape()
	center := g.AssembledCenter()
	radius := 0.3 * math.Min(center.X, center.Y)
	width := 0.05*radius + 1

	pulses := max(s.Pulses, 1)
	mods := make([]*array.Dense[float32], g.NModules())
	for m := range mods {
		dims := []int{ms[0], ms[1]}
		if s.Pulses > 0 {
			dims = append([]int{s.Pulses}, dims...)
		}
		mod := array.New[float32](dims...)
		off := g.ModuleOffset(m)
		for p := 0; p < pulses; p++ {
			frame := mod.Data[p*ms[0]*ms[1] : (p+1)*ms[0]*ms[1]]
			for r := 0; r < ms[0]; r++ {
				dy := float64(off[0]+r) - center.Y
				for c := 0; c < ms[1]; c++ {
					dx := float64(off[1]+c) - center.X
					d := (math.Hypot(dx, dy) - radius) / width
					frame[r*ms[1]+c] = float32(100*math.Exp(-d*d/2) + rng.NormFloat64())
				}
			}
		}
		mods[m] = mod
	}
	return RawTrain{TrainID: id, SourceName: s.Source, Modules: mods}
}
