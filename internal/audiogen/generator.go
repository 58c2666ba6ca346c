// Package audiogen implements the generator thread spec.md §4.4 describes:
// a background producer that advances the coil bank into the input FIFO on
// a wall-clock cadence, then drains it through the convolution engine into
// the output FIFO. Grounded on the pull-based goroutine idiom in the
// teacher's internal/audio/stream.go (adapted from pull to push-on-timer)
// and the wakePeriod/generatorThread design in
// original_source/Emulator/AudioEngine.h.
package audiogen

import (
	"sync/atomic"
	"time"

	"github.com/cbegin/teslacoil-synth/internal/coil"
	"github.com/cbegin/teslacoil-synth/internal/convolution"
	"github.com/cbegin/teslacoil-synth/internal/logging"
	"github.com/cbegin/teslacoil-synth/internal/ringfifo"
	"github.com/cbegin/teslacoil-synth/internal/telemetry"
)

// WakePeriod is the generator's polling cadence (spec.md §4.4: "~500us").
const WakePeriod = 500 * time.Microsecond

// Generator owns the coil-to-sample pipeline: it is the sole producer and
// consumer of the input FIFO and the sole producer of the output FIFO
// (spec.md §5).
type Generator struct {
	coils  *coil.Bank
	convL  *convolution.Engine
	convR  *convolution.Engine
	input  *ringfifo.FIFO // interleaved stereo
	output *ringfifo.FIFO // interleaved stereo

	stereoSeparation float32
	volume           float32
	sampleRate       int

	counts *telemetry.Counters
	log    interface {
		Debugf(string, ...interface{})
	}

	running     atomic.Bool
	stop        atomic.Bool
	lastSampleT time.Time

	deinterL []float32
	deinterR []float32
	outL     []float32
	outR     []float32
}

// New builds a Generator. convL and convR must share the same IR spectrum
// (the IR is immutable and shared, spec.md §4.5) but are otherwise
// independent per-channel convolver instances.
func New(coils *coil.Bank, convL, convR *convolution.Engine, input, output *ringfifo.FIFO, stereoSeparation, volume float32, sampleRate int, counts *telemetry.Counters) *Generator {
	return &Generator{
		coils:            coils,
		convL:            convL,
		convR:            convR,
		input:            input,
		output:           output,
		stereoSeparation: stereoSeparation,
		volume:           volume,
		sampleRate:       sampleRate,
		counts:           counts,
		log:              logging.For("audiogen"),
		deinterL:         make([]float32, convolution.BlockSize),
		deinterR:         make([]float32, convolution.BlockSize),
		outL:             make([]float32, convolution.BlockSize),
		outR:             make([]float32, convolution.BlockSize),
	}
}

// Run executes the generator loop until Stop is called or Run's caller
// abandons it (run this in its own goroutine). It is cooperative: the stop
// flag is checked once per wake, so shutdown completes within one
// WakePeriod (spec.md §5 cancellation).
func (g *Generator) Run() {
	g.running.Store(true)
	defer g.running.Store(false)
	g.lastSampleT = time.Now()

	ticker := time.NewTicker(WakePeriod)
	defer ticker.Stop()

	for range ticker.C {
		if g.stop.Load() {
			return
		}
		g.wake()
	}
}

// Stop signals the generator to exit; safe to call from any goroutine
// except the one running Run (spec.md §5).
func (g *Generator) Stop() {
	g.stop.Store(true)
}

// Running reports whether Run is currently executing its loop.
func (g *Generator) Running() bool {
	return g.running.Load()
}

func (g *Generator) wake() {
	now := time.Now()
	elapsed := now.Sub(g.lastSampleT)
	wantFrames := int(elapsed.Seconds() * float64(g.sampleRate))
	if wantFrames <= 0 {
		return
	}

	freeFrames := g.input.FreeSpace() / 2
	if wantFrames > freeFrames {
		wantFrames = freeFrames
		if g.counts != nil && wantFrames < int(elapsed.Seconds()*float64(g.sampleRate)) {
			g.counts.Overruns.Add(1)
		}
	}
	g.lastSampleT = g.lastSampleT.Add(time.Duration(wantFrames) * time.Second / time.Duration(g.sampleRate))

	for i := 0; i < wantFrames; i++ {
		l, r := g.coils.Advance(g.stereoSeparation, g.volume)
		if !g.input.Push(l) {
			break
		}
		if !g.input.Push(r) {
			break
		}
	}

	g.drain()
}

// drain pulls frame-aligned blocks out of the input FIFO, convolves each
// channel independently, and re-interleaves into the output FIFO (spec.md
// §4.4 step 3, §4.5).
func (g *Generator) drain() {
	for g.input.Available()/2 >= convolution.BlockSize {
		for i := 0; i < convolution.BlockSize; i++ {
			l, _ := g.input.Pop()
			r, _ := g.input.Pop()
			g.deinterL[i] = l
			g.deinterR[i] = r
		}

		g.convL.Process(g.deinterL, g.outL)
		g.convR.Process(g.deinterR, g.outR)

		for i := 0; i < convolution.BlockSize; i++ {
			if !g.output.Push(g.outL[i]) {
				if g.counts != nil {
					g.counts.Overruns.Add(1)
				}
				break
			}
			if !g.output.Push(g.outR[i]) {
				if g.counts != nil {
					g.counts.Overruns.Add(1)
				}
				break
			}
		}
	}
}
