// Package framesink implements the Frame Sink capability spec.md §4.6
// describes: a pull-based callback that drains interleaved stereo floats
// out of the output Ring FIFO, backed by ebiten's audio player. The
// byte-marshalling and shared-context bookkeeping follow the teacher's
// internal/audio/stream.go Player, but FIFOSource itself is the io.Reader
// ebiten drives directly — no intermediate generic sample buffer sits
// between the Ring FIFO and the wire bytes, since this pipeline only ever
// has the one real Source. A Source capability interface is kept narrow,
// for test doubles that aren't ring-FIFO backed (internal/testsink).
package framesink

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/cbegin/teslacoil-synth/internal/logging"
	"github.com/cbegin/teslacoil-synth/internal/ringfifo"
	"github.com/cbegin/teslacoil-synth/internal/telemetry"
)

// bytesPerFrame is one interleaved stereo frame (2 channels * 4-byte
// little-endian float32), the unit ebiten's NewPlayerF32 reads in.
const bytesPerFrame = 8

// Source is the Frame Sink's pull interface (spec.md §4.6): fill out with
// frames stereo frames (2*frames floats, interleaved L/R), never blocking
// and never allocating.
type Source interface {
	Fill(out []float32, frames int)
}

// FIFOSource drains an output ring FIFO directly into ebiten's byte stream,
// zero-filling any shortfall and counting it as an underrun (spec.md §7).
// It implements both io.Reader (the path ebiten actually drives) and
// Source.Fill (for tests and any caller that wants raw float32 frames
// without the byte marshalling).
type FIFOSource struct {
	output *ringfifo.FIFO
	counts *telemetry.Counters
	log    *logging.RateLimited
}

// NewFIFOSource wraps output for consumption by a Frame Sink adapter.
func NewFIFOSource(output *ringfifo.FIFO, counts *telemetry.Counters) *FIFOSource {
	return &FIFOSource{
		output: output,
		counts: counts,
		log:    logging.NewRateLimited(logging.For("framesink"), underrunLogWindow),
	}
}

// Fill implements Source, draining up to frames stereo frames as raw
// float32s.
func (s *FIFOSource) Fill(out []float32, frames int) {
	need := frames * 2
	i := s.drain(out[:need])
	if i < need {
		s.noteUnderrun()
		for ; i < need; i++ {
			out[i] = 0
		}
	}
}

// Read implements io.Reader for ebiten's audio.Context: each stereo sample
// popped off the FIFO is marshalled straight to little-endian bytes,
// skipping the float32 staging buffer a generic Source.Fill caller needs.
func (s *FIFOSource) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	i := 0
	for ; i < need; i++ {
		v, ok := s.output.Pop()
		if !ok {
			break
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	if i < need {
		s.noteUnderrun()
		for ; i < need; i++ {
			binary.LittleEndian.PutUint32(p[i*4:], 0)
		}
	}
	return frames * bytesPerFrame, nil
}

func (s *FIFOSource) Close() error { return nil }

func (s *FIFOSource) drain(out []float32) int {
	i := 0
	for ; i < len(out); i++ {
		v, ok := s.output.Pop()
		if !ok {
			break
		}
		out[i] = v
	}
	return i
}

func (s *FIFOSource) noteUnderrun() {
	if s.counts != nil {
		s.counts.Underruns.Add(1)
	}
	s.log.Log("output FIFO underrun, zero-filling remainder")
}

// sourceBridge adapts any Source to io.Reader, used for callers (chiefly
// tests) that hand Open something other than a FIFOSource.
type sourceBridge struct {
	mu     sync.Mutex
	source Source
	buf    []float32
}

func (r *sourceBridge) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Fill(r.buf, frames)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	return frames * bytesPerFrame, nil
}

func (r *sourceBridge) Close() error { return nil }

// EbitenSink opens a Source as a live ebiten audio player.
type EbitenSink struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	contextOnce sync.Once
	context     *ebitaudio.Context
	contextRate int
	contextErr  error
)

func sharedContext(sampleRate int) (*ebitaudio.Context, error) {
	contextOnce.Do(func() {
		contextRate = sampleRate
		context = ebitaudio.NewContext(sampleRate)
	})
	if contextErr != nil {
		return nil, contextErr
	}
	if contextRate != sampleRate {
		return nil, fmt.Errorf("framesink: audio context already opened at %d Hz (requested %d Hz)", contextRate, sampleRate)
	}
	return context, nil
}

// Open starts playback of source through ebiten's audio backend at the
// given sample rate (spec.md §4.7 "opens Frame Sink"). A *FIFOSource reads
// directly; any other Source is wrapped in a sourceBridge.
func Open(sampleRate int, source Source) (*EbitenSink, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}

	var reader io.ReadCloser
	if fifo, ok := source.(*FIFOSource); ok {
		reader = fifo
	} else {
		reader = &sourceBridge{source: source}
	}

	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	sink := &EbitenSink{player: pl, reader: reader}
	sink.player.Play()
	return sink, nil
}

// Close stops playback (spec.md §4.7 "closes Frame Sink").
func (s *EbitenSink) Close() error {
	s.player.Pause()
	s.player.Close()
	return s.reader.Close()
}

const underrunLogWindow = 2 * time.Second
