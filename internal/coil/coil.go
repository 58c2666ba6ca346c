// Package coil models a single Tesla-coil oscillator and the stereo mixing
// stage feeding the convolution engine. Grounded on the phase-accumulate
// pulse/triangle oscillators in the teacher's internal/nesapu/engine.go and
// on original_source/Emulator/AudioEngine.h's genOutput() mixing, with the
// DC-removal idea adapted from original_source/Tesla_Coil_MIDI_Synth/Audio.cpp's
// AM_PWM baseline-tracking branch (spec.md §10 supplemented feature).
package coil

import (
	"sync/atomic"

	"github.com/cbegin/teslacoil-synth/internal/pulsesink"
)

// Bank owns the fixed set of coil channels. Period and PulseWidth are
// single-writer (Voice Engine) / single-reader (generator) per spec.md §5,
// implemented with relaxed atomics rather than a lock: tearing between the
// two fields is tolerable, losing a write is not.
type Bank struct {
	period     []atomic.Uint32
	pulseWidth []atomic.Uint32
	phase      []uint32 // generator-owned only
	pan        []float32
	baseline   []float32 // DC-removal running baseline, generator-owned only

	removeDC bool
}

// NewBank allocates n coil channels, panned evenly across the stereo field
// (channel 0 hard left, last channel hard right, interior channels spread
// linearly) unless the caller overrides Pan afterward.
func NewBank(n int, removeDC bool) *Bank {
	b := &Bank{
		period:     make([]atomic.Uint32, n),
		pulseWidth: make([]atomic.Uint32, n),
		phase:      make([]uint32, n),
		pan:        make([]float32, n),
		baseline:   make([]float32, n),
		removeDC:   removeDC,
	}
	for i := range b.pan {
		if n <= 1 {
			b.pan[i] = 0
			continue
		}
		b.pan[i] = -1 + 2*float32(i)/float32(n-1)
	}
	return b
}

// SetPeriod implements pulsesink.Sink.
func (b *Bank) SetPeriod(channel int, period uint32) {
	b.period[channel].Store(period)
}

// SetWidth implements pulsesink.Sink. A width below pulsesink.MinWidth is
// stored as 0, guaranteeing the Sink interface's silencing contract holds
// even for a caller that forgets the voice engine's own MinWidth clamp
// (spec.md §4.2, updateWidth()'s timer-disable branch).
func (b *Bank) SetWidth(channel int, width uint32) {
	if width < pulsesink.MinWidth {
		width = 0
	}
	b.pulseWidth[channel].Store(width)
}

// SetPan fixes a channel's stereo position, in [-1, 1].
func (b *Bank) SetPan(channel int, pan float32) {
	b.pan[channel] = pan
}

// Len returns the number of coil channels.
func (b *Bank) Len() int { return len(b.period) }

// dcAlpha is the one-pole baseline tracking coefficient; small enough that
// it only follows slow drift, not the pulse train itself.
const dcAlpha = 0.001

// Advance steps every coil by one sample and returns the mixed stereo
// frame, scaled by volume and the given stereo-separation coefficient
// (spec.md §4.4). A coil's raw sample is +1 while phase < pulseWidth, else
// 0; phase wraps at period.
func (b *Bank) Advance(stereoSeparation, volume float32) (left, right float32) {
	for i := range b.period {
		period := b.period[i].Load()
		width := b.pulseWidth[i].Load()
		if period == 0 {
			continue
		}

		var raw float32
		if b.phase[i] < width {
			raw = 1
		}
		b.phase[i]++
		if b.phase[i] >= period {
			b.phase[i] -= period
		}

		if b.removeDC {
			b.baseline[i] += dcAlpha * (raw - b.baseline[i])
			raw -= b.baseline[i]
		}

		pan := b.pan[i]
		leftGain := clamp01to2(1 - stereoSeparation*pan)
		rightGain := clamp01to2(1 + stereoSeparation*pan)
		left += raw * leftGain
		right += raw * rightGain
	}
	return left * volume, right * volume
}

func clamp01to2(g float32) float32 {
	if g < 0 {
		return 0
	}
	if g > 2 {
		return 2
	}
	return g
}

// Reset zeroes phase and DC baseline, used when the orchestrator restarts
// (spec.md §4.7) so a stale phase doesn't produce a click.
func (b *Bank) Reset() {
	for i := range b.phase {
		b.phase[i] = 0
		b.baseline[i] = 0
	}
}
