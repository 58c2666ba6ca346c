// Package convolution implements the partitioned overlap-save convolution
// engine spec.md §4.5 describes: one FFT partition against a fixed 4096-tap
// impulse response. Grounded on other_examples'
// c8aeb95b_MeKo-Christian-pw_convoverb__dsp-convolution.go.go OverlapAddEngine
// (FFT plan lifecycle, IR pre-transform, complex multiply-then-inverse
// shape) and original_source/Emulator/AudioEngine.h's Convolution/genOutput
// block structure, adapted from overlap-add to overlap-save per spec.md §4.5.
package convolution

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cbegin/teslacoil-synth/internal/errs"
)

// N is the FFT size, equal to the fixed impulse response length (spec.md
// §3: "4096 real taps"). BlockSize is N/2, the number of new input samples
// consumed and output samples emitted per step (spec.md §4.5).
const (
	N         = 4096
	BlockSize = N / 2
)

// LoadIR reads an IR file in the format spec.md §6 defines: raw
// little-endian float32 pairs (real, imag) of length N/2+1, the half
// spectrum of a real-valued 4096-tap impulse response. Returns a
// *errs.ConfigError if the file is the wrong size.
func LoadIR(path string) ([]complex64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.WrapConfigError("ir", "failed to open impulse response file", err)
	}
	defer f.Close()

	const wantBins = N/2 + 1
	raw := make([]float32, wantBins*2)
	if err := binary.Read(f, binary.LittleEndian, raw); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, errs.NewConfigError("ir", fmt.Sprintf("expected %d complex bins (%d floats), file too short", wantBins, len(raw)))
		}
		return nil, errs.WrapConfigError("ir", "failed to read impulse response file", err)
	}
	// Reject trailing data: a correctly sized file has nothing left to read.
	var extra [1]byte
	if n, _ := f.Read(extra[:]); n > 0 {
		return nil, errs.NewConfigError("ir", fmt.Sprintf("expected exactly %d complex bins, file is longer", wantBins))
	}

	spectrum := make([]complex64, wantBins)
	for i := range spectrum {
		spectrum[i] = complex(raw[2*i], raw[2*i+1])
	}
	return spectrum, nil
}

// expandHermitian rebuilds the full N-point spectrum of a real signal from
// its N/2+1-bin half spectrum using conjugate symmetry.
func expandHermitian(half []complex64) []complex64 {
	full := make([]complex64, N)
	copy(full, half)
	for k := 1; k < N/2; k++ {
		full[N-k] = complexConj(half[k])
	}
	return full
}

func complexConj(c complex64) complex64 {
	return complex(real(c), -imag(c))
}

// Engine is one channel's overlap-save convolver. Convolvers are
// independent and mutable only by their owning producer (spec.md §4.5); the
// IR spectrum they share is immutable.
type Engine struct {
	plan     *algofft.Plan[complex64]
	irSpec   []complex64 // full N-point spectrum, shared, read-only
	tail     []float32   // previous block's last BlockSize input samples
	frame    []complex64 // scratch: tail ++ new input, forward-transformed in place
	primed   bool        // true once the first full block has been emitted
}

// NewEngine builds a convolver sharing the given half-spectrum IR. Multiple
// Engines may share the same irSpectrum safely since it is never mutated.
func NewEngine(irHalfSpectrum []complex64) (*Engine, error) {
	if len(irHalfSpectrum) != N/2+1 {
		return nil, errs.NewConfigError("ir", fmt.Sprintf("expected %d complex bins, got %d", N/2+1, len(irHalfSpectrum)))
	}
	plan, err := algofft.NewPlan32(N)
	if err != nil {
		return nil, fmt.Errorf("convolution: failed to build FFT plan: %w", err)
	}
	return &Engine{
		plan:   plan,
		irSpec: expandHermitian(irHalfSpectrum),
		tail:   make([]float32, BlockSize),
		frame:  make([]complex64, N),
	}, nil
}

// Reset clears buffered history, used when the orchestrator restarts
// (spec.md §4.7: "resets convolvers to zero-state").
func (e *Engine) Reset() {
	for i := range e.tail {
		e.tail[i] = 0
	}
	e.primed = false
}

// Process consumes exactly BlockSize new input samples and returns
// BlockSize output samples (spec.md §4.5). The first call, before any tail
// history exists, is equivalent to processing a zero-padded block: its
// output is the new input convolved with the IR against a silent history,
// so real (non-silent) samples are emitted from the first call onward.
func (e *Engine) Process(in []float32, out []float32) {
	if len(in) != BlockSize || len(out) != BlockSize {
		panic("convolution: Process requires exactly BlockSize samples in and out")
	}

	for i := 0; i < BlockSize; i++ {
		e.frame[i] = complex(e.tail[i], 0)
		e.frame[BlockSize+i] = complex(in[i], 0)
	}

	if err := e.plan.Forward(e.frame, e.frame); err != nil {
		panic(fmt.Sprintf("convolution: forward FFT failed: %v", err))
	}
	for i := range e.frame {
		e.frame[i] *= e.irSpec[i]
	}
	if err := e.plan.Inverse(e.frame, e.frame); err != nil {
		panic(fmt.Sprintf("convolution: inverse FFT failed: %v", err))
	}

	for i := 0; i < BlockSize; i++ {
		out[i] = real(e.frame[BlockSize+i])
	}
	copy(e.tail, in)
	e.primed = true
}

// Primed reports whether at least one full block has been processed.
func (e *Engine) Primed() bool { return e.primed }
