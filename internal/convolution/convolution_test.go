package convolution

import (
	"encoding/binary"
	"os"
	"testing"
)

func unitImpulseSpectrum() []complex64 {
	spec := make([]complex64, N/2+1)
	for i := range spec {
		spec[i] = complex(1, 0)
	}
	return spec
}

func TestIdentitySpectrumPassesInputThrough(t *testing.T) {
	e, err := NewEngine(unitImpulseSpectrum())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := make([]float32, BlockSize)
	for i := range in {
		in[i] = float32(i%7) - 3
	}
	out := make([]float32, BlockSize)
	e.Process(in, out)
	for i := range in {
		if diff := out[i] - in[i]; diff > 1e-3 || diff < -1e-3 {
			t.Fatalf("identity spectrum should pass samples through unchanged at %d: in=%v out=%v", i, in[i], out[i])
		}
	}
}

func TestZeroInputSettlesToZero(t *testing.T) {
	half := make([]complex64, N/2+1)
	for i := range half {
		half[i] = complex(0.3, 0.1) // some arbitrary non-trivial IR spectrum
	}
	e, err := NewEngine(half)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	zero := make([]float32, BlockSize)
	out := make([]float32, BlockSize)
	for block := 0; block < 4; block++ {
		e.Process(zero, out)
	}
	for i, v := range out {
		if v > 1e-3 || v < -1e-3 {
			t.Fatalf("expected output to settle to zero after repeated silent blocks, got out[%d]=%v", i, v)
		}
	}
}

func TestLinearity(t *testing.T) {
	half := make([]complex64, N/2+1)
	for i := range half {
		half[i] = complex(float32(i%5)*0.1, float32(i%3)*0.05)
	}

	x := make([]float32, BlockSize)
	y := make([]float32, BlockSize)
	for i := range x {
		x[i] = float32(i%11) - 5
		y[i] = float32(i%13) - 6
	}
	const a, b = float32(2.0), float32(-0.5)
	sum := make([]float32, BlockSize)
	for i := range sum {
		sum[i] = a*x[i] + b*y[i]
	}

	ex, _ := NewEngine(half)
	ey, _ := NewEngine(half)
	esum, _ := NewEngine(half)

	outX := make([]float32, BlockSize)
	outY := make([]float32, BlockSize)
	outSum := make([]float32, BlockSize)
	// Run several blocks so tail history is exercised identically on all
	// three engines before comparing.
	for i := 0; i < 3; i++ {
		ex.Process(x, outX)
		ey.Process(y, outY)
		esum.Process(sum, outSum)
	}

	for i := range outSum {
		want := a*outX[i] + b*outY[i]
		if diff := outSum[i] - want; diff > 1e-2 || diff < -1e-2 {
			t.Fatalf("linearity violated at %d: got %v want %v", i, outSum[i], want)
		}
	}
}

func TestLoadIRRejectsWrongSize(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.ir"
	writeFloats(t, path, make([]float32, 10))
	if _, err := LoadIR(path); err == nil {
		t.Fatalf("expected an error for a too-short IR file")
	}
}

func writeFloats(t *testing.T, path string, data []float32) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, data); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
}
