// Package tables precomputes the lookup tables the voice engine uses to
// turn a 0-255 progress index into an exponential-decay envelope value or a
// signed sine value, rather than calling math.Exp/math.Sin per voice per
// tick. Grounded on Synth.cpp's initSynth(): same crunch constant, same
// normalization to hit 0 and 255 exactly at the table's ends.
package tables

import "math"

// ExpCrunch controls how sharply the decay lookup curves toward zero; the
// firmware hardcodes this value and it is reused verbatim here.
const ExpCrunch = 4.5

// Size is the fixed lookup table length used throughout the voice engine.
const Size = 256

// Exponential is a precomputed 256-entry decay curve, 255 at index 0 down
// to 0 at index 255.
var Exponential [Size]uint8

// Sine is a precomputed 256-entry signed sine table spanning one full
// period, values in [-127, 127].
var Sine [Size]int8

func init() {
	scale := math.Exp(-ExpCrunch)
	for x := 0; x < Size; x++ {
		v := (math.Exp(-float64(x)*ExpCrunch/255.0) - scale) / (1 - scale) * 255
		Exponential[x] = uint8(clamp(v, 0, 255))
	}
	for x := 0; x < Size; x++ {
		v := math.Sin(2*math.Pi*float64(x)/256.0) * 127
		Sine[x] = int8(clamp(v, -127, 127))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ExpLookup returns Exponential at the given index, clamping a raw index
// computed as dt*255/duration into [0, 255] the way the firmware's
// uint8_t-truncating arithmetic effectively does.
func ExpLookup(idx int64) uint8 {
	if idx < 0 {
		idx = 0
	}
	if idx > 255 {
		idx = 255
	}
	return Exponential[idx]
}

// SineLookup returns Sine at idx mod 256, matching the firmware's `&0xFF`
// wraparound for a lookup index that grows without bound over time.
func SineLookup(idx int64) int8 {
	return Sine[((idx%256)+256)%256]
}
