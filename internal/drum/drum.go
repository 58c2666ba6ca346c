// Package drum holds the percussion preset table indexed by MIDI program
// number, grounded on the per-slot preset pattern in the teacher's
// internal/nesapu/engine.go and the voice.drum fields in
// original_source/Tesla_Coil_MIDI_Synth/Synth.cpp.
package drum

import "github.com/cbegin/teslacoil-synth/internal/voice"

// Table maps a MIDI program number to a drum preset. Presets are loaded
// once at startup and referenced by pointer from voice.Voice.Drum; no
// allocation occurs on the audio-triggering path.
type Table struct {
	presets map[uint8]*voice.Drum
}

// NewTable builds a preset table from program -> preset pairs.
func NewTable(presets map[uint8]voice.Drum) *Table {
	t := &Table{presets: make(map[uint8]*voice.Drum, len(presets))}
	for program, p := range presets {
		preset := p
		t.presets[program] = &preset
	}
	return t
}

// Lookup returns the preset for a program number, or nil if undefined.
func (t *Table) Lookup(program uint8) *voice.Drum {
	return t.presets[program]
}

// DefaultTable returns a small built-in kit (kick, snare, closed hat)
// covering MIDI programs 0-2, enough to exercise the DRUM channel mode
// without requiring an external preset file.
func DefaultTable() *Table {
	return NewTable(map[uint8]voice.Drum{
		0: {BaseNote: 60, A: 1, R: 180, EnvMod: 4.0, NoiseMod: 0.05},   // kick
		1: {BaseNote: 200, A: 1, R: 120, EnvMod: 1.0, NoiseMod: 0.6},   // snare
		2: {BaseNote: 4000, A: 1, R: 40, EnvMod: 0.2, NoiseMod: 1.0},   // closed hat
	})
}
