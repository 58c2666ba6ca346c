// Package voiceengine implements the tick described in spec.md §4.1: the
// per-cycle walk over every voice that advances envelopes, pitch, and
// modulation, then emits (period, pulseWidth) to a Pulse Sink. Grounded
// directly on original_source/Tesla_Coil_MIDI_Synth/Synth.cpp's
// updateSynth() for the exact envelope/pitch/duck arithmetic, structured
// like the teacher's internal/sequencer/sequencer.go dispatchTick loop. The
// noise-modulation idiom for DRUM voices follows the teacher's
// internal/nesapu/engine.go math/rand usage.
package voiceengine

import (
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/cbegin/teslacoil-synth/internal/midi"
	"github.com/cbegin/teslacoil-synth/internal/pulsesink"
	"github.com/cbegin/teslacoil-synth/internal/tables"
	"github.com/cbegin/teslacoil-synth/internal/voice"
)

// Config holds the fixed, rarely-changing parameters spec.md §6 lists that
// govern the tick's arithmetic (as opposed to the live, CC-tunable fields
// in midi.GlobalState).
type Config struct {
	FCPU               uint32 // hardware timer clock, Hz
	MinOffTime         uint32
	MinWidth           uint32
	MaxWidth           uint32
	AbsolutePulseWidth bool
	AutoDuck           bool
	PitchBendRange     float64 // semitones at max bend
	ArpeggioLinger     int64   // ms
}

// DefaultConfig returns values grounded on the firmware's own defaults
// where original_source names them (F_CPU, STEREO_SEPARATION, VOLUME in
// AudioEngine.h) and reasonable choices elsewhere, where original_source's
// Config.h was not part of the retrieved sources.
func DefaultConfig() Config {
	return Config{
		FCPU:               16_000_000,
		MinOffTime:         20,
		MinWidth:           4,
		MaxWidth:           2000,
		AbsolutePulseWidth: false,
		AutoDuck:           true,
		PitchBendRange:     2,
		ArpeggioLinger:     80,
	}
}

// midi2freq maps a MIDI note number (0-127) to its equal-temperament
// frequency in Hz, A4 (note 69) = 440Hz.
var midi2freq [128]float64

func init() {
	for n := range midi2freq {
		midi2freq[n] = 440 * math.Pow(2, (float64(n)-69)/12)
	}
}

// Engine ticks a voice.Bank, driven by shared per-channel global state and
// emitting to a Pulse Sink.
type Engine struct {
	bank   *voice.Bank
	global *midi.GlobalState
	cfg    Config
	sink   pulsesink.Sink

	// scratch, reused across ticks to avoid per-tick allocation
	pass1Env []uint8

	ticks atomic.Uint64
}

// New builds an Engine over the given bank, global state, config, and
// output sink.
func New(bank *voice.Bank, global *midi.GlobalState, cfg Config, sink pulsesink.Sink) *Engine {
	return &Engine{
		bank:     bank,
		global:   global,
		cfg:      cfg,
		sink:     sink,
		pass1Env: make([]uint8, len(bank.Voices)),
	}
}

// Tick advances every voice by one cycle at wall-clock time now
// (milliseconds). It returns false without mutating anything if the bank
// is mid-update by the MIDI actor (spec.md §4.1 re-entrancy guard);
// callers should retry on the next scheduled tick.
func (e *Engine) Tick(now int64) bool {
	if !e.bank.TryTick() {
		return false
	}

	var totalEnv int64
	notes := make([]float64, len(e.bank.Voices))

	for i := range e.bank.Voices {
		v := &e.bank.Voices[i]
		if !v.Active {
			continue
		}
		env, note := e.pass1(v, now)
		e.pass1Env[i] = env
		notes[i] = note
		totalEnv += int64(env)
	}

	duck := uint32(255)
	if e.cfg.AutoDuck {
		denom := totalEnv - 255
		if denom < 255 {
			denom = 255
		}
		duck = uint32((255 * 255) / denom)
		if duck > 255 {
			duck = 255
		}
	}

	for i := range e.bank.Voices {
		v := &e.bank.Voices[i]
		if !v.Active {
			e.sink.SetWidth(i, 0)
			continue
		}
		e.pass2(i, v, notes[i], e.pass1Env[i], duck)
	}
	e.ticks.Add(1)
	return true
}

// TickCount reports how many ticks have completed. An external caller (e.g.
// the orchestrator's tick loop) can poll this to detect a stalled engine,
// the Go analogue of the firmware's watchdog-reset-per-tick liveness proof.
func (e *Engine) TickCount() uint64 {
	return e.ticks.Load()
}

// pass1 advances one voice's envelope and pitch state, returning its
// envelope (0-255, post-velocity) and its note frequency in Hz, and
// stashing period/pulseWidth fields per spec.md §4.1's "stash" step
// (pulseWidth temporarily holds the envelope until pass 2 finalizes it).
func (e *Engine) pass1(v *voice.Voice, now int64) (env uint8, note float64) {
	switch v.Channel {
	case voice.ChannelNote:
		if !v.MIDINoteDown {
			v.Active = false
			return 0, 0
		}
		note = midi2freq[v.MIDINote]
		rawEnv := uint32(v.MIDIVel) * 2
		if rawEnv > 255 {
			rawEnv = 255
		}
		env = uint8(rawEnv)

	default:
		e.advanceADSR(v, now)
		if v.ADSRStage == voice.StageDone {
			return 0, 0
		}
		env = e.envelopeFor(v, now)
		note = e.pitchFor(v, now, env)
		env = scaleByVelocity(env, v.MIDIVel)
	}

	if v.Channel == voice.ChannelFX || v.Channel == voice.ChannelArp {
		note, env = e.applyTremoloVibrato(v, now, note, env)
	}

	note = e.applyPitchBend(note, v.MIDIPB)

	v.Period = periodFromNote(e.cfg.FCPU, note)
	v.PulseWidth = uint32(env) // stash per spec.md §4.1
	return env, note
}

func scaleByVelocity(env uint8, vel uint8) uint8 {
	scaled := uint32(env) * (2 * uint32(vel))
	scaled /= 255
	if scaled > 255 {
		scaled = 255
	}
	return uint8(scaled)
}

func periodFromNote(fcpu uint32, note float64) uint32 {
	if note <= 0 {
		return 0
	}
	return uint32(float64(fcpu) / (2 * note))
}

// advanceADSR applies spec.md §4.1's stage-transition rules.
func (e *Engine) advanceADSR(v *voice.Voice, now int64) {
	a, d, r := e.global.Attack, e.global.Decay, e.global.Release
	if v.Channel == voice.ChannelDrum && v.Drum != nil {
		a, r = v.Drum.A, v.Drum.R
	}
	if a <= 0 {
		a = 1
	}

	dt := now - v.ADSRTimestamp

	if !v.MIDINoteDown && v.ADSRStage != voice.StageRelease && v.ADSRStage != voice.StageDone {
		v.ADSRStage = voice.StageRelease
		v.ADSRTimestamp = now
		dt = 0
	}

	switch v.ADSRStage {
	case voice.StageAttack:
		if dt > a {
			if v.Channel == voice.ChannelDrum {
				v.ADSRStage = voice.StageSustain
				v.LastEnv = 255
			} else {
				v.ADSRStage = voice.StageDecay
			}
			v.ADSRTimestamp = now
		}
	case voice.StageDecay:
		if dt > d {
			v.ADSRStage = voice.StageSustain
			v.ADSRTimestamp = now
		}
	case voice.StageSustain:
		// holds until note-off forces Release above.
	case voice.StageRelease:
		if dt > r {
			v.ADSRStage = voice.StageDone
			v.Active = false
			if v.Channel == voice.ChannelArp {
				for i := range v.ArpNoteEndTimestamps {
					v.ArpNoteEndTimestamps[i] = 0
				}
			}
		}
	}
}

// envelopeFor computes the 0-255 envelope value for the voice's current
// stage, per spec.md §4.1's A/D/S/R formulas, and captures LastEnv while
// not yet releasing so Release can decay from the true pre-release level.
func (e *Engine) envelopeFor(v *voice.Voice, now int64) uint8 {
	a, d, r := e.global.Attack, e.global.Decay, e.global.Release
	s := e.global.Sustain
	if v.Channel == voice.ChannelDrum && v.Drum != nil {
		a, r = v.Drum.A, v.Drum.R
	}
	if a <= 0 {
		a = 1
	}
	dt := now - v.ADSRTimestamp

	var env uint8
	switch v.ADSRStage {
	case voice.StageAttack:
		env = 255 - tables.ExpLookup(dt*255/a)
	case voice.StageDecay:
		env = uint8((uint32(255-s)*uint32(tables.ExpLookup(dt*255/d)))/255 + uint32(s))
	case voice.StageSustain:
		env = s
	case voice.StageRelease:
		env = uint8((uint32(v.LastEnv) * uint32(tables.ExpLookup(dt*255/r))) / 255)
	}
	if v.ADSRStage != voice.StageRelease {
		v.LastEnv = env
	}
	return env
}

// pitchFor computes the base note frequency for FX/ARP/DRUM channels per
// spec.md §4.1's Pitch section.
func (e *Engine) pitchFor(v *voice.Voice, now int64, env uint8) float64 {
	switch v.Channel {
	case voice.ChannelFX:
		return midi2freq[v.MIDINote]
	case voice.ChannelArp:
		return e.arpPitch(v, now)
	case voice.ChannelDrum:
		return e.drumPitch(v, env)
	default:
		return midi2freq[v.MIDINote]
	}
}

func (e *Engine) arpPitch(v *voice.Voice, now int64) float64 {
	held := false
	for _, ts := range v.ArpNoteEndTimestamps {
		if ts != 0 && voice.ArpHeld(ts, now, e.cfg.ArpeggioLinger) {
			held = true
			break
		}
	}
	wasDown := v.MIDINoteDown
	v.MIDINoteDown = held
	if wasDown && !held {
		for i := range v.ArpNoteEndTimestamps {
			if v.ArpNoteEndTimestamps[i] != 0 && v.ArpNoteEndTimestamps[i] > now {
				v.ArpNoteEndTimestamps[i] = voice.Held
			}
		}
	}

	if now-v.ArpTimestamp > e.global.ArpeggioPeriod {
		v.ArpTimestamp = now
		for step := 0; step < voice.MaxArpNotes; step++ {
			v.ArpNotesIndex = (v.ArpNotesIndex + 1) % voice.MaxArpNotes
			if ts := v.ArpNoteEndTimestamps[v.ArpNotesIndex]; ts != 0 && ts > now {
				break
			}
		}
	}
	return midi2freq[v.ArpNotes[v.ArpNotesIndex]]
}

func (e *Engine) drumPitch(v *voice.Voice, env uint8) float64 {
	if v.Drum == nil {
		return midi2freq[v.MIDINote]
	}
	note := v.Drum.BaseNote
	note *= float64(env)/255*v.Drum.EnvMod + 1
	note *= (rand.Float64()*2-1)*v.Drum.NoiseMod + 1
	return note
}

// applyPitchBend scales note by the pitch-bend formula in spec.md §4.1.
func (e *Engine) applyPitchBend(note float64, pb int16) float64 {
	return note * (1 + (e.cfg.PitchBendRange-1)*float64(pb)/8192)
}

// applyTremoloVibrato applies spec.md §4.1's amplitude/pitch modulation to
// FX and ARP voices.
func (e *Engine) applyTremoloVibrato(v *voice.Voice, now int64, note float64, env uint8) (float64, uint8) {
	dt := now - v.NoteDownTimestamp

	tremAmt := rampTo255(dt, e.global.TremoloDelay)
	vibAmt := rampTo255(dt, e.global.VibratoDelay)

	tremOsc := int64(tables.SineLookup(scaledPhase(dt, e.global.TremoloPeriod)))
	vibOsc := int64(tables.SineLookup(scaledPhase(dt, e.global.VibratoPeriod)))

	const normalizer = 8_258_175

	envAdj := float64(env) * (1 + float64(e.global.TremoloDepth)*float64(tremAmt)*float64(tremOsc)/normalizer)
	envAdj = clampEnv(envAdj)

	noteAdj := note * (1 + float64(e.global.VibratoDepth)*float64(vibAmt)*float64(vibOsc)/normalizer)

	return noteAdj, uint8(envAdj)
}

func rampTo255(dt, delay int64) int64 {
	if delay <= 0 {
		return 255
	}
	v := dt * 255 / delay
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	return v
}

func scaledPhase(dt, period int64) int64 {
	if period <= 0 {
		return 0
	}
	return (dt * 255 / period) % 256
}

func clampEnv(env float64) float64 {
	if env < 0 {
		return 0
	}
	if env > 255 {
		return 255
	}
	return env
}

// pass2 finalizes period/pulseWidth for one active voice, folding in duck
// and enforcing the safety clamps spec.md §3's invariants require.
func (e *Engine) pass2(channel int, v *voice.Voice, note float64, env uint8, duck uint32) {
	period := v.Period
	vol := uint32(e.global.Vol)

	var maxWidth uint32
	if e.cfg.AbsolutePulseWidth {
		maxWidth = e.cfg.MaxWidth * 3 / 4 * vol / 255
	} else {
		maxWidth = uint32(uint64(period) * 3 * uint64(vol) / (4 * 255))
		if maxWidth > e.cfg.MaxWidth {
			maxWidth = e.cfg.MaxWidth
		}
	}

	pulseWidth := uint32(uint64(maxWidth) * uint64(env) * uint64(duck) / 65025)

	if period > e.cfg.MinOffTime && pulseWidth > period-e.cfg.MinOffTime {
		pulseWidth = period - e.cfg.MinOffTime
	} else if period <= e.cfg.MinOffTime {
		pulseWidth = 0
	}

	// spec.md §4.2: a width below MinWidth must silence the channel
	// entirely, matching updateWidth()'s timer-disable branch rather than
	// emitting a vanishingly short pulse.
	if pulseWidth < e.cfg.MinWidth {
		pulseWidth = 0
	}

	e.sink.SetPeriod(channel, period)
	e.sink.SetWidth(channel, pulseWidth)
}
