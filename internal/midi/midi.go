// Package midi applies already-parsed MIDI events (the parser itself is an
// external collaborator per spec.md §1), delivered as calls to a
// Dispatcher's NoteOn/NoteOff/PitchBend/ControlChange/ProgramChange
// methods, to a voice.Bank under the
// voicesUpdating guard described in spec.md §5. Grounded on the teacher's
// internal/sequencer/sequencer.go applyEvent/dispatch shape, generalized
// from MML score events to live MIDI events.
package midi

import (
	"github.com/cbegin/teslacoil-synth/internal/drum"
	"github.com/cbegin/teslacoil-synth/internal/logging"
	"github.com/cbegin/teslacoil-synth/internal/telemetry"
	"github.com/cbegin/teslacoil-synth/internal/voice"
)

// Custom controller-change numbers used to carry the global synth
// parameters spec.md §3 lists (attack/decay/sustain/release, tremolo,
// vibrato, arpeggio period). The original firmware has no MIDI CC mapping
// at all (these were compile-time constants); this module invents a
// deliberately out-of-the-way CC range (102-113, outside the GM-reserved
// 0-101 block) so a controller can still reach them over a standard MIDI
// transport.
const (
	CCAttack         = 102
	CCDecay          = 103
	CCSustain        = 104
	CCRelease        = 105
	CCVolume         = 106
	CCTremoloPeriod  = 107
	CCTremoloDelay   = 108
	CCTremoloDepth   = 109
	CCVibratoPeriod  = 110
	CCVibratoDelay   = 111
	CCVibratoDepth   = 112
	CCArpeggioPeriod = 113
)

// GlobalState is the global synth state spec.md §3 names: a single set of
// values shared by every voice whatever its ChannelMode, mutated by
// ControlChange regardless of the channel the CC arrives on.
type GlobalState struct {
	Vol uint8

	Attack, Decay, Release int64 // ms
	Sustain                uint8

	TremoloPeriod, TremoloDelay int64
	TremoloDepth                uint8

	VibratoPeriod, VibratoDelay int64
	VibratoDepth                uint8

	ArpeggioPeriod int64 // ms
}

// DefaultGlobalState returns conservative defaults so a fresh Dispatcher
// produces audible, non-clipping output before any CC messages arrive.
func DefaultGlobalState() *GlobalState {
	return &GlobalState{
		Vol:            255,
		Attack:         10,
		Decay:          200,
		Release:        300,
		Sustain:        200,
		TremoloPeriod:  300,
		TremoloDelay:   500,
		TremoloDepth:   0,
		VibratoPeriod:  200,
		VibratoDelay:   500,
		VibratoDepth:   0,
		ArpeggioPeriod: 120,
	}
}

// Clock returns the current time in milliseconds; tests inject a
// deterministic fake.
type Clock func() int64

// Dispatcher applies already-parsed MIDI events to a voice.Bank, handling
// voice allocation/stealing (spec.md §7 VoiceStealing) and the
// arpeggiator's note ring (spec.md §4.1 ARP pitch section).
type Dispatcher struct {
	Bank    *voice.Bank
	Global  *GlobalState
	Drums   *drum.Table
	Counts  *telemetry.Counters
	Linger  int64 // ARPEGGIO_LINGER, ms
	Now     Clock
	program [4]uint8 // last ProgramChange per ChannelMode
	bendPB  [4]int16 // last PitchBend per ChannelMode
	arpVoice int     // index of the single ARP voice, -1 if none assigned
	log     interface{ Debugf(string, ...interface{}) }

	// ForceTick drives an out-of-band voice engine tick the instant a
	// BeginUpdate/EndUpdate bracket reports a skipped tick, so the
	// re-entrancy guard never costs more than one tick's latency (spec.md
	// §4.1). The orchestrator wires this to the voice engine's Tick after
	// both are constructed; nil is a valid no-op default for tests.
	ForceTick func(now int64)
}

// endUpdate closes a BeginUpdate bracket and, if the voice engine's tick
// was skipped while the bank was mid-update, immediately forces a catch-up
// tick rather than waiting for the next scheduled one.
func (d *Dispatcher) endUpdate() {
	if skipped := d.Bank.EndUpdate(); skipped && d.ForceTick != nil {
		d.ForceTick(d.Now())
	}
}

// NewDispatcher wires a Dispatcher around an existing voice bank.
func NewDispatcher(bank *voice.Bank, global *GlobalState, drums *drum.Table, counts *telemetry.Counters, arpeggioLinger int64, now Clock) *Dispatcher {
	return &Dispatcher{
		Bank:     bank,
		Global:   global,
		Drums:    drums,
		Counts:   counts,
		Linger:   arpeggioLinger,
		Now:      now,
		arpVoice: -1,
		log:      logging.For("midi"),
	}
}

// NoteOn allocates or retriggers a voice for (channel, note). ARP channel
// events are routed into the arpeggiator ring instead of individual voice
// slots (spec.md §3: ARP sub-state lives on a single voice).
func (d *Dispatcher) NoteOn(channel voice.ChannelMode, note, velocity uint8) {
	if channel == voice.ChannelArp {
		d.arpNoteOn(note, velocity)
		return
	}
	d.Bank.BeginUpdate()
	defer d.endUpdate()

	now := d.Now()
	idx := d.Bank.FindActive(channel, note)
	if idx < 0 {
		idx = d.Bank.FindFree()
	}
	if idx < 0 {
		idx = d.Bank.OldestStealable()
		if idx >= 0 && d.Counts != nil {
			d.Counts.VoiceSteals.Add(1)
		}
	}
	if idx < 0 {
		// Every voice is in attack/decay: fall back to the first slot
		// rather than dropping the note entirely.
		idx = 0
		if d.Counts != nil {
			d.Counts.VoiceSteals.Add(1)
		}
	}

	v := &d.Bank.Voices[idx]
	*v = voice.Voice{
		Active:            true,
		Channel:           channel,
		MIDINote:          note,
		MIDIVel:           velocity,
		MIDIPB:            d.bendPB[channel],
		MIDINoteDown:      true,
		ADSRStage:         voice.StageAttack,
		ADSRTimestamp:     now,
		NoteDownTimestamp: now,
	}
	if channel == voice.ChannelDrum && d.Drums != nil {
		v.Drum = d.Drums.Lookup(d.program[channel])
	}
}

// NoteOff marks the held key released; the voice engine's tick forces the
// ADSR stage to Release on the next pass (spec.md §4.1).
func (d *Dispatcher) NoteOff(channel voice.ChannelMode, note uint8) {
	if channel == voice.ChannelArp {
		d.arpNoteOff(note)
		return
	}
	d.Bank.BeginUpdate()
	defer d.endUpdate()
	if idx := d.Bank.FindActive(channel, note); idx >= 0 {
		d.Bank.Voices[idx].MIDINoteDown = false
	}
}

// PitchBend updates the live bend value for every currently active voice on
// the given channel and remembers it for voices triggered afterward.
func (d *Dispatcher) PitchBend(channel voice.ChannelMode, value int16) {
	d.Bank.BeginUpdate()
	defer d.endUpdate()
	d.bendPB[channel] = value
	for i := range d.Bank.Voices {
		v := &d.Bank.Voices[i]
		if v.Active && v.Channel == channel {
			v.MIDIPB = value
		}
	}
}

// ProgramChange remembers the selected program for a channel; for DRUM it
// selects which preset the next NoteOn on that channel will use.
func (d *Dispatcher) ProgramChange(channel voice.ChannelMode, program uint8) {
	d.program[channel] = program
}

// ControlChange applies one of the custom CC numbers in this file to the
// shared global synth state (spec.md §3).
func (d *Dispatcher) ControlChange(_ voice.ChannelMode, cc uint8, value uint8) {
	g := d.Global
	switch cc {
	case CCAttack:
		g.Attack = scaleMS(value)
	case CCDecay:
		g.Decay = scaleMS(value)
	case CCSustain:
		g.Sustain = value
	case CCRelease:
		g.Release = scaleMS(value)
	case CCVolume:
		g.Vol = value
	case CCTremoloPeriod:
		g.TremoloPeriod = scaleMS(value)
	case CCTremoloDelay:
		g.TremoloDelay = scaleMS(value)
	case CCTremoloDepth:
		g.TremoloDepth = value
	case CCVibratoPeriod:
		g.VibratoPeriod = scaleMS(value)
	case CCVibratoDelay:
		g.VibratoDelay = scaleMS(value)
	case CCVibratoDepth:
		g.VibratoDepth = value
	case CCArpeggioPeriod:
		g.ArpeggioPeriod = scaleMS(value)
	}
}

// scaleMS maps a 7-bit MIDI value (0-127) to a 0-2540ms range so short
// envelope stages and long pads are both reachable from a single knob.
func scaleMS(v uint8) int64 {
	return int64(v) * 20
}

// arpNoteOn adds note to the ring on the shared ARP voice, allocating the
// voice on first use (spec.md §4.1 ARP pitch section, §4.7.3 arena reuse).
func (d *Dispatcher) arpNoteOn(note, velocity uint8) {
	d.Bank.BeginUpdate()
	defer d.endUpdate()

	now := d.Now()
	if d.arpVoice < 0 || !d.Bank.Voices[d.arpVoice].Active {
		idx := d.Bank.FindFree()
		if idx < 0 {
			idx = d.Bank.OldestStealable()
			if idx >= 0 && d.Counts != nil {
				d.Counts.VoiceSteals.Add(1)
			}
		}
		if idx < 0 {
			idx = 0
		}
		d.arpVoice = idx
		d.Bank.Voices[idx] = voice.Voice{
			Active:            true,
			Channel:           voice.ChannelArp,
			MIDIVel:           velocity,
			MIDINoteDown:      true,
			ADSRStage:         voice.StageAttack,
			ADSRTimestamp:     now,
			NoteDownTimestamp: now,
			ArpTimestamp:      now,
		}
	}
	v := &d.Bank.Voices[d.arpVoice]
	v.MIDIVel = velocity
	v.MIDINoteDown = true

	// Reuse an existing slot for this note (retrigger) if present, else
	// the first empty slot, else overwrite the oldest (lowest end
	// timestamp, ties broken toward the first match).
	slot := -1
	for i, n := range v.ArpNotes {
		if v.ArpNoteEndTimestamps[i] != 0 && n == note {
			slot = i
			break
		}
	}
	if slot < 0 {
		for i, ts := range v.ArpNoteEndTimestamps {
			if ts == 0 {
				slot = i
				break
			}
		}
	}
	if slot < 0 {
		slot = 0
		oldest := v.ArpNoteEndTimestamps[0]
		for i, ts := range v.ArpNoteEndTimestamps {
			if ts < oldest {
				oldest = ts
				slot = i
			}
		}
	}
	v.ArpNotes[slot] = note
	v.ArpNoteEndTimestamps[slot] = voice.Held
}

// arpNoteOff marks the matching ring slot as released: it becomes finitely
// lived, expiring ARPEGGIO_LINGER ms from now (spec.md §4.1/§9 Open
// Question 2), rather than clearing it immediately.
func (d *Dispatcher) arpNoteOff(note uint8) {
	d.Bank.BeginUpdate()
	defer d.endUpdate()
	if d.arpVoice < 0 {
		return
	}
	v := &d.Bank.Voices[d.arpVoice]
	now := d.Now()
	for i, n := range v.ArpNotes {
		if v.ArpNoteEndTimestamps[i] != 0 && n == note {
			v.ArpNoteEndTimestamps[i] = now + d.Linger
		}
	}
}
