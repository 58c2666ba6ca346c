// Package voice holds the fixed-size arena of polyphony slots the voice
// engine ticks every cycle. Grounded on the teacher's internal/fm/engine.go
// voice struct (per-voice envelope/oscillator state) and
// internal/nesapu/engine.go's tagged-slot channel behavior, generalized to
// the four MIDI channel modes spec.md §3 names. No dynamic allocation: a
// Bank is a fixed [N]Voice array, matching spec.md §9's "arenas over
// pointers" note.
package voice

import "sync/atomic"

// ChannelMode tags which envelope/modulation rules a voice follows,
// replacing a branch-on-midiChannel switch with dispatchable state
// (spec.md §9, "tagged variant for channel behavior").
type ChannelMode uint8

const (
	ChannelNote ChannelMode = iota
	ChannelFX
	ChannelArp
	ChannelDrum
)

func (c ChannelMode) String() string {
	switch c {
	case ChannelNote:
		return "Note"
	case ChannelFX:
		return "FX"
	case ChannelArp:
		return "Arp"
	case ChannelDrum:
		return "Drum"
	default:
		return "Unknown"
	}
}

// ADSRStage is the envelope stage a voice occupies; it only ever advances
// forward within a note's lifetime except for an explicit note-on reset
// (spec.md §3 invariant).
type ADSRStage uint8

const (
	StageAttack ADSRStage = iota
	StageDecay
	StageSustain
	StageRelease
	StageDone
)

func (s ADSRStage) String() string {
	switch s {
	case StageAttack:
		return "Attack"
	case StageDecay:
		return "Decay"
	case StageSustain:
		return "Sustain"
	case StageRelease:
		return "Release"
	case StageDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Held represents the "locked on forever" sentinel for an arpeggiator
// slot's end timestamp, resolving spec.md §9 Open Question 2: the source's
// unsigned-wraparound-dependent ULONG_MAX sentinel becomes a plain signed
// max value once timestamps are int64 milliseconds.
const Held int64 = 1<<63 - 1

// Drum holds the per-program percussion preset a DRUM-channel voice plays.
// Defined here (not in package drum) to avoid an import cycle; package drum
// builds and indexes a table of these.
type Drum struct {
	BaseNote float64 // Hz
	A        int64   // attack, ms
	R        int64   // release, ms
	EnvMod   float64
	NoiseMod float64
}

// Voice is one polyphony slot. All fields are plain values; slots are
// reused forever and never individually allocated or freed.
type Voice struct {
	Active bool

	Channel      ChannelMode
	MIDINote     uint8 // 0-127
	MIDIVel      uint8 // 0-127
	MIDIPB       int16 // pitch bend, centered at 0, range +/-8192
	MIDINoteDown bool

	ADSRStage     ADSRStage
	ADSRTimestamp int64 // ms
	LastEnv       uint8

	NoteDownTimestamp int64 // ms

	// Arpeggiator sub-state (ChannelArp only).
	ArpNotes             [MaxArpNotes]uint8
	ArpNoteEndTimestamps [MaxArpNotes]int64 // 0 = empty slot, Held = locked on
	ArpNotesIndex        int
	ArpTimestamp         int64

	// Drum sub-state (ChannelDrum only); nil otherwise.
	Drum *Drum

	// Output, written by the voice engine and consumed by the Pulse Sink.
	Period     uint32
	PulseWidth uint32
}

// MaxArpNotes bounds the arpeggiator ring capacity (config.NVOICES-sized
// deployments typically set this to 4-8).
const MaxArpNotes = 8

// updateState values for Bank.updating.
const (
	updateIdle    int32 = 0
	updateActive  int32 = 1
	updateSkipped int32 = 2
)

// Bank is the fixed arena of voice slots plus the re-entrancy guard
// described in spec.md §4.1/§5: external MIDI handling brackets its array
// edits with BeginUpdate/EndUpdate, and Tick() must observe the guard and
// skip its pass rather than read a voice mid-mutation.
type Bank struct {
	Voices   []Voice
	updating atomic.Int32
}

// NewBank allocates a Bank with n voice slots, all initially inactive.
func NewBank(n int) *Bank {
	if n <= 0 {
		n = 1
	}
	return &Bank{Voices: make([]Voice, n)}
}

// BeginUpdate marks the bank as being mutated by the MIDI/control actor.
// Must be paired with EndUpdate.
func (b *Bank) BeginUpdate() {
	b.updating.Store(updateActive)
}

// EndUpdate clears the update guard and reports whether a Tick was skipped
// while the guard was held, so the caller can force an immediate catch-up
// tick (spec.md §4.1 "re-entrancy guard").
func (b *Bank) EndUpdate() (tickSkipped bool) {
	prev := b.updating.Swap(updateIdle)
	return prev == updateSkipped
}

// TryTick reports whether it is safe for the voice engine to proceed with a
// tick. If the bank is mid-update, it upgrades the guard to "skipped" (so
// EndUpdate can signal the need for a catch-up tick) and returns false.
func (b *Bank) TryTick() bool {
	if b.updating.CompareAndSwap(updateIdle, updateIdle) {
		return true
	}
	// Not idle: mark that a tick wanted to run but couldn't.
	b.updating.CompareAndSwap(updateActive, updateSkipped)
	return false
}

// FindActive returns the index of the active voice matching (channel,
// note), or -1 if none. At most one such voice may exist at a time
// (spec.md §3 invariant).
func (b *Bank) FindActive(channel ChannelMode, note uint8) int {
	for i := range b.Voices {
		v := &b.Voices[i]
		if v.Active && v.Channel == channel && v.MIDINote == note {
			return i
		}
	}
	return -1
}

// FindFree returns the index of the first inactive voice, or -1 if the
// bank is full.
func (b *Bank) FindFree() int {
	for i := range b.Voices {
		if !b.Voices[i].Active {
			return i
		}
	}
	return -1
}

// OldestStealable returns the index of the oldest voice not in the attack
// or decay stage (spec.md §7 VoiceStealing: "evicting the oldest
// non-A/D voice"), or -1 if every voice is in A/D.
func (b *Bank) OldestStealable() int {
	best := -1
	var bestTs int64
	for i := range b.Voices {
		v := &b.Voices[i]
		if !v.Active {
			continue
		}
		if v.ADSRStage == StageAttack || v.ADSRStage == StageDecay {
			continue
		}
		if best == -1 || v.ADSRTimestamp < bestTs {
			best = i
			bestTs = v.ADSRTimestamp
		}
	}
	return best
}

// ArpHeld reports whether the arpeggiator slot with the given end
// timestamp should still be considered held down, resolving spec.md §9
// Open Question 2 with a plain signed comparison: a slot is held iff its
// end timestamp is still more than ARPEGGIO_LINGER in the future.
func ArpHeld(endTimestamp, now, arpeggioLinger int64) bool {
	return endTimestamp > now+arpeggioLinger
}
