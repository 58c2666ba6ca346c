package voiceengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/teslacoil-synth/internal/midi"
	"github.com/cbegin/teslacoil-synth/internal/testsink"
	"github.com/cbegin/teslacoil-synth/internal/voice"
)

func TestNoteSteadyStateEmitsPeriodAndWidth(t *testing.T) {
	bank := voice.NewBank(1)
	bank.Voices[0] = voice.Voice{
		Active:       true,
		Channel:      voice.ChannelNote,
		MIDINote:     69, // A4, 440Hz
		MIDIVel:      100,
		MIDINoteDown: true,
	}
	global := midi.DefaultGlobalState()
	global.Vol = 255
	cfg := DefaultConfig()
	sink := testsink.NewRecordingPulseSink()
	e := New(bank, global, cfg, sink)

	require.True(t, e.Tick(0), "expected tick to run")
	wantPeriod := periodFromNote(cfg.FCPU, 440)
	assert.Equal(t, wantPeriod, sink.Period[0])
	assert.NotZero(t, sink.Width[0], "expected a non-zero pulse width")

	bank.Voices[0].MIDINoteDown = false
	e.Tick(1)
	assert.False(t, bank.Voices[0].Active, "expected voice to go inactive once note-down clears")
	assert.Zero(t, sink.Width[0], "expected width 0 once inactive")
}

// TestDuckAppliesOnlyAboveThreshold asserts spec.md §8's S4 duck formula
// (duck = 255*255/max(255, totalEnv-255), clamped to 255) against its exact
// documented values: duck=255 for 2 voices at env=200 (totalEnv=400, under
// the 255 threshold so denom clamps to 255 and duck saturates), and
// duck≈119 for 4 voices at env=200 (totalEnv=800, denom=545,
// duck=65025/545=119 after truncation). AbsolutePulseWidth and full Vol
// pin maxWidth at a fixed 1500, so the resulting pulse widths are an exact,
// independently-checkable function of duck alone: width =
// maxWidth*env*duck/65025.
func TestDuckAppliesOnlyAboveThreshold(t *testing.T) {
	const velocity = 100 // pass1 computes env = 2*vel = 200 for ChannelNote

	newVoice := func() voice.Voice {
		return voice.Voice{
			Active: true, Channel: voice.ChannelNote, MIDINote: 69, MIDIVel: velocity,
			MIDINoteDown: true,
		}
	}

	run := func(nVoices int) uint32 {
		bank := voice.NewBank(4)
		for i := 0; i < nVoices; i++ {
			bank.Voices[i] = newVoice()
		}
		global := midi.DefaultGlobalState()
		cfg := DefaultConfig()
		cfg.AutoDuck = true
		cfg.AbsolutePulseWidth = true
		cfg.MaxWidth = 2000
		sink := testsink.NewRecordingPulseSink()
		e := New(bank, global, cfg, sink)
		e.Tick(0)
		return sink.Width[0]
	}

	// maxWidth = cfg.MaxWidth*3/4*vol/255 = 2000*3/4*255/255 = 1500.
	const maxWidth = 1500

	// 2 voices: totalEnv=400, denom=max(255,400-255)=255, duck=255*255/255=255.
	wantDuck2 := uint32(255)
	wantWidth2 := uint32(maxWidth) * 200 * wantDuck2 / 65025
	assert.Equal(t, wantWidth2, run(2), "expected duck=255 (no ducking) for 2 voices at env=200")

	// 4 voices: totalEnv=800, denom=800-255=545, duck=255*255/545=119 (truncated).
	wantDuck4 := uint32(119)
	wantWidth4 := uint32(maxWidth) * 200 * wantDuck4 / 65025
	assert.Equal(t, wantWidth4, run(4), "expected duck=119 for 4 voices at env=200")
}

func TestPulseWidthNeverExceedsPeriodMinusMinOffTime(t *testing.T) {
	bank := voice.NewBank(1)
	bank.Voices[0] = voice.Voice{
		Active: true, Channel: voice.ChannelNote, MIDINote: 127, MIDIVel: 127, MIDINoteDown: true,
	}
	global := midi.DefaultGlobalState()
	global.Vol = 255
	cfg := DefaultConfig()
	sink := testsink.NewRecordingPulseSink()
	e := New(bank, global, cfg, sink)
	e.Tick(0)

	period := sink.Period[0]
	width := sink.Width[0]
	if period > cfg.MinOffTime {
		assert.LessOrEqual(t, width, period-cfg.MinOffTime)
	}
	assert.LessOrEqual(t, width, cfg.MaxWidth)
}

func TestPulseWidthBelowMinWidthIsSilenced(t *testing.T) {
	bank := voice.NewBank(1)
	bank.Voices[0] = voice.Voice{
		Active: true, Channel: voice.ChannelNote, MIDINote: 69, MIDIVel: 1, MIDINoteDown: true,
	}
	global := midi.DefaultGlobalState()
	global.Vol = 1 // near-silent volume drives pulseWidth under MinWidth
	cfg := DefaultConfig()
	cfg.MinWidth = 1000 // force the clamp regardless of the computed width
	sink := testsink.NewRecordingPulseSink()
	e := New(bank, global, cfg, sink)
	e.Tick(0)

	assert.Zero(t, sink.Width[0], "expected a width below MinWidth to be silenced entirely")
}

func TestADSRStageIsNonDecreasingExceptOnNoteOn(t *testing.T) {
	bank := voice.NewBank(1)
	bank.Voices[0] = voice.Voice{
		Active: true, Channel: voice.ChannelFX, MIDINote: 60, MIDIVel: 100,
		MIDINoteDown: true, ADSRStage: voice.StageAttack, ADSRTimestamp: 0,
	}
	global := midi.DefaultGlobalState()
	global.Attack, global.Decay, global.Sustain, global.Release = 50, 100, 128, 200
	cfg := DefaultConfig()
	sink := testsink.NewRecordingPulseSink()
	e := New(bank, global, cfg, sink)

	var lastStage voice.ADSRStage
	for t_ := int64(0); t_ <= 600; t_ += 10 {
		e.Tick(t_)
		stage := bank.Voices[0].ADSRStage
		require.GreaterOrEqualf(t, stage, lastStage, "ADSR stage decreased at t=%d", t_)
		lastStage = stage
		if stage == voice.StageSustain && t_ == 300 {
			bank.Voices[0].MIDINoteDown = false
		}
	}
	assert.Equal(t, voice.StageDone, lastStage, "expected voice to reach Done by t=600")
}

func TestTickCountAdvancesOnlyOnSuccessfulTick(t *testing.T) {
	bank := voice.NewBank(1)
	global := midi.DefaultGlobalState()
	cfg := DefaultConfig()
	sink := testsink.NewRecordingPulseSink()
	e := New(bank, global, cfg, sink)

	assert.Zero(t, e.TickCount())
	e.Tick(0)
	assert.EqualValues(t, 1, e.TickCount())

	bank.BeginUpdate()
	ok := e.Tick(1)
	bank.EndUpdate()
	assert.False(t, ok, "expected tick to be skipped while the bank is mid-update")
	assert.EqualValues(t, 1, e.TickCount(), "tick count must not advance on a skipped tick")
}

func TestArpCyclesThroughHeldNotes(t *testing.T) {
	bank := voice.NewBank(1)
	v := &bank.Voices[0]
	*v = voice.Voice{
		Active: true, Channel: voice.ChannelArp, MIDINoteDown: true,
		ADSRStage: voice.StageSustain,
	}
	v.ArpNotes[0], v.ArpNoteEndTimestamps[0] = 60, voice.Held
	v.ArpNotes[1], v.ArpNoteEndTimestamps[1] = 64, voice.Held
	v.ArpNotesIndex = 0

	global := midi.DefaultGlobalState()
	global.ArpeggioPeriod = 100
	cfg := DefaultConfig()
	sink := testsink.NewRecordingPulseSink()
	e := New(bank, global, cfg, sink)

	e.Tick(0)
	firstPeriod := sink.Period[0]
	e.Tick(150) // past one arpeggioPeriod: should advance to the next held note
	secondPeriod := sink.Period[0]
	assert.NotEqual(t, firstPeriod, secondPeriod, "expected the arpeggiator to advance to a different note's period")
}
