package voice

import "testing"

func TestBankFindFreeAndActive(t *testing.T) {
	b := NewBank(4)
	if i := b.FindFree(); i != 0 {
		t.Fatalf("expected slot 0 free, got %d", i)
	}
	b.Voices[1].Active = true
	b.Voices[1].Channel = ChannelNote
	b.Voices[1].MIDINote = 60
	if i := b.FindActive(ChannelNote, 60); i != 1 {
		t.Fatalf("expected to find active voice at 1, got %d", i)
	}
	if i := b.FindActive(ChannelNote, 61); i != -1 {
		t.Fatalf("expected no match, got %d", i)
	}
}

func TestBankUpdateGuardSkipsTick(t *testing.T) {
	b := NewBank(2)
	if !b.TryTick() {
		t.Fatalf("expected tick to proceed when idle")
	}
	b.BeginUpdate()
	if b.TryTick() {
		t.Fatalf("expected tick to be refused during update")
	}
	skipped := b.EndUpdate()
	if !skipped {
		t.Fatalf("expected EndUpdate to report a skipped tick")
	}
	// Second time around, no tick attempted during the update window.
	b.BeginUpdate()
	skipped = b.EndUpdate()
	if skipped {
		t.Fatalf("expected EndUpdate to report no skipped tick")
	}
}

func TestOldestStealableSkipsAttackDecay(t *testing.T) {
	b := NewBank(3)
	b.Voices[0] = Voice{Active: true, ADSRStage: StageAttack, ADSRTimestamp: 0}
	b.Voices[1] = Voice{Active: true, ADSRStage: StageSustain, ADSRTimestamp: 100}
	b.Voices[2] = Voice{Active: true, ADSRStage: StageRelease, ADSRTimestamp: 50}
	if i := b.OldestStealable(); i != 2 {
		t.Fatalf("expected oldest stealable voice at 2, got %d", i)
	}
}

func TestOldestStealableNoneWhenAllAttackDecay(t *testing.T) {
	b := NewBank(2)
	b.Voices[0] = Voice{Active: true, ADSRStage: StageAttack}
	b.Voices[1] = Voice{Active: true, ADSRStage: StageDecay}
	if i := b.OldestStealable(); i != -1 {
		t.Fatalf("expected -1, got %d", i)
	}
}

func TestChannelModeAndADSRStageString(t *testing.T) {
	if got := ChannelDrum.String(); got != "Drum" {
		t.Fatalf("expected Drum, got %s", got)
	}
	if got := ChannelMode(99).String(); got != "Unknown" {
		t.Fatalf("expected Unknown for an out-of-range ChannelMode, got %s", got)
	}
	if got := StageRelease.String(); got != "Release" {
		t.Fatalf("expected Release, got %s", got)
	}
	if got := ADSRStage(99).String(); got != "Unknown" {
		t.Fatalf("expected Unknown for an out-of-range ADSRStage, got %s", got)
	}
}

func TestArpHeldSignedComparison(t *testing.T) {
	const linger = 50
	if !ArpHeld(200, 100, linger) {
		t.Fatalf("expected held: end well in the future")
	}
	if ArpHeld(140, 100, linger) {
		t.Fatalf("expected not held: end within linger window")
	}
	if !ArpHeld(Held, 100, linger) {
		t.Fatalf("expected the Held sentinel itself to report held without overflow")
	}
}
