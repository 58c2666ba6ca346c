package drum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/teslacoil-synth/internal/voice"
)

func TestDefaultTableLookup(t *testing.T) {
	tbl := DefaultTable()
	kick := tbl.Lookup(0)
	require.NotNil(t, kick, "expected a kick preset at program 0")
	assert.EqualValues(t, 60, kick.BaseNote, "expected kick base note 60")
	assert.Nil(t, tbl.Lookup(99), "expected no preset at undefined program 99")
}

func TestNewTableCopiesPresets(t *testing.T) {
	presets := map[uint8]voice.Drum{0: {BaseNote: 100}}
	tbl := NewTable(presets)
	presets[0] = voice.Drum{BaseNote: 999}
	assert.EqualValues(t, 100, tbl.Lookup(0).BaseNote, "expected table to hold its own copy")
}
