package teslacoil

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/teslacoil-synth/internal/config"
	"github.com/cbegin/teslacoil-synth/internal/convolution"
)

func writeUnitImpulseIR(t *testing.T) string {
	t.Helper()
	path := t.TempDir() + "/ir.bin"
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	data := make([]float32, (convolution.N/2+1)*2)
	for i := 0; i < len(data); i += 2 {
		data[i] = 1 // real=1, imag=0: flat "all-ones" spectrum
	}
	require.NoError(t, binary.Write(f, binary.LittleEndian, data))
	return path
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.IRPath = writeUnitImpulseIR(t)
	cfg.Channels = 1
	_, err := New(cfg)
	assert.Error(t, err, "expected an error for an invalid config")
}

func TestNewRejectsMissingIRFile(t *testing.T) {
	cfg := config.Defaults()
	cfg.IRPath = "/nonexistent/path/to/ir.bin"
	_, err := New(cfg)
	assert.Error(t, err, "expected an error for a missing IR file")
}

func TestNewBuildsEveryComponent(t *testing.T) {
	cfg := config.Defaults()
	cfg.IRPath = writeUnitImpulseIR(t)
	o, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, o.Bank)
	assert.NotNil(t, o.Global)
	assert.NotNil(t, o.Drums)
	assert.NotNil(t, o.Dispatcher)
	assert.Len(t, o.Bank.Voices, cfg.NVoices)
}
