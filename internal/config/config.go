// Package config loads and validates the synth's static configuration
// (spec.md §6's configuration table) via Viper, layering defaults, an
// optional config file, environment variables, and CLI flags. Grounded on
// opd-ai-violence's viper usage (the only pack repo depending on it
// directly) since no example repo applies Viper in this exact domain.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/cbegin/teslacoil-synth/internal/errs"
)

// Config holds every statically-knowable value spec.md §6 names, plus the
// IR file path and ambient log level.
type Config struct {
	FSamp            int
	FramesPerBuffer  int
	Channels         int
	IRLength         int
	NVoices          int
	MaxArpNotes      int
	PitchBendRange   float64
	ArpeggioLinger   int64
	AbsolutePulseWidth bool
	AutoDuck         bool
	RemoveDC         bool
	StereoSeparation float64
	Volume           float64

	FCPU       uint32
	MinOffTime uint32
	MinWidth   uint32
	MaxWidth   uint32

	IRPath   string
	LogLevel string
}

// Defaults returns the built-in fallback values, applied before any file,
// environment, or flag layer.
func Defaults() Config {
	return Config{
		FSamp:              48000,
		FramesPerBuffer:    128,
		Channels:           2,
		IRLength:           4096,
		NVoices:            6,
		MaxArpNotes:        8,
		PitchBendRange:     2,
		ArpeggioLinger:     80,
		AbsolutePulseWidth: false,
		AutoDuck:           true,
		RemoveDC:           false,
		StereoSeparation:   0.4,
		Volume:             0.8,
		FCPU:               16_000_000,
		MinOffTime:         20,
		MinWidth:           4,
		MaxWidth:           2000,
		IRPath:             "",
		LogLevel:           "info",
	}
}

// Load builds a Viper instance layered defaults -> file -> environment
// (TESLACOIL_ prefixed) -> nothing yet for flags (the CLI entry point binds
// flags into the same Viper instance before calling Load, per the urfave/cli
// wiring in cmd/teslacoilsynth). configPath may be empty to skip the file
// layer.
func Load(v *viper.Viper, configPath string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	d := Defaults()
	v.SetDefault("f_samp", d.FSamp)
	v.SetDefault("frames_per_buffer", d.FramesPerBuffer)
	v.SetDefault("channels", d.Channels)
	v.SetDefault("ir_length", d.IRLength)
	v.SetDefault("nvoices", d.NVoices)
	v.SetDefault("max_arp_notes", d.MaxArpNotes)
	v.SetDefault("pitch_bend_range", d.PitchBendRange)
	v.SetDefault("arpeggio_linger", d.ArpeggioLinger)
	v.SetDefault("absolute_pulse_width", d.AbsolutePulseWidth)
	v.SetDefault("autoduck", d.AutoDuck)
	v.SetDefault("remove_dc", d.RemoveDC)
	v.SetDefault("stereo_separation", d.StereoSeparation)
	v.SetDefault("volume", d.Volume)
	v.SetDefault("f_cpu", d.FCPU)
	v.SetDefault("min_off_time", d.MinOffTime)
	v.SetDefault("min_width", d.MinWidth)
	v.SetDefault("max_width", d.MaxWidth)
	v.SetDefault("ir_path", d.IRPath)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix("teslacoil")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errs.WrapConfigError("file", "failed to read config file", err)
		}
	}

	cfg := Config{
		FSamp:              v.GetInt("f_samp"),
		FramesPerBuffer:    v.GetInt("frames_per_buffer"),
		Channels:           v.GetInt("channels"),
		IRLength:           v.GetInt("ir_length"),
		NVoices:            v.GetInt("nvoices"),
		MaxArpNotes:        v.GetInt("max_arp_notes"),
		PitchBendRange:     v.GetFloat64("pitch_bend_range"),
		ArpeggioLinger:     v.GetInt64("arpeggio_linger"),
		AbsolutePulseWidth: v.GetBool("absolute_pulse_width"),
		AutoDuck:           v.GetBool("autoduck"),
		RemoveDC:           v.GetBool("remove_dc"),
		StereoSeparation:   v.GetFloat64("stereo_separation"),
		Volume:             v.GetFloat64("volume"),
		FCPU:               uint32(v.GetInt64("f_cpu")),
		MinOffTime:         uint32(v.GetInt("min_off_time")),
		MinWidth:           uint32(v.GetInt("min_width")),
		MaxWidth:           uint32(v.GetInt("max_width")),
		IRPath:             v.GetString("ir_path"),
		LogLevel:           v.GetString("log_level"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces spec.md §6's fixed-value constraints, returning a
// *errs.ConfigError describing the first violation found.
func (c Config) Validate() error {
	if c.Channels != 2 {
		return errs.NewConfigError("channels", "must be exactly 2 (stereo)")
	}
	if c.IRLength <= 0 || c.IRLength&(c.IRLength-1) != 0 {
		return errs.NewConfigError("ir_length", "must be a power of two")
	}
	if c.FSamp <= 0 {
		return errs.NewConfigError("f_samp", "must be positive")
	}
	if c.NVoices <= 0 {
		return errs.NewConfigError("nvoices", "must be positive")
	}
	if c.MaxArpNotes <= 0 {
		return errs.NewConfigError("max_arp_notes", "must be positive")
	}
	if c.IRPath == "" {
		return errs.NewConfigError("ir_path", "must name an impulse response file")
	}
	return nil
}
