// Command teslacoilsynth runs the Tesla Coil MIDI Synth emulator: it loads
// configuration, opens the audio pipeline, and keeps it running until
// interrupted. Flag/action shape grounded on valerio-go-jeebie's
// cmd/jeebie/main.go urfave/cli usage, adapted from v1 to v2.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	teslacoil "github.com/cbegin/teslacoil-synth"
	"github.com/cbegin/teslacoil-synth/internal/config"
	"github.com/cbegin/teslacoil-synth/internal/logging"
)

func main() {
	app := &cli.App{
		Name:  "teslacoilsynth",
		Usage: "polyphonic Tesla-coil MIDI synth emulator",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ir", Usage: "path to the impulse response file", Required: true},
			&cli.StringFlag{Name: "config", Usage: "path to an optional config file (TOML/YAML/JSON)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, or error", Value: "info"},
			&cli.IntFlag{Name: "nvoices", Usage: "polyphony count", Value: 6},
			&cli.IntFlag{Name: "sample-rate", Usage: "output sample rate", Value: 48000},
			&cli.Float64Flag{Name: "volume", Usage: "master output volume, 0-1", Value: 0.8},
			&cli.Float64Flag{Name: "stereo-separation", Usage: "stereo pan spread, 0-1", Value: 0.4},
			&cli.BoolFlag{Name: "autoduck", Usage: "enable dynamic gain ducking", Value: true},
			&cli.BoolFlag{Name: "remove-dc", Usage: "enable per-coil DC-baseline removal", Value: false},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logging.SetLevel(c.String("log-level"))

	v := viper.New()
	v.Set("ir_path", c.String("ir"))
	v.Set("log_level", c.String("log-level"))
	v.Set("nvoices", c.Int("nvoices"))
	v.Set("f_samp", c.Int("sample-rate"))
	v.Set("volume", c.Float64("volume"))
	v.Set("stereo_separation", c.Float64("stereo-separation"))
	v.Set("autoduck", c.Bool("autoduck"))
	v.Set("remove_dc", c.Bool("remove-dc"))

	cfg, err := config.Load(v, c.String("config"))
	if err != nil {
		return err
	}

	orch, err := teslacoil.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to build synth: %w", err)
	}
	if err := orch.Start(); err != nil {
		return fmt.Errorf("failed to start synth: %w", err)
	}

	logging.For("main").Info("teslacoilsynth running, press ctrl-c to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	stopErr := orch.Stop()

	snap := orch.Counters.Snapshot()
	fmt.Printf("underruns=%d overruns=%d voice_steals=%d\n",
		snap.Underruns, snap.Overruns, snap.VoiceSteals)

	return stopErr
}
