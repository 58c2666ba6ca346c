// Package teslacoil wires the voice engine, coil bank, convolution engines,
// and audio pipeline into a single start/stop-able unit, adapted from the
// teacher's player.go Start/Stop/Watch lifecycle (an MML player driving an
// ebiten audio.Player) generalized to this module's multi-stage pipeline
// (spec.md §4.7 Orchestrator).
package teslacoil

import (
	"fmt"
	"time"

	"github.com/cbegin/teslacoil-synth/internal/audiogen"
	"github.com/cbegin/teslacoil-synth/internal/coil"
	"github.com/cbegin/teslacoil-synth/internal/config"
	"github.com/cbegin/teslacoil-synth/internal/convolution"
	"github.com/cbegin/teslacoil-synth/internal/drum"
	"github.com/cbegin/teslacoil-synth/internal/errs"
	"github.com/cbegin/teslacoil-synth/internal/framesink"
	"github.com/cbegin/teslacoil-synth/internal/logging"
	"github.com/cbegin/teslacoil-synth/internal/midi"
	"github.com/cbegin/teslacoil-synth/internal/ringfifo"
	"github.com/cbegin/teslacoil-synth/internal/telemetry"
	"github.com/cbegin/teslacoil-synth/internal/voice"
	"github.com/cbegin/teslacoil-synth/internal/voiceengine"
)

// fifoCapacity bounds the input/output ring FIFOs (spec.md §3 MAX_FIFO_SIZE).
// Sized for roughly 100ms of stereo audio at 48kHz, comfortably more than
// one convolution block (2048 frames) so the generator never starves the
// convolver mid-block.
const fifoCapacity = 48000 / 10 * 2

// Orchestrator owns every long-lived component of the pipeline and exposes
// the start()/stop() lifecycle spec.md §4.7 describes.
type Orchestrator struct {
	Bank       *voice.Bank
	Global     *midi.GlobalState
	Drums      *drum.Table
	Counters   *telemetry.Counters
	Dispatcher *midi.Dispatcher

	engine *voiceengine.Engine
	coils  *coil.Bank
	convL  *convolution.Engine
	convR  *convolution.Engine
	input  *ringfifo.FIFO
	output *ringfifo.FIFO
	gen    *audiogen.Generator
	sink   *framesink.EbitenSink

	cfg     config.Config
	log     *logging.RateLimited
	running bool
}

// New constructs every component but does not start the generator thread
// or open the Frame Sink; call Start for that.
func New(cfg config.Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	irHalf, err := convolution.LoadIR(cfg.IRPath)
	if err != nil {
		return nil, err
	}
	convL, err := convolution.NewEngine(irHalf)
	if err != nil {
		return nil, err
	}
	convR, err := convolution.NewEngine(irHalf)
	if err != nil {
		return nil, err
	}

	bank := voice.NewBank(cfg.NVoices)
	global := midi.DefaultGlobalState()
	drums := drum.DefaultTable()
	counts := &telemetry.Counters{}

	coils := coil.NewBank(cfg.NVoices, cfg.RemoveDC)
	input := ringfifo.New(fifoCapacity)
	output := ringfifo.New(fifoCapacity)

	vecfg := voiceengine.DefaultConfig()
	vecfg.FCPU = cfg.FCPU
	vecfg.MinOffTime = cfg.MinOffTime
	vecfg.MinWidth = cfg.MinWidth
	vecfg.MaxWidth = cfg.MaxWidth
	vecfg.AbsolutePulseWidth = cfg.AbsolutePulseWidth
	vecfg.AutoDuck = cfg.AutoDuck
	vecfg.PitchBendRange = cfg.PitchBendRange
	vecfg.ArpeggioLinger = cfg.ArpeggioLinger
	engine := voiceengine.New(bank, global, vecfg, coils)

	now := func() int64 { return time.Now().UnixMilli() }
	dispatcher := midi.NewDispatcher(bank, global, drums, counts, cfg.ArpeggioLinger, now)
	dispatcher.ForceTick = func(now int64) { engine.Tick(now) }

	gen := audiogen.New(coils, convL, convR, input, output,
		float32(cfg.StereoSeparation), float32(cfg.Volume), cfg.FSamp, counts)

	return &Orchestrator{
		Bank: bank, Global: global, Drums: drums, Counters: counts, Dispatcher: dispatcher,
		engine: engine, coils: coils, convL: convL, convR: convR,
		input: input, output: output, gen: gen,
		cfg: cfg, log: logging.NewRateLimited(logging.For("orchestrator"), time.Second),
	}, nil
}

// Start clears the FIFOs, resets the convolvers to zero-state, launches the
// generator thread, opens the Frame Sink, and begins ticking the voice
// engine (spec.md §4.7). Start is callable again after Stop.
func (o *Orchestrator) Start() error {
	if o.running {
		return fmt.Errorf("orchestrator: already running")
	}
	o.input.Reset()
	o.output.Reset()
	o.convL.Reset()
	o.convR.Reset()
	o.coils.Reset()

	source := framesink.NewFIFOSource(o.output, o.Counters)
	sink, err := framesink.Open(o.cfg.FSamp, source)
	if err != nil {
		return errs.WrapConfigError("frame_sink", "failed to open audio device", err)
	}
	o.sink = sink

	// A stopped Generator keeps its stop flag set, so each Start runs a
	// fresh one over the same coils, convolvers, and FIFOs.
	o.gen = audiogen.New(o.coils, o.convL, o.convR, o.input, o.output,
		float32(o.cfg.StereoSeparation), float32(o.cfg.Volume), o.cfg.FSamp, o.Counters)
	go o.gen.Run()
	go o.tickLoop()

	o.running = true
	logging.For("orchestrator").Info("started")
	return nil
}

// tickLoop drives the voice engine at the cadence spec.md §4.1 requires
// (≥1kHz); this emulator-side implementation uses the generator's own
// WakePeriod as its cadence, matching the reference emulator's
// once-per-wake tick call.
func (o *Orchestrator) tickLoop() {
	ticker := time.NewTicker(audiogen.WakePeriod)
	defer ticker.Stop()
	var lastCount uint64
	for range ticker.C {
		if !o.running {
			return
		}
		if !o.engine.Tick(time.Now().UnixMilli()) {
			o.log.Log("voice engine tick skipped: bank mid-update")
			continue
		}
		if count := o.engine.TickCount(); count == lastCount {
			o.log.Log("voice engine tick count did not advance")
		} else {
			lastCount = count
		}
	}
}

// Stop signals the generator thread to exit, joins it, and closes the
// Frame Sink (spec.md §4.7). Idempotent.
func (o *Orchestrator) Stop() error {
	if !o.running {
		return nil
	}
	o.running = false
	o.gen.Stop()
	for o.gen.Running() {
		time.Sleep(time.Millisecond)
	}
	err := o.sink.Close()
	logging.For("orchestrator").Info("stopped")
	return err
}
