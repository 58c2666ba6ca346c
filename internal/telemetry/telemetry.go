// Package telemetry holds lock-free counters for steady-state conditions
// (FIFO underrun/overrun, voice stealing) that degrade gracefully rather
// than surfacing as errors (spec §7).
package telemetry

import "sync/atomic"

// Counters is safe for concurrent use by the generator thread, the frame
// sink, and the MIDI dispatcher simultaneously.
type Counters struct {
	Underruns   atomic.Uint64
	Overruns    atomic.Uint64
	VoiceSteals atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters, useful for logging or
// tests without holding references into the live struct.
type Snapshot struct {
	Underruns   uint64
	Overruns    uint64
	VoiceSteals uint64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Underruns:   c.Underruns.Load(),
		Overruns:    c.Overruns.Load(),
		VoiceSteals: c.VoiceSteals.Load(),
	}
}
