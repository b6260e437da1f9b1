package main

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Transition errors reported by the engine's control operations.
// None of them are fatal — the engine stays in a well-defined state.
var (
	ErrAlreadyRecording    = errors.New("engine: already recording")
	ErrNotRecording        = errors.New("engine: not recording")
	ErrNoCapturedAudio     = errors.New("engine: no audio captured")
	ErrPauseWhileRecording = errors.New("engine: cannot pause while recording")
)

// Mode is the engine's state as seen by the control surface, derived from
// the recording/playing flags and whether a loop is materialized.
type Mode int

const (
	ModeIdle Mode = iota
	ModeRecording
	ModePlaying
	ModePaused
)

func (m Mode) String() string {
	switch m {
	case ModeRecording:
		return "recording"
	case ModePlaying:
		return "playing"
	case ModePaused:
		return "paused"
	default:
		return "idle"
	}
}

// Engine owns the loop state shared between the real-time audio callback and
// the control surface: the materialized loop, the playback cursor, the
// capture queue filled mid-record, and the monitor hand-off. Control
// operations (ToggleRecord, Reset, TogglePause, ToggleMonitor, RecordFor) run
// on hotkey/tray goroutines; Process runs on the driver's callback thread.
//
// The recording/playing/monitor flags are lock-free atomics — transitions are
// rare relative to the block rate. Only the loop slice and cursor share a
// mutex, held for the duration of one block copy and never across I/O.
type Engine struct {
	mu     sync.Mutex // guards loop + cursor
	loop   []float32  // interleaved frames; replaced wholesale, never edited
	cursor int        // next frame to emit, in [0, loopFrames)

	capture *captureQueue
	monitor *MonitorSink

	recording atomic.Bool
	playing   atomic.Bool
	monitorOn atomic.Bool

	// recordGen is bumped on every StartRecord and Reset. A timed stop
	// scheduled by RecordFor only fires if the generation it captured is
	// still current, so a manual stop or a newer session supersedes it.
	recordGen atomic.Uint64

	sampleRate int
	channels   int
}

// NewEngine creates an idle engine with no loop materialized.
func NewEngine(sampleRate, channels int) *Engine {
	return &Engine{
		capture:    newCaptureQueue(),
		monitor:    NewMonitorSink(monitorSinkDepth),
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Monitor returns the sink the monitor output consumer should drain.
func (e *Engine) Monitor() *MonitorSink { return e.monitor }

// Process is the real-time audio callback body. It must return before the
// next block is due: no logging, no blocking sends, no long critical
// sections. in and out hold len/channels frames of interleaved float32.
//
// Recording captures the input and emits silence (no feedback into the loop
// output). Playing reads the loop at the cursor with wraparound and, when
// monitoring, pushes loop+input mixed — deliberately unclamped, clipping is
// the performer's signal that inputs are overdriven. Anything else is
// listen-through.
func (e *Engine) Process(in, out []float32) {
	if e.recording.Load() {
		e.capture.Push(in)
		for i := range out {
			out[i] = 0
		}
		return
	}
	if e.playing.Load() && e.readLoop(out) {
		if e.monitorOn.Load() {
			mixed := make([]float32, len(out))
			for i := range out {
				mixed[i] = out[i] + in[i]
			}
			e.monitor.Push(mixed)
		}
		return
	}
	// Idle, paused, or playing with an empty loop: pass input through.
	copy(out, in)
	if e.monitorOn.Load() {
		frame := make([]float32, len(in))
		copy(frame, in)
		e.monitor.Push(frame)
	}
}

// readLoop fills out with samples starting at the playback cursor, wrapping
// at the loop boundary, and advances the cursor modulo the loop length.
// Returns false when no loop is materialized.
func (e *Engine) readLoop(out []float32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	frames := len(e.loop) / e.channels
	if frames == 0 {
		return false
	}
	n := len(out) / e.channels
	for copied := 0; copied < n; {
		take := frames - e.cursor
		if take > n-copied {
			take = n - copied
		}
		copy(out[copied*e.channels:(copied+take)*e.channels],
			e.loop[e.cursor*e.channels:(e.cursor+take)*e.channels])
		copied += take
		e.cursor = (e.cursor + take) % frames
	}
	return true
}

// ToggleRecord is the single record control: start when idle, materialize
// and play when recording. Transition failures are logged, not returned —
// this is the hotkey/tray entry point.
func (e *Engine) ToggleRecord() {
	if e.recording.Load() {
		if err := e.StopRecord(); err != nil {
			log.Printf("engine: stop record: %v", err)
		}
	} else {
		if err := e.StartRecord(); err != nil {
			log.Printf("engine: start record: %v", err)
		}
	}
}

// StartRecord switches the engine into recording: playback is forced off and
// leftovers from an aborted session are discarded. Calling it while already
// recording returns ErrAlreadyRecording and keeps the current session's
// captured frames intact.
func (e *Engine) StartRecord() error {
	if e.recording.Load() {
		return ErrAlreadyRecording
	}
	e.playing.Store(false)
	e.capture.DrainAll()
	e.recordGen.Add(1)
	e.recording.Store(true)
	log.Printf("engine: recording started")
	return nil
}

// StopRecord ends the recording session and materializes the captured blocks
// into a new loop: the old loop is replaced wholesale under the lock, the
// cursor rewinds to 0, and playback starts. With nothing captured the engine
// falls back to idle and returns ErrNoCapturedAudio.
//
// The compare-and-swap makes a second stop — typically a timed stop firing
// after a manual one — a guaranteed no-op.
func (e *Engine) StopRecord() error {
	if !e.recording.CompareAndSwap(true, false) {
		return ErrNotRecording
	}
	blocks, samples := e.capture.DrainAll()
	if samples == 0 {
		return ErrNoCapturedAudio
	}
	loop := make([]float32, 0, samples)
	for _, b := range blocks {
		loop = append(loop, b...)
	}
	e.mu.Lock()
	e.loop = loop
	e.cursor = 0
	e.mu.Unlock()
	e.playing.Store(true)
	log.Printf("engine: recording stopped — loop %.2fs", e.LoopDuration().Seconds())
	return nil
}

// Reset is absorbing: from any state back to idle with no loop, no pending
// capture, cursor at 0.
func (e *Engine) Reset() {
	e.recording.Store(false)
	e.playing.Store(false)
	e.recordGen.Add(1)
	e.capture.DrainAll()
	e.mu.Lock()
	e.loop = nil
	e.cursor = 0
	e.mu.Unlock()
	log.Printf("engine: loop reset")
}

// TogglePause flips playback on or off. Refused while recording.
func (e *Engine) TogglePause() error {
	if e.recording.Load() {
		return ErrPauseWhileRecording
	}
	resumed := !e.playing.Load()
	e.playing.Store(resumed)
	if resumed {
		log.Printf("engine: playback resumed")
	} else {
		log.Printf("engine: playback paused")
	}
	return nil
}

// ToggleMonitor flips live monitoring. Orthogonal to record/playback state.
func (e *Engine) ToggleMonitor() bool {
	on := !e.monitorOn.Load()
	e.monitorOn.Store(on)
	if on {
		log.Printf("engine: monitor enabled")
	} else {
		log.Printf("engine: monitor disabled")
	}
	return on
}

// RecordFor starts a recording session that stops itself after d, as if the
// record toggle had been pressed. A manual stop (or reset, or a newer
// session) before the timer fires supersedes it: the deferred stop is keyed
// to the session generation and StopRecord's own guard absorbs the rest.
func (e *Engine) RecordFor(d time.Duration) error {
	if e.recording.Load() {
		return ErrAlreadyRecording
	}
	if err := e.StartRecord(); err != nil {
		return err
	}
	gen := e.recordGen.Load()
	log.Printf("engine: timed recording for %v", d)
	time.AfterFunc(d, func() {
		if e.recordGen.Load() != gen {
			return
		}
		if err := e.StopRecord(); err != nil && !errors.Is(err, ErrNotRecording) {
			log.Printf("engine: timed stop: %v", err)
		}
	})
	return nil
}

// Recording reports whether a recording session is active.
func (e *Engine) Recording() bool { return e.recording.Load() }

// Playing reports whether loop playback is active.
func (e *Engine) Playing() bool { return e.playing.Load() }

// MonitorEnabled reports whether live monitoring is on.
func (e *Engine) MonitorEnabled() bool { return e.monitorOn.Load() }

// Mode derives the engine's user-facing state.
func (e *Engine) Mode() Mode {
	switch {
	case e.recording.Load():
		return ModeRecording
	case e.playing.Load() && e.LoopFrames() > 0:
		return ModePlaying
	case e.LoopFrames() > 0:
		return ModePaused
	default:
		return ModeIdle
	}
}

// LoopFrames returns the materialized loop length in frames.
func (e *Engine) LoopFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.loop) / e.channels
}

// LoopDuration returns the materialized loop length as wall time.
func (e *Engine) LoopDuration() time.Duration {
	return time.Duration(float64(e.LoopFrames()) / float64(e.sampleRate) * float64(time.Second))
}

// LoopSnapshot returns a copy of the current loop's samples. Safe to consume
// while playback continues off the in-memory loop.
func (e *Engine) LoopSnapshot() []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.loop) == 0 {
		return nil
	}
	cp := make([]float32, len(e.loop))
	copy(cp, e.loop)
	return cp
}
