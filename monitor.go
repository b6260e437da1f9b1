package main

import "sync/atomic"

// monitorSinkDepth bounds how many blocks may queue between the audio
// callback and the monitor output consumer (~0.75s at 512-frame blocks).
const monitorSinkDepth = 64

// MonitorSink is the bounded hand-off between the audio callback (producer)
// and the monitor output consumer. Push never blocks: when the consumer
// falls behind, the newest frame is dropped silently — bounded memory and a
// brief monitoring gap beat glitching the loop output.
type MonitorSink struct {
	frames  chan []float32
	dropped atomic.Uint64
}

// NewMonitorSink creates a sink holding at most depth frames.
func NewMonitorSink(depth int) *MonitorSink {
	return &MonitorSink{frames: make(chan []float32, depth)}
}

// Push queues frame for the consumer, dropping it if the sink is full.
func (s *MonitorSink) Push(frame []float32) {
	select {
	case s.frames <- frame:
	default:
		s.dropped.Add(1)
	}
}

// Frames returns the consumer side of the sink. Receives block until a
// frame arrives.
func (s *MonitorSink) Frames() <-chan []float32 {
	return s.frames
}

// Dropped returns how many frames have been discarded on a full sink.
func (s *MonitorSink) Dropped() uint64 {
	return s.dropped.Load()
}
