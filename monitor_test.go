package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMonitorSinkDropsWhenFull(t *testing.T) {
	s := NewMonitorSink(2)
	s.Push([]float32{1})
	s.Push([]float32{2})
	s.Push([]float32{3}) // full: dropped, must not block

	if got := s.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
	if f := <-s.Frames(); f[0] != 1 {
		t.Errorf("first frame = %f, want 1", f[0])
	}
	if f := <-s.Frames(); f[0] != 2 {
		t.Errorf("second frame = %f, want 2", f[0])
	}
	select {
	case f := <-s.Frames():
		t.Errorf("unexpected third frame %v", f)
	default:
	}
}

// mockFrameWriter records frames and can fail selected writes.
type mockFrameWriter struct {
	mu       sync.Mutex
	opened   bool
	closed   bool
	frames   [][]float32
	failNext bool
}

func (w *mockFrameWriter) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened = true
	return nil
}

func (w *mockFrameWriter) Write(frame []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, frame)
	if w.failNext {
		w.failNext = false
		return errors.New("device gone")
	}
	return nil
}

func (w *mockFrameWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *mockFrameWriter) frameCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func TestMonitorServiceDrainsSink(t *testing.T) {
	sink := NewMonitorSink(8)
	w := &mockFrameWriter{}
	m := newMonitorServiceWithWriter(w, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}

	sink.Push([]float32{0.1})
	sink.Push([]float32{0.2})
	waitFor(t, func() bool { return w.frameCount() == 2 })
}

func TestMonitorServiceSurvivesWriteError(t *testing.T) {
	sink := NewMonitorSink(8)
	w := &mockFrameWriter{failNext: true}
	m := newMonitorServiceWithWriter(w, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sink.Push([]float32{0.1}) // this write fails
	sink.Push([]float32{0.2}) // this one must still happen
	waitFor(t, func() bool { return w.frameCount() == 2 })
	if !m.IsRunning() {
		t.Error("service stopped after a single write error")
	}
}

func TestMonitorServiceStopsOnCancel(t *testing.T) {
	sink := NewMonitorSink(8)
	w := &mockFrameWriter{}
	m := newMonitorServiceWithWriter(w, sink)

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	waitFor(t, func() bool { return !m.IsRunning() })

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if !closed {
		t.Error("writer not closed after cancel")
	}
}
