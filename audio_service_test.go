package main

import (
	"context"
	"errors"
	"testing"
)

// mockAudioBackend simulates the PortAudio duplex stream without real devices.
// The callback handed to Open is kept so tests can drive blocks through it.
type mockAudioBackend struct {
	opened  bool
	started bool
	stopped bool
	closed  bool
	cb      func(in, out []float32)

	openErr  error
	startErr error
}

func (m *mockAudioBackend) Open(cb func(in, out []float32)) error {
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	m.cb = cb
	return nil
}

func (m *mockAudioBackend) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *mockAudioBackend) Stop() error {
	m.stopped = true
	return nil
}

func (m *mockAudioBackend) Close() error {
	m.closed = true
	return nil
}

func TestAudioServiceStartStop(t *testing.T) {
	b := &mockAudioBackend{}
	s := newAudioServiceWithBackend(b, newTestEngine())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !b.opened || !b.started {
		t.Error("backend not opened+started")
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !b.stopped || !b.closed {
		t.Error("backend not stopped+closed")
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestAudioServiceStartIdempotent(t *testing.T) {
	b := &mockAudioBackend{}
	s := newAudioServiceWithBackend(b, newTestEngine())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	b.opened = false // second Start must not reopen
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if b.opened {
		t.Error("second Start reopened the backend")
	}
}

func TestAudioServiceCallbackDrivesEngine(t *testing.T) {
	e := newTestEngine()
	b := &mockAudioBackend{}
	s := newAudioServiceWithBackend(b, e)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Drive blocks through the callback exactly like the driver would.
	if err := e.StartRecord(); err != nil {
		t.Fatalf("StartRecord: %v", err)
	}
	out := make([]float32, 256)
	b.cb(block(256, 0.3), out)
	b.cb(block(256, 0.3), out)
	if err := e.StopRecord(); err != nil {
		t.Fatalf("StopRecord: %v", err)
	}
	if got := e.LoopFrames(); got != 512 {
		t.Errorf("loop length = %d frames, want 512", got)
	}
}

func TestAudioServiceOpenError(t *testing.T) {
	b := &mockAudioBackend{openErr: errors.New("no such device")}
	s := newAudioServiceWithBackend(b, newTestEngine())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err == nil {
		t.Fatal("Start succeeded with failing backend")
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after failed Start")
	}
}

func TestAudioServiceMicPermissionPassthrough(t *testing.T) {
	b := &mockAudioBackend{openErr: ErrMicPermissionDenied}
	s := newAudioServiceWithBackend(b, newTestEngine())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := s.Start(ctx)
	if !errors.Is(err, ErrMicPermissionDenied) {
		t.Fatalf("Start = %v, want ErrMicPermissionDenied", err)
	}
}

func TestAudioServiceStartErrorClosesBackend(t *testing.T) {
	b := &mockAudioBackend{startErr: errors.New("stream start failed")}
	s := newAudioServiceWithBackend(b, newTestEngine())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err == nil {
		t.Fatal("Start succeeded despite stream start failure")
	}
	if !b.closed {
		t.Error("backend left open after failed stream start")
	}
}

func TestAudioServiceWarningNeverBlocks(t *testing.T) {
	s := newAudioServiceWithBackend(&mockAudioBackend{}, newTestEngine())

	// Way past the channel capacity; must drop, not block, because this is
	// what the callback thread calls.
	for i := 0; i < 100; i++ {
		s.queueWarning("output underflow")
	}
}
