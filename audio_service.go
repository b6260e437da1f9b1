package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// ErrMicPermissionDenied is returned when macOS has denied microphone access.
var ErrMicPermissionDenied = errors.New("microphone access denied — enable in System Settings → Privacy → Microphone")

const (
	audioSampleRate   = 44100 // Hz
	audioChannels     = 1     // mono
	audioFramesPerBuf = 512   // frames per callback block (~11.6ms)
)

// audioBackend abstracts the real PortAudio duplex stream.
// Allows unit tests to inject a mock without real devices.
type audioBackend interface {
	Open(cb func(in, out []float32)) error
	Start() error
	Stop() error
	Close() error
}

// realAudioBackend wraps gordonklaus/portaudio for production use: one
// duplex stream from the mic to the loop output device, running the engine
// callback once per block. Driver-reported overruns/underruns are forwarded
// through warn — a non-blocking hand-off, since the callback thread must
// never log or print directly.
type realAudioBackend struct {
	inputName  string
	outputName string
	warn       func(string)
	stream     *portaudio.Stream
}

func newRealAudioBackend(inputName, outputName string, warn func(string)) *realAudioBackend {
	return &realAudioBackend{inputName: inputName, outputName: outputName, warn: warn}
}

func (r *realAudioBackend) Open(cb func(in, out []float32)) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}

	if inputs, outputs, err := ListDevices(); err == nil {
		log.Printf("audio: %d input / %d output devices available", len(inputs), len(outputs))
	}

	inDev, err := findInputDevice(r.inputName)
	if err != nil {
		portaudio.Terminate() //nolint:errcheck
		return err
	}
	outDev, err := findOutputDevice(r.outputName)
	if err != nil {
		portaudio.Terminate() //nolint:errcheck
		return err
	}

	params := portaudio.LowLatencyParameters(inDev, outDev)
	params.SampleRate = float64(audioSampleRate)
	params.Input.Channels = audioChannels
	params.Output.Channels = audioChannels
	params.FramesPerBuffer = audioFramesPerBuf

	stream, err := portaudio.OpenStream(params,
		func(in, out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			if flags&portaudio.InputOverflow != 0 {
				r.warn("input overflow")
			}
			if flags&portaudio.OutputUnderflow != 0 {
				r.warn("output underflow")
			}
			cb(in, out)
		})
	if err != nil {
		portaudio.Terminate() //nolint:errcheck
		// Detect macOS microphone permission denial.
		errStr := strings.ToLower(err.Error())
		if strings.Contains(errStr, "denied") ||
			strings.Contains(errStr, "device unavailable") ||
			strings.Contains(errStr, "unauthorized") {
			return ErrMicPermissionDenied
		}
		return fmt.Errorf("portaudio open stream: %w", err)
	}
	r.stream = stream
	log.Printf("audio: duplex stream %q -> %q", inDev.Name, outDev.Name)
	return nil
}

func (r *realAudioBackend) Start() error {
	if err := r.stream.Start(); err != nil {
		return fmt.Errorf("portaudio start stream: %w", err)
	}
	return nil
}

func (r *realAudioBackend) Stop() error {
	if err := r.stream.Stop(); err != nil {
		return fmt.Errorf("portaudio stop stream: %w", err)
	}
	return nil
}

func (r *realAudioBackend) Close() error {
	err := r.stream.Close()
	portaudio.Terminate() //nolint:errcheck
	return err
}

// AudioService owns the duplex mic→loop-output stream and runs the engine's
// Process callback on it for the life of the stream. Driver warnings are
// queued by the callback thread and logged by a separate goroutine.
type AudioService struct {
	backend audioBackend
	engine  *Engine
	running atomic.Bool
	warnCh  chan string
}

// NewAudioService creates an AudioService backed by the real PortAudio API.
// Device names come from config; "" selects the system default.
func NewAudioService(engine *Engine, inputName, outputName string) *AudioService {
	s := &AudioService{
		engine: engine,
		warnCh: make(chan string, 8),
	}
	s.backend = newRealAudioBackend(inputName, outputName, s.queueWarning)
	return s
}

// newAudioServiceWithBackend creates an AudioService with injectable backend
// (for tests).
func newAudioServiceWithBackend(b audioBackend, engine *Engine) *AudioService {
	return &AudioService{backend: b, engine: engine, warnCh: make(chan string, 8)}
}

// queueWarning records a driver status without blocking or logging on the
// callback thread. Dropped when the channel is full.
func (s *AudioService) queueWarning(msg string) {
	select {
	case s.warnCh <- msg:
	default:
	}
}

// Start opens and starts the duplex stream. The stream runs until Stop; the
// warning logger goroutine exits when ctx is cancelled.
func (s *AudioService) Start(ctx context.Context) error {
	if s.running.Load() {
		return nil
	}

	if err := s.backend.Open(s.engine.Process); err != nil {
		if errors.Is(err, ErrMicPermissionDenied) {
			return ErrMicPermissionDenied
		}
		return fmt.Errorf("audio: open: %w", err)
	}
	if err := s.backend.Start(); err != nil {
		s.backend.Close() //nolint:errcheck
		return fmt.Errorf("audio: start: %w", err)
	}
	s.running.Store(true)
	log.Printf("audio: stream started @ %dHz, %d-frame blocks", audioSampleRate, audioFramesPerBuf)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-s.warnCh:
				log.Printf("audio: driver status: %s", msg)
			}
		}
	}()

	return nil
}

// Stop halts and closes the stream.
func (s *AudioService) Stop() error {
	if !s.running.Load() {
		return nil
	}
	if err := s.backend.Stop(); err != nil {
		return fmt.Errorf("audio: stop: %w", err)
	}
	if err := s.backend.Close(); err != nil {
		log.Printf("audio: close warning: %v", err)
	}
	s.running.Store(false)
	log.Printf("audio: stream stopped")
	return nil
}

// IsRunning reports whether the duplex stream is active.
func (s *AudioService) IsRunning() bool {
	return s.running.Load()
}
