package main

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// frameWriter abstracts the monitor output device so tests can inject a mock.
type frameWriter interface {
	Open() error
	Write(frame []float32) error
	Close() error
}

// realFrameWriter writes blocks to a PortAudio output stream in blocking
// mode, one callback-sized block per Write.
type realFrameWriter struct {
	deviceName string
	stream     *portaudio.Stream
	buf        []float32
}

func newRealFrameWriter(deviceName string) *realFrameWriter {
	return &realFrameWriter{deviceName: deviceName}
}

func (w *realFrameWriter) Open() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	dev, err := findOutputDevice(w.deviceName)
	if err != nil {
		portaudio.Terminate() //nolint:errcheck
		return err
	}
	params := portaudio.LowLatencyParameters(nil, dev)
	params.SampleRate = float64(audioSampleRate)
	params.Output.Channels = audioChannels
	params.FramesPerBuffer = audioFramesPerBuf

	w.buf = make([]float32, audioFramesPerBuf*audioChannels)
	stream, err := portaudio.OpenStream(params, &w.buf)
	if err != nil {
		portaudio.Terminate() //nolint:errcheck
		return fmt.Errorf("portaudio open monitor stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()        //nolint:errcheck
		portaudio.Terminate() //nolint:errcheck
		return fmt.Errorf("portaudio start monitor stream: %w", err)
	}
	w.stream = stream
	log.Printf("monitor: output stream started on %q", dev.Name)
	return nil
}

// Write plays one block. Frames arrive one callback block at a time; a
// short block is zero-padded to the stream's block size.
func (w *realFrameWriter) Write(frame []float32) error {
	n := copy(w.buf, frame)
	for i := n; i < len(w.buf); i++ {
		w.buf[i] = 0
	}
	return w.stream.Write()
}

func (w *realFrameWriter) Close() error {
	var err error
	if w.stream != nil {
		w.stream.Stop() //nolint:errcheck
		err = w.stream.Close()
	}
	portaudio.Terminate() //nolint:errcheck
	return err
}

// MonitorService drains a MonitorSink on a dedicated goroutine and writes
// each frame to the monitor output device. A failed write is logged and the
// loop keeps going — one bad block must not end monitoring for good.
type MonitorService struct {
	writer  frameWriter
	sink    *MonitorSink
	running atomic.Bool
}

// NewMonitorService creates a MonitorService backed by a real PortAudio
// output stream on the named device ("" means system default).
func NewMonitorService(sink *MonitorSink, deviceName string) *MonitorService {
	return &MonitorService{writer: newRealFrameWriter(deviceName), sink: sink}
}

// newMonitorServiceWithWriter wires in a custom writer (tests only).
func newMonitorServiceWithWriter(w frameWriter, sink *MonitorSink) *MonitorService {
	return &MonitorService{writer: w, sink: sink}
}

// Start opens the output device and launches the consumer goroutine. The
// goroutine exits when ctx is cancelled.
func (m *MonitorService) Start(ctx context.Context) error {
	if m.running.Load() {
		return nil
	}
	if err := m.writer.Open(); err != nil {
		return fmt.Errorf("monitor: open: %w", err)
	}
	m.running.Store(true)

	go func() {
		defer func() {
			if err := m.writer.Close(); err != nil {
				log.Printf("monitor: close warning: %v", err)
			}
			m.running.Store(false)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-m.sink.Frames():
				if err := m.writer.Write(frame); err != nil {
					log.Printf("monitor: write failed: %v", err)
				}
			}
		}
	}()
	return nil
}

// IsRunning reports whether the consumer goroutine is active.
func (m *MonitorService) IsRunning() bool {
	return m.running.Load()
}
