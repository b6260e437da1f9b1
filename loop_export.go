package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrEmptyLoop is returned when there is no materialized loop to export.
var ErrEmptyLoop = errors.New("export: no loop to save")

// ExportLoopWAV writes the engine's current loop to a 16-bit PCM WAV file.
// The snapshot is taken under the buffer lock and playback keeps running off
// the in-memory loop; the file is a copy, never the authoritative store.
// Samples are clamped to [-1, 1] at the disk boundary only — the live mix
// stays unclamped.
func ExportLoopWAV(e *Engine, path string) error {
	samples := e.LoopSnapshot()
	if len(samples) == 0 {
		return ErrEmptyLoop
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, audioSampleRate, 16, audioChannels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: audioChannels,
			SampleRate:  audioSampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		enc.Close() //nolint:errcheck
		return fmt.Errorf("export: write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("export: finalize: %w", err)
	}
	return nil
}
