package main

import (
	"fmt"
	"log"

	"github.com/gordonklaus/portaudio"
)

// ListDevices returns the names of available input and output devices.
// PortAudio must already be initialized.
func ListDevices() (inputs, outputs []string, err error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, nil, fmt.Errorf("device list: %w", err)
	}
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			inputs = append(inputs, dev.Name)
		}
		if dev.MaxOutputChannels > 0 {
			outputs = append(outputs, dev.Name)
		}
	}
	return inputs, outputs, nil
}

// findInputDevice resolves a persisted device name to a PortAudio input
// device. An empty name, or a name that no longer exists (an unplugged USB
// mic), falls back to the system default. PortAudio must already be
// initialized.
func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name != "" {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("device list: %w", err)
		}
		for _, dev := range devices {
			if dev.Name == name && dev.MaxInputChannels > 0 {
				return dev, nil
			}
		}
		log.Printf("audio: input device %q not found, using default", name)
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("default input device: %w", err)
	}
	return dev, nil
}

// findOutputDevice is the output-side counterpart of findInputDevice.
func findOutputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name != "" {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("device list: %w", err)
		}
		for _, dev := range devices {
			if dev.Name == name && dev.MaxOutputChannels > 0 {
				return dev, nil
			}
		}
		log.Printf("audio: output device %q not found, using default", name)
	}
	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("default output device: %w", err)
	}
	return dev, nil
}
