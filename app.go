package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// App wires the engine to its collaborators: the duplex audio stream, the
// monitor output consumer, the global hotkeys, config persistence, and the
// tray menu. The engine itself stays free of device and UI concerns.
type App struct {
	mu         sync.Mutex
	cfg        Config
	cfgSvc     *ConfigService
	engine     *Engine
	audio      *AudioService
	monitor    *MonitorService
	hotkeys    *HotkeyService
	loginItems *LoginItemService
	cancel     context.CancelFunc
	stopOnce   sync.Once
}

// NewApp loads config and builds the service graph. Nothing touches real
// devices until Start.
func NewApp() *App {
	cfgSvc := NewConfigService()
	cfg := cfgSvc.Load()
	engine := NewEngine(audioSampleRate, audioChannels)

	loginItems, err := NewLoginItemService()
	if err != nil {
		log.Printf("warning: failed to create LoginItemService: %v", err)
	}

	return &App{
		cfg:        cfg,
		cfgSvc:     cfgSvc,
		engine:     engine,
		audio:      NewAudioService(engine, cfg.InputDevice, cfg.LoopDevice),
		monitor:    NewMonitorService(engine.Monitor(), cfg.MonitorDevice),
		hotkeys:    NewHotkeyService(),
		loginItems: loginItems,
	}
}

// Engine exposes the looper engine to the tray menu.
func (a *App) Engine() *Engine { return a.engine }

// Config returns the active configuration.
func (a *App) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Start opens the duplex stream, starts the monitor consumer, and registers
// the global hotkeys. The duplex stream is required; a missing monitor
// device or a taken hotkey degrades gracefully.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.audio.Start(ctx); err != nil {
		cancel()
		return err
	}
	if err := a.monitor.Start(ctx); err != nil {
		log.Printf("monitor: unavailable: %v", err)
	}

	cfg := a.Config()
	bindings := []struct {
		name  string
		combo string
		fn    func()
	}{
		{"record", cfg.RecordKey, a.engine.ToggleRecord},
		{"reset", cfg.ResetKey, a.engine.Reset},
		{"pause", cfg.PauseKey, func() {
			if err := a.engine.TogglePause(); err != nil {
				log.Printf("engine: pause: %v", err)
			}
		}},
		{"timed", cfg.TimedKey, a.TimedRecord},
	}
	for _, b := range bindings {
		if err := a.hotkeys.Bind(b.name, b.combo, b.fn); err != nil {
			log.Printf("hotkey: %v", err)
		}
	}
	return a.hotkeys.Start(ctx)
}

// TimedRecord starts a recording session that stops itself after the
// configured duration.
func (a *App) TimedRecord() {
	d := time.Duration(a.Config().TimedRecordMs) * time.Millisecond
	if err := a.engine.RecordFor(d); err != nil {
		log.Printf("engine: timed record: %v", err)
	}
}

// SaveLoop exports the current loop to a timestamped WAV file under
// ~/.loopy-looper/loops and returns its path.
func (a *App) SaveLoop() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".loopy-looper", "loops")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, time.Now().Format("loop_2006-01-02_15-04-05.wav"))
	if err := ExportLoopWAV(a.engine, path); err != nil {
		return "", err
	}
	log.Printf("export: loop saved to %s", path)
	return path, nil
}

// ReloadConfig re-reads config.json and re-binds any hotkey that changed,
// the tray-app stand-in for the original settings window's Apply button.
// Device changes still need a restart; only key bindings apply live.
func (a *App) ReloadConfig() {
	fresh := a.cfgSvc.Load()
	a.mu.Lock()
	old := a.cfg
	a.cfg = fresh
	a.mu.Unlock()

	rebinds := []struct{ name, oldCombo, newCombo string }{
		{"record", old.RecordKey, fresh.RecordKey},
		{"reset", old.ResetKey, fresh.ResetKey},
		{"pause", old.PauseKey, fresh.PauseKey},
		{"timed", old.TimedKey, fresh.TimedKey},
	}
	for _, r := range rebinds {
		if r.oldCombo == r.newCombo {
			continue
		}
		if err := a.hotkeys.Rebind(r.name, r.newCombo); err != nil {
			log.Printf("hotkey: rebind %s: %v", r.name, err)
		}
	}
	log.Printf("config: reloaded")
}

// Status returns the line shown in the tray tooltip.
func (a *App) Status() string {
	switch a.engine.Mode() {
	case ModeRecording:
		return "recording…"
	case ModePlaying:
		return fmt.Sprintf("playing %.2fs loop", a.engine.LoopDuration().Seconds())
	case ModePaused:
		return fmt.Sprintf("paused (%.2fs loop)", a.engine.LoopDuration().Seconds())
	default:
		return "idle — press " + FormatHotkey(a.Config().RecordKey) + " to record"
	}
}

// Shutdown persists config and tears the services down. Safe to call more
// than once.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		if err := a.cfgSvc.Save(a.Config()); err != nil {
			log.Printf("config: save on exit: %v", err)
		}
		a.hotkeys.Stop()
		if a.cancel != nil {
			a.cancel()
		}
		if err := a.audio.Stop(); err != nil {
			log.Printf("audio: %v", err)
		}
		log.Printf("app: shut down")
	})
}

// GetLaunchAtLogin reports whether the app is registered as a login item.
func (a *App) GetLaunchAtLogin() bool {
	if a.loginItems == nil {
		return false
	}
	return a.loginItems.IsEnabled()
}

// SetLaunchAtLogin enables or disables the launch-at-login login item.
func (a *App) SetLaunchAtLogin(enabled bool) error {
	if a.loginItems == nil {
		return nil
	}
	if enabled {
		execPath, err := os.Executable()
		if err != nil {
			return err
		}
		return a.loginItems.Enable(execPath)
	}
	return a.loginItems.Disable()
}
