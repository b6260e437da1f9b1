package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.design/x/hotkey"
)

// ErrHotkeyConflict is returned when a hotkey is already registered by another app.
var ErrHotkeyConflict = errors.New("hotkey: key combination already registered by another application")

// ErrHotkeyInvalid is returned when a hotkey string cannot be parsed.
var ErrHotkeyInvalid = errors.New("hotkey: invalid key combination")

// ErrHotkeyUnknown is returned when Rebind names a binding that doesn't exist.
var ErrHotkeyUnknown = errors.New("hotkey: unknown binding")

// hotkeyBackend abstracts the real hotkey implementation so tests can use a mock.
type hotkeyBackend interface {
	Register() error
	Unregister() error
	Keydown() <-chan struct{}
}

// realHotkeyBackend wraps golang.design/x/hotkey for production use.
// The hotkey.Hotkey is created lazily in Register() to avoid spawning CGo
// goroutines at construction time — which would leak into unit tests.
type realHotkeyBackend struct {
	hk        *hotkey.Hotkey
	mods      []hotkey.Modifier
	key       hotkey.Key
	keyCh     chan struct{} // buffered relay; filled once in Register()
	closeOnce sync.Once     // guards close(keyCh) to prevent double-close panic
}

func newRealBackendFromCombo(combo string) (*realHotkeyBackend, error) {
	mods, key, err := parseHotkey(combo)
	if err != nil {
		return nil, err
	}
	return &realHotkeyBackend{mods: mods, key: key}, nil
}

func (r *realHotkeyBackend) Register() error {
	r.hk = hotkey.New(r.mods, r.key)
	if err := r.hk.Register(); err != nil {
		// Clean up any CGo/OS-level state created by hotkey.New() to prevent
		// goroutine leaks and panics when the abandoned object is GC'd.
		_ = r.hk.Unregister()
		r.hk = nil
		return ErrHotkeyConflict
	}
	// Create a buffered relay channel and pump events into it.
	// This goroutine owns the hk.Keydown() read loop; it exits when hk channel closes.
	r.keyCh = make(chan struct{}, 4)
	src := r.hk.Keydown()
	go func() {
		for range src {
			select {
			case r.keyCh <- struct{}{}:
			default: // drop if buffer full (rapid presses)
			}
		}
		r.closeOnce.Do(func() { close(r.keyCh) })
	}()
	return nil
}

func (r *realHotkeyBackend) Unregister() error {
	if r.hk == nil {
		return nil
	}
	return r.hk.Unregister()
}

// Keydown returns the relay channel. No goroutine spawned here.
func (r *realHotkeyBackend) Keydown() <-chan struct{} {
	return r.keyCh
}

// binding is one named hotkey → action pair (record, reset, pause, timed).
type binding struct {
	name      string
	combo     string
	backend   hotkeyBackend
	onTrigger func()
	cancel    context.CancelFunc
	doneCh    chan struct{} // closed when the listen goroutine exits
}

// HotkeyService manages the looper's global hotkey set. Bindings are
// declared with Bind before Start registers them all; Rebind swaps a single
// binding's key at runtime without touching the others.
type HotkeyService struct {
	mu             sync.Mutex
	bindings       map[string]*binding
	parentCtx      context.Context
	shuttingDown   atomic.Bool // set during app quit; defers skip CGo Unregister
	started        bool
	backendFactory func(string) (hotkeyBackend, error)
}

// NewHotkeyService creates a HotkeyService backed by the real OS hotkey API.
func NewHotkeyService() *HotkeyService {
	return &HotkeyService{
		bindings: make(map[string]*binding),
		backendFactory: func(c string) (hotkeyBackend, error) {
			return newRealBackendFromCombo(c)
		},
	}
}

// newHotkeyServiceWithFactory creates a HotkeyService with a custom backend
// factory (for tests).
func newHotkeyServiceWithFactory(f func(string) (hotkeyBackend, error)) *HotkeyService {
	return &HotkeyService{bindings: make(map[string]*binding), backendFactory: f}
}

// Bind declares a named hotkey. Must be called before Start; the combo is
// parse-checked immediately so a bad config key fails fast.
func (s *HotkeyService) Bind(name, combo string, onTrigger func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backend, err := s.backendFactory(combo)
	if err != nil {
		return fmt.Errorf("%w (%s: %q)", err, name, combo)
	}
	s.bindings[name] = &binding{
		name:      name,
		combo:     combo,
		backend:   backend,
		onTrigger: onTrigger,
	}
	return nil
}

// Start registers every declared binding and launches one listener goroutine
// per key. A binding whose key is taken by another app is logged and
// skipped; the rest stay live. Goroutines exit when ctx is cancelled.
func (s *HotkeyService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.parentCtx = ctx
	s.started = true
	for _, b := range s.bindings {
		if err := b.backend.Register(); err != nil {
			log.Printf("hotkey: %s (%s) unavailable: %v", b.combo, b.name, err)
			continue
		}
		s.listen(ctx, b)
		log.Printf("hotkey: %s registered (%s)", b.combo, b.name)
	}
	return nil
}

// listen spawns the goroutine that relays keydown events to the binding's
// action. Caller holds s.mu.
func (s *HotkeyService) listen(ctx context.Context, b *binding) {
	listenCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	doneCh := make(chan struct{})
	b.doneCh = doneCh
	backend := b.backend // capture NOW — a Rebind swap must not affect this defer
	combo := b.combo
	trigger := b.onTrigger
	keydown := backend.Keydown()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("hotkey: recovered panic during cleanup (CGo/shutdown race): %v", r)
			}
			// Skip CGo call during app shutdown — the OS cleans up the event monitor.
			if !s.shuttingDown.Load() {
				backend.Unregister() //nolint:errcheck
			}
			log.Printf("hotkey: %s unregistered", combo)
			close(doneCh)
		}()
		for {
			select {
			case <-listenCtx.Done():
				return
			case _, ok := <-keydown:
				if !ok {
					return
				}
				log.Printf("hotkey: %s triggered (%s)", combo, b.name)
				trigger()
			}
		}
	}()
}

// Rebind swaps one binding to a new key combo at runtime. The new key is
// registered before the old one is released, so on any error the original
// hotkey stays live.
func (s *HotkeyService) Rebind(name, newCombo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrHotkeyUnknown, name)
	}
	newBackend, err := s.backendFactory(newCombo)
	if err != nil {
		return err
	}
	if s.started {
		if err := newBackend.Register(); err != nil {
			return err // conflict — old hotkey still live
		}
		if b.cancel != nil {
			b.cancel()
		}
	}
	oldCombo := b.combo
	b.backend = newBackend
	b.combo = newCombo
	if s.started {
		parent := s.parentCtx
		if parent == nil {
			parent = context.Background()
		}
		s.listen(parent, b)
	}
	log.Printf("hotkey: re-bound %s: %s → %s", name, oldCombo, newCombo)
	return nil
}

// Stop unregisters every binding BEFORE cancelling the listen goroutines, so
// the OS-level event monitors are removed while the Cocoa event loop is
// still alive. It then waits briefly for each goroutine to exit so no CGo
// callbacks are in-flight when the process tears down.
func (s *HotkeyService) Stop() {
	s.shuttingDown.Store(true)

	s.mu.Lock()
	var waits []chan struct{}
	for _, b := range s.bindings {
		if b.backend != nil {
			if err := b.backend.Unregister(); err != nil {
				log.Printf("hotkey: Unregister in Stop() returned: %v", err)
			}
		}
		if b.cancel != nil {
			b.cancel()
		}
		if b.doneCh != nil {
			waits = append(waits, b.doneCh)
		}
	}
	s.mu.Unlock()

	deadline := time.After(200 * time.Millisecond)
	for _, done := range waits {
		select {
		case <-done:
		case <-deadline:
			log.Printf("hotkey: Stop() timed out waiting for listeners to exit")
			return
		}
	}
}

// Combo returns the combo currently bound to name, or "".
func (s *HotkeyService) Combo(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bindings[name]; ok {
		return b.combo
	}
	return ""
}

// ── parseHotkey ──────────────────────────────────────────────────────────────
// Parses a combo string like "f9", "ctrl+space", "ctrl+shift+a" into
// golang.design/x/hotkey modifiers + key. Bare function keys are allowed
// (the looper's defaults are F9–F12); any other key needs a modifier.

var modMap = map[string]hotkey.Modifier{
	"ctrl":    hotkey.ModCtrl,
	"control": hotkey.ModCtrl,
	"option":  hotkey.ModOption,
	"alt":     hotkey.ModOption,
	"shift":   hotkey.ModShift,
	"cmd":     hotkey.ModCmd,
	"command": hotkey.ModCmd,
}

var keyMap = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"tab":    hotkey.KeyTab,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"a":      hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

// isFunctionKey reports whether name is "f1" through "f12".
func isFunctionKey(name string) bool {
	if len(name) < 2 || name[0] != 'f' {
		return false
	}
	_, ok := keyMap[name]
	return ok && name[1] >= '0' && name[1] <= '9'
}

// parseHotkey parses a combo string into hotkey modifiers and key.
func parseHotkey(combo string) ([]hotkey.Modifier, hotkey.Key, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	keyPart := parts[len(parts)-1]
	modParts := parts[:len(parts)-1]

	key, ok := keyMap[keyPart]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown key %q", ErrHotkeyInvalid, keyPart)
	}
	if len(modParts) == 0 {
		if !isFunctionKey(keyPart) {
			return nil, 0, fmt.Errorf("%w: %q (non-function keys need a modifier)", ErrHotkeyInvalid, combo)
		}
		return nil, key, nil
	}

	var mods []hotkey.Modifier
	seen := map[string]bool{}
	for _, m := range modParts {
		if seen[m] {
			continue
		}
		seen[m] = true
		mod, ok := modMap[m]
		if !ok {
			return nil, 0, fmt.Errorf("%w: unknown modifier %q", ErrHotkeyInvalid, m)
		}
		mods = append(mods, mod)
	}
	return mods, key, nil
}

// FormatHotkey converts a combo string to a user-friendly display string.
// e.g. "f9" → "F9", "ctrl+space" → "⌃Space", "ctrl+shift+a" → "⌃⇧A"
func FormatHotkey(combo string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	modSymbols := map[string]string{
		"ctrl": "⌃", "control": "⌃",
		"option": "⌥", "alt": "⌥",
		"shift": "⇧",
		"cmd":   "⌘", "command": "⌘",
	}
	keyDisplay := map[string]string{
		"space": "Space", "tab": "Tab", "return": "Return", "enter": "Return",
	}

	var out strings.Builder
	for _, p := range parts[:len(parts)-1] {
		if s, ok := modSymbols[p]; ok {
			out.WriteString(s)
		}
	}
	key := parts[len(parts)-1]
	if d, ok := keyDisplay[key]; ok {
		out.WriteString(d)
	} else {
		out.WriteString(strings.ToUpper(key))
	}
	return out.String()
}
