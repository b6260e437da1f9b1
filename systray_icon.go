package main

import (
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/getlantern/systray"
)

//go:embed assets/icon-template.png
var iconBytes []byte

// onSystrayReady builds the tray menu — the looper's entire control surface
// alongside the global hotkeys. Called by systray.Run once the OS tray is up.
func onSystrayReady(app *App) {
	HideFromDock() // runs on Cocoa thread — safe to call NSApp here
	systray.SetTemplateIcon(iconBytes, iconBytes)
	systray.SetTooltip("Loopy Looper")

	cfg := app.Config()
	mRecord := systray.AddMenuItem(
		fmt.Sprintf("Record (%s)", FormatHotkey(cfg.RecordKey)),
		"Start or stop loop recording")
	mTimed := systray.AddMenuItem(
		fmt.Sprintf("Record %d ms (%s)", cfg.TimedRecordMs, FormatHotkey(cfg.TimedKey)),
		"Record for a fixed duration, then loop")
	mPause := systray.AddMenuItem(
		fmt.Sprintf("Pause / Resume (%s)", FormatHotkey(cfg.PauseKey)),
		"Pause or resume loop playback")
	mReset := systray.AddMenuItem(
		fmt.Sprintf("Reset Loop (%s)", FormatHotkey(cfg.ResetKey)),
		"Discard the loop and stop")
	mMonitor := systray.AddMenuItemCheckbox("Monitor Input", "Hear yourself on the monitor output", false)
	systray.AddSeparator()
	mSave := systray.AddMenuItem("Save Loop as WAV", "Export the current loop to a file")
	mReload := systray.AddMenuItem("Reload Config", "Re-read config.json and apply hotkeys")
	mLogin := systray.AddMenuItemCheckbox("Launch at Login", "Start Loopy Looper when you log in", app.GetLaunchAtLogin())
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit Loopy Looper", "Exit the application")

	go func() {
		// Ticker keeps the tooltip in sync with state driven by hotkeys.
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-mRecord.ClickedCh:
				app.Engine().ToggleRecord()
			case <-mTimed.ClickedCh:
				app.TimedRecord()
			case <-mPause.ClickedCh:
				if err := app.Engine().TogglePause(); err != nil {
					log.Printf("engine: pause: %v", err)
				}
			case <-mReset.ClickedCh:
				app.Engine().Reset()
			case <-mMonitor.ClickedCh:
				if app.Engine().ToggleMonitor() {
					mMonitor.Check()
				} else {
					mMonitor.Uncheck()
				}
			case <-mSave.ClickedCh:
				if _, err := app.SaveLoop(); err != nil {
					log.Printf("export: %v", err)
				}
			case <-mReload.ClickedCh:
				app.ReloadConfig()
			case <-mLogin.ClickedCh:
				enable := !mLogin.Checked()
				if err := app.SetLaunchAtLogin(enable); err != nil {
					log.Printf("login item: %v", err)
				} else if enable {
					mLogin.Check()
				} else {
					mLogin.Uncheck()
				}
			case <-ticker.C:
				systray.SetTooltip("Loopy Looper — " + app.Status())
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}
