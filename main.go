package main

import (
	"context"
	"log"

	"github.com/getlantern/systray"
)

func main() {
	app := NewApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	// systray.Run blocks until Quit; onExit tears the services down.
	systray.Run(
		func() { onSystrayReady(app) },
		func() { app.Shutdown() },
	)
}
