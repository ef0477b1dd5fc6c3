package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"beatsketch/cmd"
	applog "beatsketch/internal/log"
	"beatsketch/pkg/build"
)

// main is the entry point for beatsketch. Build information is loaded first;
// development builds without ldflags keep the defaults. The first SIGINT or
// SIGTERM cancels the running command, which stops an analysis between
// onsets or shuts the server down gracefully.
func main() {
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: %v, using development build information", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx, os.Args[1:])
	stop()

	if err != nil {
		applog.Errorf("%v", err)
		os.Exit(1)
	}
}
