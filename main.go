package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"lightshow/cmd"
	"lightshow/internal/log"
	"lightshow/pkg/build"
)

// main is the entry point for the light show.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments
//   - Install signal handling
//
// 2. Concurrent Phase (Hot Path):
//   - Run the requested command: play, cache, client, audio-in, lights or
//     devices. Playback streams audio while the lights follow it.
//
// 3. Shutdown Phase (Cold Path):
//   - A termination signal cancels the command's context
//   - The command turns the lights off and releases devices on return
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds have no ldflags.
	if err := build.Initialize(); err != nil {
		log.Debugf("build info: %v", err)
	}

	opts, err := cmd.ParseArgs()
	if errors.Is(err, cmd.ErrNoCommand) {
		return
	}
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	log.Debugf("%s", build.GetBuildFlags())
	err = cmd.Execute(ctx, opts)

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	stop()
	if err != nil {
		log.Fatalf("%s: %v", opts.Command, err)
	}
}
