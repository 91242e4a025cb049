package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibeckermayer/engage4me/internal/app"
	"github.com/ibeckermayer/engage4me/internal/logging"
)

func main() {
	mode := "run"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	if mode != "run" && mode != "daemon" {
		fmt.Fprintln(os.Stderr, "Usage: engage4me [run|daemon]")
		os.Exit(2)
	}

	log := logging.New("info")

	a, err := app.Setup()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("mode", mode).Msg("engage4me starting...")

	if mode == "daemon" {
		err = a.Daemon(ctx)
	} else {
		_, err = a.RunOnce(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("engage4me failed")
		os.Exit(1)
	}
}
