package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vovakirdan/tgsessions/internal/log"
	"github.com/vovakirdan/tgsessions/internal/transport/tdws"
)

// Connects to a tdjson gateway, creates one client and prints the updates it receives.
func main() {
	addr := flag.String("addr", "ws://127.0.0.1:8090/td", "gateway WebSocket address")
	verbosity := flag.Int("verbosity", 1, "TDLib log verbosity sent to the client")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	logger := log.New("debug")
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	gw, err := tdws.Dial(ctx, *addr, 0, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial")
	}
	defer gw.Disconnect()

	go func() {
		if err := gw.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("gateway read loop")
		}
	}()

	id := gw.CreateClient()
	if err := gw.SetLogVerbosityLevel(ctx, id, *verbosity); err != nil {
		logger.Fatal().Err(err).Int32("client_id", id).Msg("setLogVerbosityLevel")
	}
	logger.Info().Int32("client_id", id).Msg("client created")

	for {
		select {
		case env, ok := <-gw.Updates():
			if !ok {
				return
			}
			fmt.Fprintf(os.Stdout, "client %d: %s (%s)\n", env.ClientID, env.Update.Type, env.Update.Kind)
			if env.Update.AuthorizationState != nil {
				fmt.Fprintf(os.Stdout, "  state: %s\n", env.Update.AuthorizationState.Kind)
			}
		case <-ctx.Done():
			logger.Info().Msg("done")
			return
		}
	}
}
