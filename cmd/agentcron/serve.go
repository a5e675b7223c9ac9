package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agentcron/internal/app"
)

const stopTimeout = 15 * time.Second

var cfgPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler daemon",
	Long:  `Loads the config, registers every enabled task and serves the HTTP API until SIGINT or SIGTERM.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&cfgPath, "config", "./agentcron.yaml", "path to config (yaml or json)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stop(a, app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	var reason app.StopReason
	select {
	case s := <-sigs:
		reason = app.StopSIGINT
		if s == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	stop(a, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func stop(a *app.App, reason app.StopReason) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	_ = a.Stop(ctx, reason)
}
