package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stewardlab/steward/internal/config"
	"github.com/stewardlab/steward/internal/supervisor"
)

var resumeWatch bool

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume an interrupted session",
	Long: `Resume a session that was interrupted before reaching a terminal
state. Finished steps keep their verified answers; steps caught
mid-attempt are re-dispatched from their last durable state.

Find candidates with 'steward status'.`,
	Args: cobra.ExactArgs(1),
	RunE: resumeSession,
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeWatch, "watch", false, "Watch the session in a live terminal view")
}

func resumeSession(cmd *cobra.Command, args []string) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in resume: %v", r)
		}
	}()

	sessionID := args[0]
	verbose := os.Getenv("STEWARD_DEBUG") != ""

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	sup, reviews, cleanup, err := newSupervisor(cfg, workDir, verbose)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	start := func(ctx context.Context) (*supervisor.Report, error) {
		return sup.Resume(ctx, sessionID)
	}
	if resumeWatch {
		return runWithWatch(ctx, sup, reviews, cfg, shortSessionID(sessionID), nil, start)
	}
	return runHeadless(ctx, sup, reviews, start)
}
