package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/stewardlab/steward/internal/config"
	"github.com/stewardlab/steward/internal/review"
	"github.com/stewardlab/steward/internal/supervisor"
	"github.com/stewardlab/steward/internal/tui"
	"github.com/stewardlab/steward/pkg/models"
)

// runWithWatch executes the session behind the live terminal view. Events
// and review requests stream into the view; the report prints after it
// closes. Quitting the view interrupts a session that is still running.
func runWithWatch(ctx context.Context, sup *supervisor.Supervisor, reviews *review.Manager, cfg *config.Config, sessionQuery string, plan []*models.PlanStep, start func(context.Context) (*supervisor.Report, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program, app := tui.NewWatchProgram(tui.WatchConfig{
		SessionQuery: sessionQuery,
		RefreshRate:  cfg.TUI.RefreshRate,
		OnDecision:   reviews.Submit,
	})
	if len(plan) > 0 {
		app.SetPlan(plan)
	}

	// The view owns the terminal; keep stdlib log lines off it.
	log.SetOutput(io.Discard)
	defer log.SetOutput(os.Stderr)

	events, cancelSub := sup.Events().Subscribe(128)
	defer cancelSub()
	go func() {
		for e := range events {
			program.Send(tui.EventMsg{Event: e})
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-reviews.RequestCh():
				program.Send(tui.ReviewRequestMsg{Review: req})
			}
		}
	}()

	var report *supervisor.Report
	var runErr error
	orchDone := make(chan struct{})
	go func() {
		defer close(orchDone)
		report, runErr = start(ctx)
		program.Send(tui.DoneMsg{Err: runErr})
	}()

	_, uiErr := program.Run()

	// The view is gone; stop the session if it is still running, then
	// wait for its report.
	cancel()
	<-orchDone

	if uiErr != nil {
		return fmt.Errorf("watch view: %w", uiErr)
	}
	if report != nil {
		printReport(report)
	}
	return runErr
}
