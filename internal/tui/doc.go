// Package tui provides the terminal user interface for steward's watch mode.
//
// The watch view is a single-screen live display of a running session:
// a one-line header with session state, elapsed time and token spend,
// a step table tracking each plan step through dispatch, verification
// and escalation, and a tail of recent events. When the gate withholds
// an action or the verifier abstains, the view swaps to a review
// prompt until the operator decides.
//
// The view is driven entirely by bus events. The caller bridges them
// into the program:
//
//	program, app := tui.NewWatchProgram(tui.WatchConfig{
//	    SessionQuery: query,
//	    OnDecision:   reviews.Submit,
//	})
//	go program.Run()
//
//	for e := range events {
//	    program.Send(tui.EventMsg{Event: e})
//	}
//
// Review requests arrive the same way:
//
//	program.Send(tui.ReviewRequestMsg{Review: rv})
//
// The operator answers with y or n; the decision flows back through
// OnDecision. Everything else is read-only, and q or Ctrl+C quits.
package tui
