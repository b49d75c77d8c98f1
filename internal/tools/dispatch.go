package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/stewardlab/steward/pkg/models"
)

const (
	// defaultCallTimeout bounds a single tool invocation.
	defaultCallTimeout = 2 * time.Minute
	// defaultMaxOutput caps the observation returned from one invocation.
	defaultMaxOutput = 30000
)

// Dispatcher executes authorized action directives against the registry.
// Execution failures are reported inside the observation so the reasoning
// loop can react to them; the returned error is reserved for cancellation.
type Dispatcher struct {
	registry    *Registry
	callTimeout time.Duration
	maxOutput   int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCallTimeout sets the per-invocation timeout. Zero disables it.
func WithCallTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.callTimeout = d
	}
}

// WithMaxOutput sets the observation size cap in bytes.
func WithMaxOutput(n int) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.maxOutput = n
	}
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		callTimeout: defaultCallTimeout,
		maxOutput:   defaultMaxOutput,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry this dispatcher executes against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Invoke executes a directive and returns the observation. Unknown tools,
// contract violations and tool failures all produce an error observation
// rather than an error return; only context cancellation fails the call.
func (d *Dispatcher) Invoke(ctx context.Context, directive models.ActionDirective) (models.Observation, error) {
	if err := ctx.Err(); err != nil {
		return models.Observation{}, err
	}

	tool, ok := d.registry.Get(directive.Tool)
	if !ok {
		return errObservation(fmt.Sprintf("unknown tool: %s", directive.Tool)), nil
	}
	if err := tool.Contract().Validate(directive.Params); err != nil {
		return errObservation(err.Error()), nil
	}

	parent := ctx
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	output, err := tool.Invoke(ctx, directive.Params)
	if err != nil {
		// A canceled parent fails the dispatch; a tool that hit the
		// per-call timeout produced an ordinary error observation.
		if parent.Err() != nil {
			return models.Observation{}, parent.Err()
		}
		return errObservation(err.Error()), nil
	}

	obs := models.Observation{Output: output}
	if d.maxOutput > 0 && len(obs.Output) > d.maxOutput {
		obs.Output = obs.Output[:d.maxOutput] + "\n... (output truncated)"
		obs.Truncated = true
	}
	return obs, nil
}

func errObservation(msg string) models.Observation {
	return models.Observation{Output: msg, IsError: true}
}
