package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stewardlab/steward/pkg/models"
)

func dispatchRegistry(t *testing.T, tool Tool) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return reg
}

func TestDispatcherInvoke(t *testing.T) {
	echo := stubTool{
		contract: Contract{
			Name:   "echo",
			Params: []Param{{Name: "text", Type: "string", Required: true}},
		},
		invoke: func(ctx context.Context, params map[string]any) (string, error) {
			return params["text"].(string), nil
		},
	}
	d := NewDispatcher(dispatchRegistry(t, echo))

	obs, err := d.Invoke(context.Background(), models.ActionDirective{
		Tool:   "echo",
		Params: map[string]any{"text": "hello"},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if obs.IsError {
		t.Errorf("Invoke() observation marked as error: %q", obs.Output)
	}
	if obs.Output != "hello" {
		t.Errorf("Invoke() output = %q, want %q", obs.Output, "hello")
	}
}

func TestDispatcherUnknownTool(t *testing.T) {
	d := NewDispatcher(NewRegistry())

	obs, err := d.Invoke(context.Background(), models.ActionDirective{Tool: "ghost"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !obs.IsError {
		t.Error("Invoke() for unknown tool should return an error observation")
	}
	if !strings.Contains(obs.Output, "unknown tool") {
		t.Errorf("Invoke() output = %q, want unknown tool message", obs.Output)
	}
}

func TestDispatcherContractViolation(t *testing.T) {
	strict := stubTool{
		contract: Contract{
			Name:   "strict",
			Params: []Param{{Name: "id", Type: "string", Required: true}},
		},
	}
	d := NewDispatcher(dispatchRegistry(t, strict))

	obs, err := d.Invoke(context.Background(), models.ActionDirective{Tool: "strict"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !obs.IsError {
		t.Error("Invoke() with missing required param should return an error observation")
	}
	if !strings.Contains(obs.Output, "missing required parameter") {
		t.Errorf("Invoke() output = %q, want validation message", obs.Output)
	}
}

func TestDispatcherToolFailure(t *testing.T) {
	failing := stubTool{
		contract: Contract{Name: "failing"},
		invoke: func(ctx context.Context, params map[string]any) (string, error) {
			return "", fmt.Errorf("disk on fire")
		},
	}
	d := NewDispatcher(dispatchRegistry(t, failing))

	obs, err := d.Invoke(context.Background(), models.ActionDirective{Tool: "failing"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !obs.IsError {
		t.Error("Invoke() should surface tool failure in the observation")
	}
	if !strings.Contains(obs.Output, "disk on fire") {
		t.Errorf("Invoke() output = %q, want the tool's error text", obs.Output)
	}
}

func TestDispatcherTruncatesOutput(t *testing.T) {
	long := stubTool{
		contract: Contract{Name: "long"},
		invoke: func(ctx context.Context, params map[string]any) (string, error) {
			return strings.Repeat("x", 100), nil
		},
	}
	d := NewDispatcher(dispatchRegistry(t, long), WithMaxOutput(10))

	obs, err := d.Invoke(context.Background(), models.ActionDirective{Tool: "long"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !obs.Truncated {
		t.Error("Invoke() should mark the observation truncated")
	}
	if !strings.HasPrefix(obs.Output, strings.Repeat("x", 10)) {
		t.Errorf("Invoke() output = %q, want the first 10 bytes kept", obs.Output)
	}
	if !strings.Contains(obs.Output, "truncated") {
		t.Errorf("Invoke() output = %q, want a truncation marker", obs.Output)
	}
}

func TestDispatcherCanceledContext(t *testing.T) {
	idle := stubTool{contract: Contract{Name: "idle"}}
	d := NewDispatcher(dispatchRegistry(t, idle))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Invoke(ctx, models.ActionDirective{Tool: "idle"}); err == nil {
		t.Error("Invoke() with a canceled context should fail")
	}
}
