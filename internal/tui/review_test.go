package tui

import (
	"strings"
	"testing"

	"github.com/stewardlab/steward/internal/review"
	"github.com/stewardlab/steward/pkg/models"
)

func TestReviewPromptApprove(t *testing.T) {
	p := NewReviewPrompt()
	p.Show(review.Review{
		ID:      "rev-1",
		StepID:  "step-1",
		Kind:    review.KindAction,
		Summary: "allow file write?",
		Detail:  "write_file path=report.md",
		Action:  models.ActionDirective{Tool: "write_file"},
	})

	if !p.Active() {
		t.Fatal("expected prompt active after Show")
	}

	view := p.View()
	if !strings.Contains(view, "allow file write?") {
		t.Error("expected summary in view")
	}
	if !strings.Contains(view, "write_file") {
		t.Error("expected tool name in view")
	}
	if !strings.Contains(view, "Allow this action?") {
		t.Error("expected action phrasing for an action review")
	}

	d, ok := p.Handle("y")
	if !ok {
		t.Fatal("expected a decision from y")
	}
	if !d.Approved {
		t.Error("expected approval")
	}
	if d.DecidedBy != "user" {
		t.Errorf("expected decided_by 'user', got %q", d.DecidedBy)
	}
	if p.Active() {
		t.Error("expected prompt inactive after the decision")
	}
}

func TestReviewPromptReject(t *testing.T) {
	p := NewReviewPrompt()
	p.Show(review.Review{ID: "rev-2", Kind: review.KindVerdict, Summary: "accept answer?"})

	if !strings.Contains(p.View(), "Accept this answer?") {
		t.Error("expected verdict phrasing for a verdict review")
	}

	d, ok := p.Handle("n")
	if !ok {
		t.Fatal("expected a decision from n")
	}
	if d.Approved {
		t.Error("expected rejection")
	}
	if d.Reason != "rejected by operator" {
		t.Errorf("expected rejection reason, got %q", d.Reason)
	}
	if d.ReviewID != "rev-2" {
		t.Errorf("expected review ID rev-2, got %q", d.ReviewID)
	}
}

func TestReviewPromptScroll(t *testing.T) {
	p := NewReviewPrompt()
	p.SetSize(80, 20)

	lines := make([]string, 40)
	for i := range lines {
		lines[i] = "line"
	}
	p.Show(review.Review{ID: "rev-3", Detail: strings.Join(lines, "\n")})

	if p.viewport.YOffset != 0 {
		t.Fatalf("expected offset 0 after Show, got %d", p.viewport.YOffset)
	}

	p.Handle("j")
	if p.viewport.YOffset != 1 {
		t.Errorf("expected offset 1 after j, got %d", p.viewport.YOffset)
	}

	maxOffset := p.viewport.TotalLineCount() - p.viewport.Height
	p.Handle("G")
	if p.viewport.YOffset != maxOffset {
		t.Errorf("expected offset %d after G, got %d", maxOffset, p.viewport.YOffset)
	}

	p.Handle("j")
	if p.viewport.YOffset != maxOffset {
		t.Error("expected offset clamped at the bottom")
	}

	p.Handle("g")
	if p.viewport.YOffset != 0 {
		t.Errorf("expected offset 0 after g, got %d", p.viewport.YOffset)
	}

	p.Handle("k")
	if p.viewport.YOffset != 0 {
		t.Error("expected offset clamped at the top")
	}
}

func TestReviewPromptIgnoresKeysWhenInactive(t *testing.T) {
	p := NewReviewPrompt()

	if _, ok := p.Handle("y"); ok {
		t.Error("expected no decision from an inactive prompt")
	}
	if p.View() != "" {
		t.Error("expected empty view from an inactive prompt")
	}
}
