package completion_test

import (
	"testing"

	"github.com/hydrajobs/hydra/internal/completion"
	"github.com/hydrajobs/hydra/internal/domain"
)

func TestEvaluate_DefaultAcceptsZeroOnly(t *testing.T) {
	ok, reason := completion.Evaluate(domain.CompletionCriteria{}, 0, "", "")
	if !ok {
		t.Fatalf("expected success, got %q", reason)
	}
	if reason != completion.ReasonSatisfied {
		t.Fatalf("expected %q, got %q", completion.ReasonSatisfied, reason)
	}

	ok, reason = completion.Evaluate(domain.CompletionCriteria{}, 1, "", "")
	if ok {
		t.Fatal("expected failure for exit code 1")
	}
	if reason != "exit code 1 not in [0]" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluate_CustomExitCodes(t *testing.T) {
	c := domain.CompletionCriteria{ExitCodes: []int{0, 3}}
	if ok, _ := completion.Evaluate(c, 3, "", ""); !ok {
		t.Fatal("expected exit code 3 to pass")
	}
	if ok, _ := completion.Evaluate(c, 2, "", ""); ok {
		t.Fatal("expected exit code 2 to fail")
	}
}

func TestEvaluate_StdoutRequired(t *testing.T) {
	c := domain.CompletionCriteria{StdoutContains: []string{"done"}}
	ok, reason := completion.Evaluate(c, 0, "all work is finished", "")
	if ok {
		t.Fatal("expected failure")
	}
	if reason != "stdout missing 'done'" {
		t.Fatalf("unexpected reason: %q", reason)
	}
	if ok, _ := completion.Evaluate(c, 0, "job done", ""); !ok {
		t.Fatal("expected success when marker present")
	}
}

func TestEvaluate_StdoutForbidden(t *testing.T) {
	c := domain.CompletionCriteria{StdoutNotContains: []string{"ERROR"}}
	ok, reason := completion.Evaluate(c, 0, "ERROR: boom", "")
	if ok {
		t.Fatal("expected failure")
	}
	if reason != "stdout found forbidden 'ERROR'" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluate_StderrChecks(t *testing.T) {
	c := domain.CompletionCriteria{StderrContains: []string{"uploaded"}, StderrNotContains: []string{"panic"}}
	if _, reason := completion.Evaluate(c, 0, "", ""); reason != "stderr missing 'uploaded'" {
		t.Fatalf("unexpected reason: %q", reason)
	}
	if _, reason := completion.Evaluate(c, 0, "", "uploaded, then panic"); reason != "stderr found forbidden 'panic'" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluate_ExitCodeCheckedFirst(t *testing.T) {
	c := domain.CompletionCriteria{StdoutContains: []string{"never"}, ExitCodes: []int{0}}
	_, reason := completion.Evaluate(c, 7, "", "")
	if reason != "exit code 7 not in [0]" {
		t.Fatalf("expected exit code reason to win, got %q", reason)
	}
}

func TestEvaluate_MatchingIsCaseSensitive(t *testing.T) {
	c := domain.CompletionCriteria{StdoutContains: []string{"Done"}}
	if ok, _ := completion.Evaluate(c, 0, "done", ""); ok {
		t.Fatal("expected case sensitive match to fail")
	}
}
