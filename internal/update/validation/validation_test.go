package validation

import (
	"context"
	"testing"

	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/generator"
)

// fakeGenerator returns queued responses in order, looping the last one
// once exhausted.
type fakeGenerator struct {
	responses []string
	calls     int
}

func (f *fakeGenerator) Execute(context.Context, string) (*generator.Artifact, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return &generator.Artifact{Content: f.responses[idx]}, nil
}
func (f *fakeGenerator) Available(context.Context) bool   { return true }
func (f *fakeGenerator) RateStatus() generator.RateStatus { return generator.RateStatus{} }

const passingFindings = `{"findings":[{"description":"ok","severity":"low","passing":true}]}`

func allPassingChecks() []MechanicalCheck {
	pass := func(context.Context, string) (bool, string) { return true, "" }
	return []MechanicalCheck{
		{Name: "compile", Run: pass},
		{Name: "tests", Run: pass},
		{Name: "formatting", Run: pass},
		{Name: "lint", Run: pass},
		{Name: "documentation_build", Run: pass},
	}
}

func TestRunCleanSuccess(t *testing.T) {
	gen := &fakeGenerator{responses: []string{passingFindings}}
	p := New(gen, t.TempDir(), logger.Default())
	p.checks = allPassingChecks()

	report, err := p.Run(context.Background(), "amber-harbor-0001")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Passed || report.Outcome != OutcomeCleanSuccess {
		t.Fatalf("expected clean success, got passed=%v outcome=%v", report.Passed, report.Outcome)
	}
	if len(report.Iterations) != 1 {
		t.Fatalf("expected a single iteration, got %d", len(report.Iterations))
	}
}

func TestRunSuccessWithIssuesWhenPhase2Retries(t *testing.T) {
	gen := &fakeGenerator{responses: []string{passingFindings}}
	p := New(gen, t.TempDir(), logger.Default())

	attempt := 0
	flaky := func(context.Context, string) (bool, string) {
		attempt++
		if attempt == 1 {
			return false, "formatting drift"
		}
		return true, ""
	}
	checks := allPassingChecks()
	checks[2] = MechanicalCheck{Name: "formatting", Run: flaky, AutoFix: func(context.Context, string) error { return nil }}
	p.checks = checks

	report, err := p.Run(context.Background(), "amber-harbor-0002")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Passed || report.Outcome != OutcomeSuccessWithIssue {
		t.Fatalf("expected success_with_issues, got passed=%v outcome=%v", report.Passed, report.Outcome)
	}
}

func TestRunExhaustedWhenPhase1NeverPasses(t *testing.T) {
	failingFindings := `{"findings":[{"description":"missing tests","severity":"high","passing":false}]}`
	gen := &fakeGenerator{responses: []string{failingFindings}}
	p := New(gen, t.TempDir(), logger.Default())
	p.checks = allPassingChecks()

	report, err := p.Run(context.Background(), "amber-harbor-0003")
	if err == nil {
		t.Fatal("expected ValidationExhausted error")
	}
	if report.Outcome != OutcomeExhausted {
		t.Fatalf("expected exhausted outcome, got %v", report.Outcome)
	}
}

func TestRunExhaustedWhenPhase2NeverConverges(t *testing.T) {
	gen := &fakeGenerator{responses: []string{passingFindings}}
	p := New(gen, t.TempDir(), logger.Default())

	alwaysFail := func(context.Context, string) (bool, string) { return false, "still broken" }
	checks := allPassingChecks()
	checks[0] = MechanicalCheck{Name: "compile", Run: alwaysFail}
	p.checks = checks

	report, err := p.Run(context.Background(), "amber-harbor-0004")
	if err == nil {
		t.Fatal("expected ValidationExhausted error")
	}
	if report.Outcome != OutcomeExhausted {
		t.Fatalf("expected exhausted outcome, got %v", report.Outcome)
	}
	if len(report.Iterations) != maxIterations {
		t.Fatalf("expected %d iterations spent, got %d", maxIterations, len(report.Iterations))
	}
}

func TestParseFindingsRejectsInvalidJSON(t *testing.T) {
	if _, err := parseFindings("not json"); err == nil {
		t.Fatal("expected parse error for invalid JSON")
	}
}

func TestAllPassing(t *testing.T) {
	if !allPassing([]Finding{{Passing: true}, {Passing: true}}) {
		t.Error("expected all-passing findings to report true")
	}
	if allPassing([]Finding{{Passing: true}, {Passing: false}}) {
		t.Error("expected a single failing finding to report false")
	}
}

func TestTruncateOutputPreservesTail(t *testing.T) {
	p := New(&fakeGenerator{responses: []string{passingFindings}}, t.TempDir(), logger.Default())
	p.maxErrorBytes = 10
	long := "0123456789ABCDEFGHIJ"
	got := p.truncateOutput(long)
	if got == long {
		t.Fatal("expected output to be truncated")
	}
	if got[len(got)-10:] != long[len(long)-10:] {
		t.Fatalf("expected truncated output to preserve the tail, got %q", got)
	}
}
