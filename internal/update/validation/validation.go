// Package validation implements the Validation Pipeline: a two-phase
// check sequence (agent-driven engineering review, then a mechanical
// compliance checklist) that gates whether an update's file
// modifications are safe to commit.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/driftcode/orchestra/internal/common/apperrors"
	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/generator"
)

const maxIterations = 3
const maxAttemptsPerCheck = 3
const defaultMaxErrorBytes = 64 * 1024

// Finding is one item in a review persona's structured output.
type Finding struct {
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Passing     bool   `json:"passing"`
}

type reviewOutput struct {
	Findings []Finding `json:"findings"`
}

// ReviewResult is the outcome of one Phase 1 engineering-review check.
type ReviewResult struct {
	Name     string
	Passed   bool
	Attempts int
	Findings []Finding
}

// Phase1Result is the outcome of a full Phase 1 pass.
type Phase1Result struct {
	Reviews []ReviewResult
	Passed  bool
}

// Phase2CheckResult is the outcome of one Phase 2 compliance check.
type Phase2CheckResult struct {
	Name    string
	Passed  bool
	Retries int
	Errors  []string
}

// Phase2Result is the outcome of a full Phase 2 pass.
type Phase2Result struct {
	Checks      []Phase2CheckResult
	Passed      bool
	RequiredFix bool // true if any check needed at least one retry
}

// Iteration bundles one Phase1+Phase2 pass.
type Iteration struct {
	Phase1 Phase1Result
	Phase2 Phase2Result
}

// Outcome classifies the final report per the spec's analysis
// protocols.
type Outcome string

const (
	OutcomeCleanSuccess     Outcome = "clean_success"
	OutcomeSuccessWithIssue Outcome = "success_with_issues"
	OutcomeExhausted        Outcome = "exhausted_failure"
)

// Report is the full trail of a Validation Pipeline run.
type Report struct {
	Codename   string
	Iterations []Iteration
	Passed     bool
	Outcome    Outcome
}

// Pipeline runs the two-phase validation sequence against a checked-out
// workspace directory.
type Pipeline struct {
	gen           generator.Generator
	workspaceDir  string
	maxErrorBytes int
	log           *logger.Logger
	checks        []MechanicalCheck
}

// SetChecks overrides the Phase 2 mechanical check list. Production
// callers never need this (New already wires the real toolchain
// checks); it exists so callers embedding a Pipeline against a
// non-Go-module workspace, or tests, can substitute stand-ins instead
// of shelling out to a real Go toolchain.
func (p *Pipeline) SetChecks(checks []MechanicalCheck) {
	p.checks = checks
}

// New constructs a Pipeline operating against workspaceDir (the
// checked-out repository under modification).
func New(gen generator.Generator, workspaceDir string, log *logger.Logger) *Pipeline {
	return &Pipeline{
		gen:           gen,
		workspaceDir:  workspaceDir,
		maxErrorBytes: defaultMaxErrorBytes,
		log:           log,
		checks:        defaultPhase2Checks(),
	}
}

// reviewChecks names Phase 1's four sequential engineering reviews, in
// order.
var reviewChecks = []string{"standards", "test_coverage", "security", "integration"}

// Run drives the pipeline to completion: up to 3 full Phase1/Phase2
// iterations, looping back to Phase 1 whenever Phase 2 required any
// retry, until a clean pass, an exhausted failure, or 3 iterations are
// spent.
func (p *Pipeline) Run(ctx context.Context, codename string) (*Report, error) {
	report := &Report{Codename: codename}
	hadRetries := false

	for iter := 1; iter <= maxIterations; iter++ {
		phase1, err := p.runPhase1(ctx, codename)
		if err != nil {
			return report, err
		}
		if !phase1.Passed {
			report.Iterations = append(report.Iterations, Iteration{Phase1: *phase1})
			p.log.Info("validation pipeline phase 1 failed, retrying full pipeline", zap.Int("iteration", iter))
			continue
		}

		phase2 := p.runPhase2(ctx)
		report.Iterations = append(report.Iterations, Iteration{Phase1: *phase1, Phase2: phase2})

		if phase2.Passed && !phase2.RequiredFix {
			report.Passed = true
			report.Outcome = OutcomeCleanSuccess
			if hadRetries {
				report.Outcome = OutcomeSuccessWithIssue
			}
			return report, nil
		}
		if phase2.RequiredFix {
			hadRetries = true
		}
		// Phase 2 failed outright or required a retry: loop back to
		// Phase 1 for re-review, unless iterations are exhausted.
		p.log.Info("validation pipeline looping back to phase 1", zap.Int("iteration", iter))
	}

	report.Outcome = OutcomeExhausted
	return report, apperrors.ValidationExhausted(fmt.Sprintf("validation did not converge within %d iterations", maxIterations))
}

func (p *Pipeline) runPhase1(ctx context.Context, codename string) (*Phase1Result, error) {
	result := &Phase1Result{Passed: true}
	for _, name := range reviewChecks {
		review, err := p.runReviewCheck(ctx, codename, name)
		if err != nil {
			return nil, err
		}
		result.Reviews = append(result.Reviews, *review)
		if !review.Passed {
			result.Passed = false
		}
	}
	return result, nil
}

func (p *Pipeline) runReviewCheck(ctx context.Context, codename, name string) (*ReviewResult, error) {
	result := &ReviewResult{Name: name}

	for attempt := 1; attempt <= maxAttemptsPerCheck; attempt++ {
		result.Attempts = attempt

		prompt := reviewPrompt(name, codename)
		artifact, err := p.gen.Execute(ctx, prompt)
		if err != nil {
			p.log.Warn("review persona call failed", zap.String("check", name), zap.Int("attempt", attempt), zap.Error(err))
			if attempt == maxAttemptsPerCheck {
				result.Passed = false
				return result, nil
			}
			continue
		}

		findings, parseErr := parseFindings(artifact.Content)
		if parseErr != nil {
			p.log.Warn("review persona returned unparseable findings", zap.String("check", name), zap.Error(parseErr))
			result.Findings = nil
			result.Passed = false
			if attempt == maxAttemptsPerCheck {
				return result, nil
			}
			continue
		}

		result.Findings = findings
		if allPassing(findings) {
			result.Passed = true
			return result, nil
		}

		result.Passed = false
		if attempt == maxAttemptsPerCheck {
			return result, nil
		}

		if _, err := p.gen.Execute(ctx, fixPrompt(name, findings)); err != nil {
			p.log.Warn("fix persona call failed", zap.String("check", name), zap.Int("attempt", attempt), zap.Error(err))
		}
	}
	return result, nil
}

func allPassing(findings []Finding) bool {
	for _, f := range findings {
		if !f.Passing {
			return false
		}
	}
	return true
}

func parseFindings(content string) ([]Finding, error) {
	var out reviewOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, err
	}
	return out.Findings, nil
}

func reviewPrompt(checkName, codename string) string {
	return fmt.Sprintf("You are performing a %s review persona for update %q. Respond with JSON {\"findings\":[{\"description\":...,\"severity\":...,\"passing\":bool}]}.", checkName, codename)
}

func fixPrompt(checkName string, findings []Finding) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are the fix persona for the %s review. Address the following findings:\n", checkName))
	for _, f := range findings {
		if !f.Passing {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", f.Severity, f.Description))
		}
	}
	return sb.String()
}

// MechanicalCheck describes one Phase 2 compliance check.
type MechanicalCheck struct {
	Name    string
	Run     func(ctx context.Context, dir string) (bool, string)
	AutoFix func(ctx context.Context, dir string) error
}

func defaultPhase2Checks() []MechanicalCheck {
	return []MechanicalCheck{
		{Name: "compile", Run: runCommand("go", "build", "./...")},
		{Name: "tests", Run: runCommand("go", "test", "./...")},
		{Name: "formatting", Run: runGofmtCheck, AutoFix: runGofmtFix},
		{Name: "lint", Run: runCommand("go", "vet", "./...")},
		{Name: "documentation_build", Run: runCommand("go", "doc", "./...")},
	}
}

func (p *Pipeline) runPhase2(ctx context.Context) Phase2Result {
	result := Phase2Result{Passed: true}

	for _, check := range p.checks {
		checkResult := p.runMechanicalCheck(ctx, check)
		result.Checks = append(result.Checks, checkResult)
		if checkResult.Retries > 0 {
			result.RequiredFix = true
		}
		if !checkResult.Passed {
			result.Passed = false
		}
	}
	return result
}

func (p *Pipeline) runMechanicalCheck(ctx context.Context, check MechanicalCheck) Phase2CheckResult {
	result := Phase2CheckResult{Name: check.Name}
	var collectedErrors []string

	for attempt := 1; attempt <= maxAttemptsPerCheck; attempt++ {
		ok, output := check.Run(ctx, p.workspaceDir)
		if ok {
			result.Passed = true
			result.Retries = attempt - 1
			return result
		}

		collectedErrors = append(collectedErrors, p.truncateOutput(output))
		if attempt == maxAttemptsPerCheck {
			break
		}

		if check.AutoFix != nil {
			if err := check.AutoFix(ctx, p.workspaceDir); err != nil {
				p.log.Warn("auto-fix failed", zap.String("check", check.Name), zap.Error(err))
			}
			continue
		}

		if p.gen != nil {
			fixPrompt := fmt.Sprintf("Fix the following %q check failure (retry %d):\n%s", check.Name, attempt, p.truncateOutput(output))
			if _, err := p.gen.Execute(ctx, fixPrompt); err != nil {
				p.log.Warn("fix persona call failed", zap.String("check", check.Name), zap.Error(err))
			}
		}
	}

	result.Passed = false
	result.Retries = maxAttemptsPerCheck - 1
	result.Errors = collectedErrors
	return result
}

func (p *Pipeline) truncateOutput(output string) string {
	limit := p.maxErrorBytes
	if limit <= 0 {
		limit = defaultMaxErrorBytes
	}
	if len(output) <= limit {
		return output
	}
	return "...[truncated]...\n" + output[len(output)-limit:]
}

func runCommand(name string, args ...string) func(context.Context, string) (bool, string) {
	return func(ctx context.Context, dir string) (bool, string) {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Dir = dir
		output, err := cmd.CombinedOutput()
		if err != nil {
			return false, string(output)
		}
		return true, string(output)
	}
}

func runGofmtCheck(ctx context.Context, dir string) (bool, string) {
	cmd := exec.CommandContext(ctx, "gofmt", "-l", ".")
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return false, string(output)
	}
	if strings.TrimSpace(string(output)) != "" {
		return false, string(output)
	}
	return true, ""
}

func runGofmtFix(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, "gofmt", "-w", ".")
	cmd.Dir = dir
	_, err := cmd.CombinedOutput()
	return err
}
