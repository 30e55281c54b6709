// Package preflight implements the Preflight Checker: a sequence of
// named static preconditions run before Snapshot.create. Any failure
// aborts the update without creating a snapshot.
package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/driftcode/orchestra/internal/common/apperrors"
	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/generator"

	"go.uber.org/zap"
)

// CheckResult is the structured outcome of a single named check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Report is the full ordered outcome of a preflight run.
type Report struct {
	Results []CheckResult
	Passed  bool
}

// Checker runs the Preflight Checker's fixed sequence of checks.
type Checker struct {
	repoPath      string
	minDiskMB     int
	skipTestSmoke bool
	testCommand   string
	gen           generator.Generator
	log           *logger.Logger
}

// New constructs a Checker. gen is used for the generator-reachability
// check; it may be nil, in which case that check is skipped.
func New(repoPath string, minDiskMB int, skipTestSmoke bool, testCommand string, gen generator.Generator, log *logger.Logger) *Checker {
	if minDiskMB <= 0 {
		minDiskMB = 100
	}
	return &Checker{
		repoPath:      repoPath,
		minDiskMB:     minDiskMB,
		skipTestSmoke: skipTestSmoke,
		testCommand:   testCommand,
		gen:           gen,
		log:           log,
	}
}

// Run executes the checks in order and stops at the first failing one.
// The returned Report holds the results up to and including that check,
// and the error is an apperrors.SnapshotFailure naming it; there is no
// separate preflight error kind.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	checks := []func(context.Context) CheckResult{
		c.checkCleanTree,
		c.checkDiskSpace,
		c.checkVersionControlTool,
		c.checkGeneratorReachable,
		c.checkTestSmoke,
	}

	report := &Report{Passed: true}
	for _, check := range checks {
		result := check(ctx)
		report.Results = append(report.Results, result)
		if !result.Passed {
			report.Passed = false
			c.log.Warn("preflight check failed", zap.String("check", result.Name), zap.String("detail", result.Detail))
			return report, apperrors.SnapshotFailure(fmt.Sprintf("preflight check %q failed: %s", result.Name, result.Detail), nil)
		}
	}
	return report, nil
}

func (c *Checker) checkCleanTree(ctx context.Context) CheckResult {
	const name = "clean_working_tree"
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = c.repoPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return CheckResult{Name: name, Passed: false, Detail: fmt.Sprintf("git status failed: %v", err)}
	}
	if len(output) != 0 {
		return CheckResult{Name: name, Passed: false, Detail: "working tree has uncommitted changes"}
	}
	return CheckResult{Name: name, Passed: true, Detail: "working tree is clean"}
}

func (c *Checker) checkDiskSpace(_ context.Context) CheckResult {
	const name = "disk_space"
	var stat unix.Statfs_t
	if err := unix.Statfs(c.repoPath, &stat); err != nil {
		return CheckResult{Name: name, Passed: false, Detail: fmt.Sprintf("statfs failed: %v", err)}
	}
	availableMB := (stat.Bavail * uint64(stat.Bsize)) / (1024 * 1024)
	if availableMB < uint64(c.minDiskMB) {
		return CheckResult{Name: name, Passed: false, Detail: fmt.Sprintf("%d MB available, need %d MB", availableMB, c.minDiskMB)}
	}
	return CheckResult{Name: name, Passed: true, Detail: fmt.Sprintf("%d MB available", availableMB)}
}

func (c *Checker) checkVersionControlTool(ctx context.Context) CheckResult {
	const name = "version_control_tool"
	if _, err := exec.LookPath("git"); err != nil {
		return CheckResult{Name: name, Passed: false, Detail: "git executable not found on PATH"}
	}
	cmd := exec.CommandContext(ctx, "git", "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return CheckResult{Name: name, Passed: false, Detail: fmt.Sprintf("git --version failed: %v", err)}
	}
	return CheckResult{Name: name, Passed: true, Detail: string(output)}
}

func (c *Checker) checkGeneratorReachable(ctx context.Context) CheckResult {
	const name = "generator_reachable"
	if c.gen == nil {
		return CheckResult{Name: name, Passed: true, Detail: "no generator configured, skipped"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if !c.gen.Available(checkCtx) {
		return CheckResult{Name: name, Passed: false, Detail: "generator did not respond to availability check"}
	}
	return CheckResult{Name: name, Passed: true, Detail: "generator reachable"}
}

func (c *Checker) checkTestSmoke(ctx context.Context) CheckResult {
	const name = "test_suite_smoke"
	if c.skipTestSmoke || c.testCommand == "" {
		return CheckResult{Name: name, Passed: true, Detail: "skipped by configuration"}
	}

	smokeCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(smokeCtx, "sh", "-c", c.testCommand)
	cmd.Dir = c.repoPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return CheckResult{Name: name, Passed: false, Detail: fmt.Sprintf("test smoke failed: %v: %s", err, truncate(output, 2048))}
	}
	return CheckResult{Name: name, Passed: true, Detail: "test suite smoke passed"}
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return "..." + string(b[len(b)-max:])
}
