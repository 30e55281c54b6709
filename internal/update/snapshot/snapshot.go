// Package snapshot implements the Snapshot Manager: repository
// snapshot, restore, commit, push, and cleanup around a version-control
// working tree, driven by shelling out to git.
package snapshot

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/driftcode/orchestra/internal/common/apperrors"
	"github.com/driftcode/orchestra/internal/common/logger"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

var codenamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{2,31}$`)

const labelPrefix = "pre-update-snapshot-"

// Manager drives git snapshot/restore/commit/push/cleanup operations
// against a single repository working tree.
type Manager struct {
	repoPath string
	log      *logger.Logger
}

// New constructs a Manager rooted at repoPath.
func New(repoPath string, log *logger.Logger) *Manager {
	return &Manager{repoPath: repoPath, log: log}
}

// Create records the current repository revision as a snapshot, tagged
// pre-update-snapshot-<codename>-<unix-timestamp>. Requires a clean
// working tree.
func (m *Manager) Create(ctx context.Context, codename string) (*v1.Snapshot, error) {
	if !codenamePattern.MatchString(codename) {
		return nil, apperrors.SnapshotFailure("invalid codename format", nil)
	}

	clean, err := m.isClean(ctx)
	if err != nil {
		return nil, apperrors.SnapshotFailure("failed to check working tree status", err)
	}
	if !clean {
		return nil, apperrors.SnapshotFailure("working tree is not clean", nil)
	}

	revision, err := m.runGit(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, apperrors.SnapshotFailure("failed to resolve HEAD", err)
	}
	revision = strings.TrimSpace(revision)

	now := time.Now()
	label := fmt.Sprintf("%s%s-%d", labelPrefix, codename, now.Unix())
	if _, err := m.runGit(ctx, "tag", label, revision); err != nil {
		return nil, apperrors.SnapshotFailure("failed to create snapshot tag", err)
	}

	m.log.Info("created snapshot", zap.String("codename", codename), zap.String("label", label), zap.String("revision", revision))

	return &v1.Snapshot{
		ID:        label,
		Codename:  codename,
		Revision:  revision,
		Label:     label,
		CreatedAt: now,
	}, nil
}

// Restore resets the working tree to the snapshot's recorded revision,
// first stashing any uncommitted state so it is not silently lost.
func (m *Manager) Restore(ctx context.Context, snap *v1.Snapshot) error {
	clean, err := m.isClean(ctx)
	if err != nil {
		return apperrors.SnapshotFailure("failed to check working tree status", err)
	}
	if !clean {
		stashMsg := fmt.Sprintf("orchestra-pre-restore-%s", snap.Codename)
		if _, err := m.runGit(ctx, "stash", "push", "-u", "-m", stashMsg); err != nil {
			return apperrors.SnapshotFailure("failed to stash uncommitted changes before restore", err)
		}
	}

	if _, err := m.runGit(ctx, "reset", "--hard", snap.Revision); err != nil {
		return apperrors.SnapshotFailure("failed to reset to snapshot revision", err)
	}

	m.log.Info("restored snapshot", zap.String("codename", snap.Codename), zap.String("revision", snap.Revision))
	return nil
}

// Commit stages changedFiles and commits them with a message that
// references codename.
func (m *Manager) Commit(ctx context.Context, codename, message string, changedFiles []string) error {
	if len(changedFiles) == 0 {
		return apperrors.SnapshotFailure("no changed files to commit", nil)
	}

	args := append([]string{"add"}, changedFiles...)
	if _, err := m.runGit(ctx, args...); err != nil {
		return apperrors.SnapshotFailure("failed to stage changed files", err)
	}

	commitMsg := fmt.Sprintf("%s: %s", codename, message)
	if _, err := m.runGit(ctx, "commit", "-m", commitMsg); err != nil {
		return apperrors.SnapshotFailure("failed to commit changes", err)
	}

	m.log.Info("committed update", zap.String("codename", codename), zap.Int("files", len(changedFiles)))
	return nil
}

// Push pushes the current branch state to origin/branch.
func (m *Manager) Push(ctx context.Context, branch string) error {
	if _, err := m.runGit(ctx, "push", "origin", branch); err != nil {
		return apperrors.SnapshotFailure("failed to push branch", err)
	}
	return nil
}

// Cleanup removes snapshot tags older than retentionDays, returning the
// count removed.
func (m *Manager) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	output, err := m.runGit(ctx, "tag", "--list", labelPrefix+"*")
	if err != nil {
		return 0, apperrors.SnapshotFailure("failed to list snapshot tags", err)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, tag := range strings.Split(strings.TrimSpace(output), "\n") {
		if tag == "" {
			continue
		}
		ts, ok := timestampFromLabel(tag)
		if !ok || ts.After(cutoff) {
			continue
		}
		if _, err := m.runGit(ctx, "tag", "-d", tag); err != nil {
			m.log.Warn("failed to delete stale snapshot tag", zap.String("tag", tag), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

func timestampFromLabel(tag string) (time.Time, bool) {
	idx := strings.LastIndex(tag, "-")
	if idx < 0 {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(tag[idx+1:], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

func (m *Manager) isClean(ctx context.Context) (bool, error) {
	output, err := m.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) == "", nil
}

func (m *Manager) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(output))
	}
	return string(output), nil
}
