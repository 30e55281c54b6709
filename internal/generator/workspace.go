package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftcode/orchestra/internal/common/logger"
)

// WorkspaceManager owns the scratch directories generator invocations
// run in, and reclaims them after use or after they age out.
type WorkspaceManager struct {
	root   string
	maxAge time.Duration
	log    *logger.Logger
	seq    uint64
}

// NewWorkspaceManager creates a manager rooted at root. The directory
// is created if it does not already exist.
func NewWorkspaceManager(root string, maxAge time.Duration, log *logger.Logger) (*WorkspaceManager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &WorkspaceManager{root: root, maxAge: maxAge, log: log}, nil
}

// Create allocates a fresh scratch directory for one invocation.
func (w *WorkspaceManager) Create() (string, error) {
	n := atomic.AddUint64(&w.seq, 1)
	dir := filepath.Join(w.root, fmt.Sprintf("%d-%s", n, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// Release removes a scratch directory after its artifact has been
// captured. Errors are logged, not returned: a leaked scratch dir is
// reclaimed by the next sweep regardless.
func (w *WorkspaceManager) Release(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		w.log.Warn("failed to remove generator workspace", zap.Error(err), zap.String("dir", dir))
	}
}

// Sweep removes scratch directories under root older than maxAge,
// catching anything abandoned by a crashed or cancelled invocation.
func (w *WorkspaceManager) Sweep() int {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		w.log.Warn("failed to read workspace root", zap.Error(err))
		return 0
	}

	cutoff := time.Now().Add(-w.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(w.root, e.Name())
		if err := os.RemoveAll(path); err == nil {
			removed++
		}
	}
	if removed > 0 {
		w.log.Info("swept stale generator workspaces", zap.Int("removed", removed))
	}
	return removed
}

// RunSweepLoop sweeps immediately and then on every tick of interval,
// until ctx is cancelled. Intended to run in its own goroutine.
func (w *WorkspaceManager) RunSweepLoop(done <-chan struct{}, interval time.Duration) {
	w.Sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}
