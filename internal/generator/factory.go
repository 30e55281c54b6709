package generator

import (
	"fmt"
	"time"

	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/logger"
)

// New builds the configured Generator transport (HTTP by default, or
// the Docker-backed runner when generator.runtime = "docker") along
// with the WorkspaceManager it shares. Callers own starting the
// returned manager's sweep loop.
func New(cfg *config.Config, log *logger.Logger) (Generator, *WorkspaceManager, error) {
	retention := time.Duration(cfg.Workspace.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	ws, err := NewWorkspaceManager(cfg.Workspace.Root, retention, log)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Generator.Runtime {
	case "", "http":
		return NewHTTPClient(cfg.Generator, ws, log), ws, nil
	case "docker":
		cli, err := NewDockerClient(cfg.Docker, cfg.Generator, ws, log)
		if err != nil {
			return nil, nil, err
		}
		return cli, ws, nil
	default:
		return nil, nil, fmt.Errorf("generator: unknown runtime %q", cfg.Generator.Runtime)
	}
}
