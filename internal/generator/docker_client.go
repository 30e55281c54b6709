package generator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/driftcode/orchestra/internal/agent/docker"
	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/logger"
)

// DockerClient is the optional Generator transport: it runs the prompt
// inside a disposable container, mounting the invocation's workspace
// directory as the container's working directory and reading the
// artifact back from it once the container exits.
//
// Selected when generator.runtime = "docker".
type DockerClient struct {
	docker    *docker.Client
	cfg       config.GeneratorConfig
	limiter   *rate.Limiter
	workspace *WorkspaceManager
	log       *logger.Logger
	policy    backoffPolicy
}

// NewDockerClient constructs the Docker-backed generator client.
func NewDockerClient(dockerCfg config.DockerConfig, genCfg config.GeneratorConfig, workspace *WorkspaceManager, log *logger.Logger) (*DockerClient, error) {
	cli, err := docker.NewClient(dockerCfg, log)
	if err != nil {
		return nil, fmt.Errorf("generator: docker client: %w", err)
	}

	ratePerMinute := genCfg.RatePerMinute
	if ratePerMinute <= 0 {
		ratePerMinute = 50
	}
	baseMillis := genCfg.RetryBaseMillis
	if baseMillis <= 0 {
		baseMillis = 100
	}
	capSeconds := genCfg.RetryCapSeconds
	if capSeconds <= 0 {
		capSeconds = 30
	}

	return &DockerClient{
		docker:    cli,
		cfg:       genCfg,
		limiter:   rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute),
		workspace: workspace,
		log:       log,
		policy: backoffPolicy{
			base: time.Duration(baseMillis) * time.Millisecond,
			cap:  time.Duration(capSeconds) * time.Second,
		},
	}, nil
}

const (
	promptFileName   = "prompt.txt"
	artifactFileName = "artifact.txt"
)

// Execute implements Generator.
func (c *DockerClient) Execute(ctx context.Context, prompt string) (*Artifact, error) {
	maxAttempts := c.cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return withRetry(ctx, c.policy, maxAttempts, func(attempt int) (*Artifact, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Failure{Kind: FailureTimeout, Err: err}
		}

		dir, err := c.workspace.Create()
		if err != nil {
			return nil, &Failure{Kind: FailureNetworkError, Err: err}
		}

		artifact, err := c.runOnce(ctx, dir, prompt)
		if err != nil {
			c.workspace.Release(dir)
			c.log.Warn("docker generator invocation failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		return artifact, nil
	})
}

func (c *DockerClient) runOnce(ctx context.Context, dir, prompt string) (*Artifact, error) {
	promptPath := filepath.Join(dir, promptFileName)
	if err := os.WriteFile(promptPath, []byte(prompt), 0o644); err != nil {
		return nil, &Failure{Kind: FailureNetworkError, Err: err}
	}

	containerID, err := c.docker.CreateContainer(ctx, docker.ContainerConfig{
		Name:       "orchestra-gen-" + filepath.Base(dir),
		Image:      c.cfg.DockerImage,
		Cmd:        []string{"/bin/sh", "-c", fmt.Sprintf("generate < /workspace/%s > /workspace/%s", promptFileName, artifactFileName)},
		WorkingDir: "/workspace",
		Mounts: []docker.MountConfig{
			{Source: dir, Target: "/workspace", ReadOnly: false},
		},
		AutoRemove: false,
	})
	if err != nil {
		return nil, &Failure{Kind: FailureNetworkError, Err: err}
	}
	defer c.docker.RemoveContainer(context.Background(), containerID, true)

	if err := c.docker.StartContainer(ctx, containerID); err != nil {
		return nil, &Failure{Kind: FailureNetworkError, Err: err}
	}

	exitCode, err := c.docker.WaitContainer(ctx, containerID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Failure{Kind: FailureTimeout, Err: err}
		}
		return nil, &Failure{Kind: FailureNetworkError, Err: err}
	}
	if exitCode != 0 {
		logs, _ := c.docker.GetContainerLogs(ctx, containerID, false, "200")
		body := ""
		if logs != nil {
			defer logs.Close()
			raw, _ := io.ReadAll(logs)
			body = string(raw)
		}
		return nil, &Failure{Kind: FailureUpstream, Status: int(exitCode), Body: body}
	}

	out, err := os.ReadFile(filepath.Join(dir, artifactFileName))
	if err != nil {
		return nil, &Failure{Kind: FailureUpstream, Err: err}
	}
	return &Artifact{Content: string(out), Workspace: dir}, nil
}

// Available implements Generator without consuming a rate-limit token.
func (c *DockerClient) Available(ctx context.Context) bool {
	return c.docker.Ping(ctx) == nil
}

// RateStatus implements Generator.
func (c *DockerClient) RateStatus() RateStatus {
	return RateStatus{
		RequestsPerMinute: int(c.limiter.Limit() * 60),
		TokensAvailable:   c.limiter.Tokens(),
	}
}
