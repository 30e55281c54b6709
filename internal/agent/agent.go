// Package agent defines the Agent capability interface implemented by
// each registered task kind (developer code generation, project
// analysis, ...).
package agent

import (
	"context"

	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

// Agent turns a Task into a TaskResult. Implementations compose a
// kind-specific prompt from the task content and context, invoke a
// Generator, and translate the generator's artifact into a result.
type Agent interface {
	// Execute runs the task to completion or failure. The context
	// carries cancellation for cooperative abort at the agent's next
	// suspension point (typically the generator call).
	Execute(ctx context.Context, task *v1.Task) (*v1.TaskResult, error)

	// Kind identifies which TaskKind this agent instance serves.
	Kind() v1.TaskKind
}

// Factory produces a new Agent capability instance on demand. The agent
// registry calls Factory once per dispatched task.
type Factory func() Agent
