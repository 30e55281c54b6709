// Package pm implements the project-analysis Agent: turns a repository
// or feature analysis request into a generator prompt and returns the
// generator's findings as the task result, unparsed.
package pm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/driftcode/orchestra/internal/generator"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

const temperature = 0.3

const persona = "You are a principal engineer performing a project analysis. Be specific, cite files, and prioritize findings by impact."

// Agent implements internal/agent.Agent for v1.TaskKindProjectAnalysis.
type Agent struct {
	gen generator.Generator
}

// New constructs a project-analysis Agent backed by gen.
func New(gen generator.Generator) *Agent {
	return &Agent{gen: gen}
}

// Kind implements agent.Agent.
func (a *Agent) Kind() v1.TaskKind { return v1.TaskKindProjectAnalysis }

// Execute implements agent.Agent.
func (a *Agent) Execute(ctx context.Context, task *v1.Task) (*v1.TaskResult, error) {
	prompt := composePrompt(task)

	artifact, err := a.gen.Execute(ctx, prompt)
	if err != nil {
		return &v1.TaskResult{
			TaskID:      task.ID,
			Success:     false,
			Error:       err.Error(),
			CompletedAt: time.Now(),
		}, nil
	}

	return &v1.TaskResult{
		TaskID:  task.ID,
		Success: true,
		Output:  artifact.Content,
		Metadata: map[string]interface{}{
			"temperature": temperature,
			"workspace":   artifact.Workspace,
		},
		CompletedAt: time.Now(),
	}, nil
}

func composePrompt(task *v1.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", persona)
	fmt.Fprintf(&b, "Temperature: %.2f\n", temperature)
	b.WriteString("\nAnalysis request:\n")
	b.WriteString(task.Content)

	if len(task.Context) > 0 {
		b.WriteString("\n\nContext:\n")
		keys := make([]string, 0, len(task.Context))
		for k := range task.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, task.Context[k])
		}
	}

	b.WriteString("\n\nRespond with a structured findings list ordered by impact.")
	return b.String()
}
