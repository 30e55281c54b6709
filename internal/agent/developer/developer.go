// Package developer implements the Developer Agent: translates
// code-generation tasks into generator prompts, performing a
// language-inference pass before committing to a generator call.
package developer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/driftcode/orchestra/internal/generator"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

const minConfidence = 0.8

const persona = "You are a senior software engineer. Produce production-quality, idiomatic code with tests."

// Agent implements internal/agent.Agent for v1.TaskKindDeveloperCodeGen.
type Agent struct {
	gen generator.Generator
}

// New constructs a Developer Agent backed by gen.
func New(gen generator.Generator) *Agent {
	return &Agent{gen: gen}
}

// Kind implements agent.Agent.
func (a *Agent) Kind() v1.TaskKind { return v1.TaskKindDeveloperCodeGen }

// Execute implements agent.Agent.
func (a *Agent) Execute(ctx context.Context, task *v1.Task) (*v1.TaskResult, error) {
	detection := DetectLanguage(task.Content, task.Context)
	if detection.Confidence < minConfidence {
		return &v1.TaskResult{
			TaskID:  task.ID,
			Success: true,
			Metadata: map[string]interface{}{
				"requires_clarification": true,
				"detected_language":      detection.Language,
				"confidence":             detection.Confidence,
			},
			CompletedAt: time.Now(),
		}, nil
	}

	temperature := temperatureFor(detection.Language, task.Content)
	prompt := composePrompt(task, detection.Language, temperature)

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
			"detected_language": detection.Language,
			"confidence":        detection.Confidence,
			"temperature":       temperature,
			"workspace":         artifact.Workspace,
		},
		CompletedAt: time.Now(),
	}, nil
}

// temperatureFor selects the generation temperature by domain: systems
// languages run cold (0.1), dynamic languages run slightly warmer
// (0.2), and a review request (signalled by the word "review" in the
// task content) stays cold regardless of language.
func temperatureFor(language, content string) float64 {
	if strings.Contains(strings.ToLower(content), "review") {
		return 0.1
	}
	if IsSystemsLanguage(language) {
		return 0.1
	}
	return 0.2
}

func composePrompt(task *v1.Task, language string, temperature float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", persona)
	fmt.Fprintf(&b, "Temperature: %.2f\n", temperature)
	if language != "" {
		fmt.Fprintf(&b, "Target language: %s\n", language)
	}
	b.WriteString("\nTask:\n")
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

	b.WriteString("\n\nRespond with the complete set of changed files, the tests that cover them, and brief usage docs.")
	return b.String()
}
