package developer

import (
	"context"
	"errors"
	"testing"

	"github.com/driftcode/orchestra/internal/generator"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

type fakeGenerator struct {
	calls    int
	artifact *generator.Artifact
	err      error
}

func (f *fakeGenerator) Execute(ctx context.Context, prompt string) (*generator.Artifact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.artifact, nil
}
func (f *fakeGenerator) Available(ctx context.Context) bool        { return true }
func (f *fakeGenerator) RateStatus() generator.RateStatus          { return generator.RateStatus{} }

func TestDeveloperAgentSimpleTask(t *testing.T) {
	gen := &fakeGenerator{artifact: &generator.Artifact{Content: "package main\n"}}
	a := New(gen)

	task := &v1.Task{ID: "t1", Kind: v1.TaskKindDeveloperCodeGen, Content: "create a todo-list HTTP service in python using FastAPI"}
	result, err := a.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.Output == "" {
		t.Fatalf("expected successful non-empty result, got %+v", result)
	}
	if gen.calls != 1 {
		t.Errorf("expected 1 generator call, got %d", gen.calls)
	}
}

func TestDeveloperAgentRequiresClarification(t *testing.T) {
	gen := &fakeGenerator{artifact: &generator.Artifact{Content: "should not be reached"}}
	a := New(gen)

	task := &v1.Task{ID: "t2", Kind: v1.TaskKindDeveloperCodeGen, Content: "build me a REST API"}
	result, err := a.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Metadata["requires_clarification"] != true {
		t.Fatalf("expected requires_clarification metadata, got %+v", result.Metadata)
	}
	if gen.calls != 0 {
		t.Errorf("expected no generator call when clarification is required, got %d", gen.calls)
	}
}

func TestDeveloperAgentGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream down")}
	a := New(gen)

	task := &v1.Task{ID: "t3", Kind: v1.TaskKindDeveloperCodeGen, Content: "write a rust cli"}
	result, err := a.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute should not return a transport error: %v", err)
	}
	if result.Success || result.Error == "" {
		t.Fatalf("expected a failed result with an error message, got %+v", result)
	}
}

func TestTemperatureForSystemsLanguage(t *testing.T) {
	if got := temperatureFor("rust", "write a rust service"); got != 0.1 {
		t.Errorf("expected 0.1 for systems language, got %f", got)
	}
	if got := temperatureFor("python", "write a python service"); got != 0.2 {
		t.Errorf("expected 0.2 for dynamic language, got %f", got)
	}
	if got := temperatureFor("python", "please review this python module"); got != 0.1 {
		t.Errorf("expected 0.1 for review requests regardless of language, got %f", got)
	}
}
