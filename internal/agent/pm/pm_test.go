package pm

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
func (f *fakeGenerator) Available(ctx context.Context) bool { return true }
func (f *fakeGenerator) RateStatus() generator.RateStatus   { return generator.RateStatus{} }

func TestProjectAnalysisAgentSuccess(t *testing.T) {
	gen := &fakeGenerator{artifact: &generator.Artifact{Content: "1. missing test coverage in billing\n"}}
	a := New(gen)

	task := &v1.Task{ID: "t1", Kind: v1.TaskKindProjectAnalysis, Content: "analyze the billing module for risk"}
	result, err := a.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.Output == "" {
		t.Fatalf("expected successful non-empty result, got %+v", result)
	}
	if result.Metadata["temperature"] != 0.3 {
		t.Errorf("expected analysis temperature 0.3, got %v", result.Metadata["temperature"])
	}
	if gen.calls != 1 {
		t.Errorf("expected 1 generator call, got %d", gen.calls)
	}
}

func TestProjectAnalysisAgentGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream down")}
	a := New(gen)

	task := &v1.Task{ID: "t2", Kind: v1.TaskKindProjectAnalysis, Content: "analyze module X"}
	result, err := a.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute should not return a transport error: %v", err)
	}
	if result.Success || result.Error == "" {
		t.Fatalf("expected a failed result with an error message, got %+v", result)
	}
}

func TestKind(t *testing.T) {
	a := New(&fakeGenerator{})
	if a.Kind() != v1.TaskKindProjectAnalysis {
		t.Errorf("expected ProjectAnalysis kind, got %v", a.Kind())
	}
}
