package developer

import "testing"

func TestDetectLanguageExplicitKeyword(t *testing.T) {
	d := DetectLanguage("create a todo-list HTTP service in python using FastAPI", nil)
	if d.Language != "python" || d.Confidence < minConfidence {
		t.Fatalf("expected confident python detection, got %+v", d)
	}
}

func TestDetectLanguageFrameworkKeyword(t *testing.T) {
	d := DetectLanguage("scaffold a service with gin routes", nil)
	if d.Language != "go" {
		t.Fatalf("expected go from framework keyword, got %+v", d)
	}
}

func TestDetectLanguageAmbiguousContent(t *testing.T) {
	d := DetectLanguage("build me a REST API", nil)
	if d.Confidence >= minConfidence {
		t.Fatalf("expected low-confidence detection for ambiguous content, got %+v", d)
	}
}

func TestDetectLanguageFromContextHint(t *testing.T) {
	d := DetectLanguage("build me a REST API", map[string]string{"language": "Rust"})
	if d.Language != "rust" || d.Source != "context" {
		t.Fatalf("expected context-derived rust detection, got %+v", d)
	}
}

func TestIsSystemsLanguage(t *testing.T) {
	for _, lang := range []string{"rust", "go", "c", "c++"} {
		if !IsSystemsLanguage(lang) {
			t.Errorf("expected %s to be a systems language", lang)
		}
	}
	for _, lang := range []string{"python", "javascript", ""} {
		if IsSystemsLanguage(lang) {
			t.Errorf("expected %s not to be a systems language", lang)
		}
	}
}
