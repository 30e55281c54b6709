package developer

import "strings"

// LanguageDetection is the result of rule-based scoring over a task's
// content and prior context.
type LanguageDetection struct {
	Language   string
	Confidence float64
	Source     string // "explicit_keyword" | "framework_keyword" | "context" | "none"
}

// explicitKeywords map a language name to the literal tokens that, if
// present in task content, name that language directly.
var explicitKeywords = map[string][]string{
	"python":     {"python", "py3", "pyth"},
	"go":         {"golang", " go ", "go service", "go program"},
	"rust":       {"rust", "cargo"},
	"c++":        {"c++", "cpp"},
	"c":          {" c programming", "in c "},
	"javascript": {"javascript", "node.js", "nodejs"},
	"typescript": {"typescript"},
	"ruby":       {"ruby"},
	"java":       {"java "},
	"c#":         {"c#", "csharp", ".net"},
	"php":        {"php"},
}

// frameworkKeywords map a framework token to the language it implies.
var frameworkKeywords = map[string]string{
	"fastapi":  "python",
	"django":   "python",
	"flask":    "python",
	"express":  "javascript",
	"react":    "javascript",
	"next.js":  "typescript",
	"gin":      "go",
	"echo":     "go",
	"rails":    "ruby",
	"spring":   "java",
	"actix":    "rust",
	"tokio":    "rust",
	"asp.net":  "c#",
	"laravel":  "php",
}

var systemsLanguages = map[string]bool{
	"rust": true, "c++": true, "c": true, "go": true,
}

// DetectLanguage scores content and context against explicit-keyword,
// framework-keyword, and prior-context signals, and returns the
// highest-confidence language with its contributing source.
func DetectLanguage(content string, context map[string]string) LanguageDetection {
	lower := " " + strings.ToLower(content) + " "

	for lang, keywords := range explicitKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return LanguageDetection{Language: lang, Confidence: 0.95, Source: "explicit_keyword"}
			}
		}
	}

	for kw, lang := range frameworkKeywords {
		if strings.Contains(lower, kw) {
			return LanguageDetection{Language: lang, Confidence: 0.85, Source: "framework_keyword"}
		}
	}

	if hint, ok := context["language"]; ok && hint != "" {
		return LanguageDetection{Language: strings.ToLower(hint), Confidence: 0.6, Source: "context"}
	}

	return LanguageDetection{Language: "", Confidence: 0.0, Source: "none"}
}

// IsSystemsLanguage reports whether lang belongs to the systems-language
// temperature bucket (0.1), as opposed to the dynamic-language bucket
// (0.2).
func IsSystemsLanguage(lang string) bool {
	return systemsLanguages[lang]
}
