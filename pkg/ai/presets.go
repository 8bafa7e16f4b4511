package ai

import "strings"

// Preset is a well-known OpenAI-compatible endpoint.
type Preset struct {
	Kind         string
	BaseURL      string
	DefaultModel string
}

// Presets of supported providers, keyed by kind.
var Presets = map[string]Preset{
	"OPENAI":     {Kind: "OPENAI", BaseURL: "https://api.openai.com/v1", DefaultModel: "gpt-4o-mini"},
	"GEMINI":     {Kind: "GEMINI", BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", DefaultModel: "gemini-2.0-flash"},
	"GROQ":       {Kind: "GROQ", BaseURL: "https://api.groq.com/openai/v1", DefaultModel: "llama-3.1-8b-instant"},
	"MISTRAL":    {Kind: "MISTRAL", BaseURL: "https://api.mistral.ai/v1", DefaultModel: "mistral-small-latest"},
	"OPENROUTER": {Kind: "OPENROUTER", BaseURL: "https://openrouter.ai/api/v1", DefaultModel: "openai/gpt-4o-mini"},
}

// LookupPreset finds a preset by kind, case-insensitively.
func LookupPreset(kind string) (Preset, bool) {
	p, ok := Presets[strings.ToUpper(kind)]
	return p, ok
}
