package provider

import (
	"fmt"
	"os"
	"strings"
)

// Options configures provider construction.
type Options struct {
	// APIKey overrides the environment variable lookup.
	APIKey string

	// Model overrides the vendor default model.
	Model string
}

// vendor captures the static facts about an OpenAI-compatible backend.
type vendor struct {
	baseURL       string
	defaultModel  string
	keyEnvVar     string
	supportsTools bool
	keyOptional   bool
}

var vendors = map[string]vendor{
	"openai":     {baseURL: "", defaultModel: "gpt-4o", keyEnvVar: "OPENAI_API_KEY", supportsTools: true},
	"google":     {baseURL: baseURLGoogle, defaultModel: "gemini-2.0-flash", keyEnvVar: "GEMINI_API_KEY", supportsTools: true},
	"groq":       {baseURL: baseURLGroq, defaultModel: "llama-3.3-70b-versatile", keyEnvVar: "GROQ_API_KEY", supportsTools: false},
	"mistral":    {baseURL: baseURLMistral, defaultModel: "mistral-large-latest", keyEnvVar: "MISTRAL_API_KEY", supportsTools: true},
	"openrouter": {baseURL: baseURLOpenRouter, defaultModel: "openai/gpt-4o", keyEnvVar: "OPENROUTER_API_KEY", supportsTools: true},
	"together":   {baseURL: baseURLTogether, defaultModel: "meta-llama/Llama-3.3-70B-Instruct-Turbo", keyEnvVar: "TOGETHER_API_KEY", supportsTools: true},
	"ollama":     {baseURL: baseURLOllama, defaultModel: "llama3.2", keyEnvVar: "", supportsTools: false, keyOptional: true},
}

// New constructs a provider by vendor name. API keys come from Options or
// the vendor's environment variable.
func New(name string, opts Options) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	if name == "anthropic" {
		key := opts.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		return NewAnthropic(AnthropicConfig{APIKey: key, DefaultModel: opts.Model})
	}

	v, ok := vendors[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	key := opts.APIKey
	if key == "" && v.keyEnvVar != "" {
		key = os.Getenv(v.keyEnvVar)
	}
	if key == "" && !v.keyOptional {
		return nil, fmt.Errorf("%s: api key is required (set %s)", name, v.keyEnvVar)
	}

	model := opts.Model
	if model == "" {
		model = v.defaultModel
	}

	return NewOpenAICompatible(OpenAICompatibleConfig{
		Name:          name,
		APIKey:        key,
		BaseURL:       v.baseURL,
		DefaultModel:  model,
		SupportsTools: v.supportsTools,
	})
}
