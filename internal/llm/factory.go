package llm

import (
	"fmt"
	"time"
)

// NewProvider builds a named provider. Supported names: openai, anthropic,
// mistral and mock. Construction fails when the provider's API key
// environment variable is unset, so misconfigured providers drop out of
// the chain at startup rather than burning their breakers at runtime.
func NewProvider(name, apiKeyEnv, model string, timeout time.Duration) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(apiKeyEnv, model)
	case "anthropic":
		return NewAnthropicProvider(apiKeyEnv, model, timeout)
	case "mistral":
		return NewMistralProvider(apiKeyEnv, model, timeout)
	case "mock":
		return NewMockProvider("mock"), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
