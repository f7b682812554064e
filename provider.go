package stockagent

import (
	"fmt"
	"strings"
)

// Provider identifies a language model backend.
type Provider string

// String returns the provider identifier.
func (p Provider) String() string { return string(p) }

// Supported providers.
const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// ParseProvider converts a configuration value into a Provider.
// An empty value selects OpenAI, which also covers OpenAI-compatible gateways.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProviderOpenAI, nil
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider %q (must be openai, anthropic or google)", s)
	}
}
