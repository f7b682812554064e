package model

import (
	"strings"

	ai "github.com/spetersoncode/stockagent"
)

// ChatModel represents a chat/completion model from any provider.
type ChatModel struct {
	id       string
	provider ai.Provider
	pricing  ChatPricing
}

// String returns the API identifier for this model.
func (m ChatModel) String() string { return m.id }

// Provider returns which provider this model belongs to.
func (m ChatModel) Provider() ai.Provider { return m.provider }

// Pricing returns the pricing for this model.
func (m ChatModel) Pricing() ChatPricing { return m.pricing }

// Cost returns the USD cost of usage on this model.
func (m ChatModel) Cost(usage ai.Usage) float64 {
	return CalculateCost(usage, m.pricing)
}

// Qwen models served through DashScope's OpenAI-compatible endpoint.
// International pricing.
var (
	QwenFlash = ChatModel{id: "qwen-flash", provider: ai.ProviderOpenAI, pricing: ChatPricing{InputPerMillion: 0.05, OutputPerMillion: 0.40}}
	QwenPlus  = ChatModel{id: "qwen-plus", provider: ai.ProviderOpenAI, pricing: ChatPricing{InputPerMillion: 0.40, OutputPerMillion: 1.20}}
	QwenMax   = ChatModel{id: "qwen-max", provider: ai.ProviderOpenAI, pricing: ChatPricing{InputPerMillion: 1.60, OutputPerMillion: 6.40}}
)

// OpenAI models.
var (
	GPT5     = ChatModel{id: "gpt-5", provider: ai.ProviderOpenAI, pricing: ChatPricing{InputPerMillion: 1.25, OutputPerMillion: 10.00}}
	GPT5Mini = ChatModel{id: "gpt-5-mini", provider: ai.ProviderOpenAI, pricing: ChatPricing{InputPerMillion: 0.25, OutputPerMillion: 2.00}}
	GPT5Nano = ChatModel{id: "gpt-5-nano", provider: ai.ProviderOpenAI, pricing: ChatPricing{InputPerMillion: 0.05, OutputPerMillion: 0.40}}
)

// Anthropic Claude models.
var (
	ClaudeOpus45   = ChatModel{id: "claude-opus-4-5", provider: ai.ProviderAnthropic, pricing: ChatPricing{InputPerMillion: 5.00, OutputPerMillion: 25.00}}
	ClaudeSonnet45 = ChatModel{id: "claude-sonnet-4-5", provider: ai.ProviderAnthropic, pricing: ChatPricing{InputPerMillion: 3.00, OutputPerMillion: 15.00}}
	ClaudeHaiku45  = ChatModel{id: "claude-haiku-4-5", provider: ai.ProviderAnthropic, pricing: ChatPricing{InputPerMillion: 1.00, OutputPerMillion: 5.00}}
)

// Google Gemini models.
var (
	Gemini25Pro       = ChatModel{id: "gemini-2.5-pro", provider: ai.ProviderGoogle, pricing: ChatPricing{InputPerMillion: 1.25, OutputPerMillion: 10.00, InputPerMillionLong: 2.50, OutputPerMillionLong: 15.00}}
	Gemini25Flash     = ChatModel{id: "gemini-2.5-flash", provider: ai.ProviderGoogle, pricing: ChatPricing{InputPerMillion: 0.30, OutputPerMillion: 2.50}}
	Gemini25FlashLite = ChatModel{id: "gemini-2.5-flash-lite", provider: ai.ProviderGoogle, pricing: ChatPricing{InputPerMillion: 0.10, OutputPerMillion: 0.40}}
)

var catalogue = []ChatModel{
	QwenFlash, QwenPlus, QwenMax,
	GPT5, GPT5Mini, GPT5Nano,
	ClaudeOpus45, ClaudeSonnet45, ClaudeHaiku45,
	Gemini25Pro, Gemini25Flash, Gemini25FlashLite,
}

// Lookup finds a model by API identifier. Dated snapshots such as
// "claude-sonnet-4-5-20250929" resolve to their alias.
func Lookup(id string) (ChatModel, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	var best ChatModel
	for _, m := range catalogue {
		if m.id == id {
			return m, true
		}
		if strings.HasPrefix(id, m.id+"-") && len(m.id) > len(best.id) {
			best = m
		}
	}
	return best, best.id != ""
}
