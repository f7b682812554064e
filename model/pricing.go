package model

import ai "github.com/spetersoncode/stockagent"

// longContextTokens is the prompt size above which long-context prices apply.
const longContextTokens = 200_000

// ChatPricing contains pricing per million tokens (USD) for chat models.
type ChatPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
	// InputPerMillionLong and OutputPerMillionLong apply when the prompt
	// exceeds 200K tokens. Zero means no long-context tier.
	InputPerMillionLong  float64
	OutputPerMillionLong float64
}

// HasLongContextPricing returns true if the model has tiered pricing for long context.
func (p ChatPricing) HasLongContextPricing() bool {
	return p.InputPerMillionLong > 0 || p.OutputPerMillionLong > 0
}

// CalculateCost returns the USD cost of usage under pricing.
func CalculateCost(usage ai.Usage, pricing ChatPricing) float64 {
	in, out := pricing.InputPerMillion, pricing.OutputPerMillion
	if pricing.HasLongContextPricing() && usage.InputTokens > longContextTokens {
		in, out = pricing.InputPerMillionLong, pricing.OutputPerMillionLong
	}
	return float64(usage.InputTokens)/1e6*in + float64(usage.OutputTokens)/1e6*out
}
