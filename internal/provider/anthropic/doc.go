// Package anthropic implements stockagent.ChatProvider on top of the
// Anthropic Messages API.
//
// Tool results are sent as tool_result blocks inside user turns, and
// consecutive turns of the same role are merged so the request always
// alternates between user and assistant.
//
//	client := anthropic.New(os.Getenv("ANTHROPIC_API_KEY"))
//	stream, err := client.ChatStream(ctx, messages, ai.WithTools(tools))
package anthropic
