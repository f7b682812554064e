package google

import (
	"encoding/json"

	ai "github.com/spetersoncode/stockagent"
	"google.golang.org/genai"
)

// convertMessages maps turns to Gemini contents. System turns become the
// system instruction; native tool results become function responses keyed
// by tool name.
func convertMessages(messages []ai.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var system *genai.Content

	for _, msg := range messages {
		if msg.Role == ai.RoleSystem {
			if msg.Content == "" {
				continue
			}
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: msg.Content})
			continue
		}

		role := "user"
		if msg.Role == ai.RoleAssistant {
			role = "model"
		}

		var parts []*genai.Part
		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Arguments), &args)
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
			})
		}
		if msg.Role == ai.RoleTool {
			for _, tr := range msg.ToolResults {
				var result map[string]any
				if err := json.Unmarshal([]byte(tr.Content), &result); err != nil {
					result = map[string]any{"result": tr.Content}
				}
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{ID: tr.ToolCallID, Name: tr.Name, Response: result},
				})
			}
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return contents, system
}
