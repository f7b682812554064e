package google

import (
	"errors"

	ai "github.com/spetersoncode/stockagent"
	"google.golang.org/genai"
)

// wrapError categorizes a GenAI error by status code. genai.APIError does
// not expose headers, so no Retry-After is available.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	return ai.NewStatusError(err.Error(), apiErr.Code, 0, err)
}
