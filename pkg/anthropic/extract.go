package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractRequest describes one typed extraction call: free-form instructions
// plus page content, answered as a single JSON object. Fields the model cannot
// find in the content come back null and unmarshal to zero values, so callers
// always receive a partial result rather than an error for sparse pages.
type ExtractRequest struct {
	Model        string
	MaxTokens    int64
	System       []SystemBlock
	Instructions string
	Content      string
	ImageURL     string
	Temperature  *float64
}

// ExtractTyped sends an extraction request and unmarshals the model's JSON
// answer into T. The content opens the user message and the instructions
// follow it, so two requests over the same page text share one prompt
// prefix and the second can hit the cache.
func ExtractTyped[T any](ctx context.Context, client Client, req ExtractRequest) (T, TokenUsage, error) {
	var zero T

	var sb strings.Builder
	if req.Content != "" {
		sb.WriteString("<content>\n")
		sb.WriteString(req.Content)
		sb.WriteString("\n</content>\n\n")
	}
	sb.WriteString(req.Instructions)
	sb.WriteString("\n\nRespond with a single JSON object and nothing else. ")
	sb.WriteString("Use null for any field you cannot find in the content. Never invent values.")

	resp, err := client.CreateMessage(ctx, MessageRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages: []Message{
			{Role: "user", Content: sb.String(), ImageURL: req.ImageURL},
		},
		Temperature: req.Temperature,
	})
	if err != nil {
		return zero, TokenUsage{}, eris.Wrap(err, "anthropic: extract")
	}

	var out T
	if err := json.Unmarshal([]byte(CleanJSON(resp.Text())), &out); err != nil {
		return zero, resp.Usage, eris.Wrap(err, "anthropic: extract: parse answer")
	}

	return out, resp.Usage, nil
}

// CleanJSON strips markdown code fences and any prose surrounding the first
// top-level JSON object in a model answer.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}
