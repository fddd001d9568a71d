package anthropic

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testAnswer struct {
	Brand      string   `json:"brand"`
	Confidence *float64 `json:"confidence"`
	Colors     []string `json:"colors"`
}

func textResponse(text string) *MessageResponse {
	return &MessageResponse{
		Content: []ContentBlock{{Type: "text", Text: text}},
		Usage:   TokenUsage{InputTokens: 200, OutputTokens: 40},
	}
}

func TestExtractTyped_ParsesFencedAnswer(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("```json\n{\"brand\": \"Bosch\", \"confidence\": 0.9, \"colors\": [\"blue\"]}\n```"), nil)

	out, usage, err := ExtractTyped[testAnswer](context.Background(), mc, ExtractRequest{
		Model:        "claude-haiku-4-5-20251001",
		MaxTokens:    512,
		Instructions: "Identify the brand.",
		Content:      "Bosch GSR 12V drill",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bosch", out.Brand)
	require.NotNil(t, out.Confidence)
	assert.InDelta(t, 0.9, *out.Confidence, 0.001)
	assert.Equal(t, []string{"blue"}, out.Colors)
	assert.Equal(t, int64(200), usage.InputTokens)

	mc.AssertExpectations(t)
}

func TestExtractTyped_NullFieldsTolerated(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"brand": null, "confidence": null, "colors": null}`), nil)

	out, _, err := ExtractTyped[testAnswer](context.Background(), mc, ExtractRequest{
		Model:        "claude-haiku-4-5-20251001",
		MaxTokens:    512,
		Instructions: "Identify the brand.",
		Content:      "no brand here",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Brand)
	assert.Nil(t, out.Confidence)
	assert.Nil(t, out.Colors)
}

func TestExtractTyped_ProseAroundJSON(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("Here is the extraction:\n{\"brand\": \"Makita\"}\nLet me know if you need more."), nil)

	out, _, err := ExtractTyped[testAnswer](context.Background(), mc, ExtractRequest{
		Model:        "claude-haiku-4-5-20251001",
		MaxTokens:    512,
		Instructions: "Identify the brand.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Makita", out.Brand)
}

func TestExtractTyped_UnparseableAnswer(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("I could not find any structured data."), nil)

	_, usage, err := ExtractTyped[testAnswer](context.Background(), mc, ExtractRequest{
		Model:        "claude-haiku-4-5-20251001",
		MaxTokens:    512,
		Instructions: "Identify the brand.",
	})
	require.Error(t, err)
	// usage is still reported so failed parses are costed
	assert.Equal(t, int64(200), usage.InputTokens)
}

func TestExtractTyped_ContentLeadsUserMessage(t *testing.T) {
	mc := new(MockClient)
	var captured MessageRequest
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(MessageRequest)
		}).
		Return(textResponse(`{"brand": "Makita"}`), nil)

	const page = "# Makita DDF485\nCordless driver drill, 18V."
	_, _, err := ExtractTyped[testAnswer](context.Background(), mc, ExtractRequest{
		Model:        "claude-sonnet-4-5-20250929",
		MaxTokens:    512,
		Instructions: "Identify the brand.",
		Content:      page,
	})
	require.NoError(t, err)

	// Two passes over the same page must share one prompt prefix, so the
	// page content opens the message and the pass instructions follow it.
	require.Len(t, captured.Messages, 1)
	body := captured.Messages[0].Content
	assert.True(t, strings.HasPrefix(body, "<content>\n"+page))
	assert.Greater(t, strings.Index(body, "Identify the brand."), strings.Index(body, "</content>"))
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced no lang", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading prose", "Sure:\n{\"a\": 1}", `{"a": 1}`},
		{"trailing prose", "{\"a\": 1}\nDone.", `{"a": 1}`},
		{"array answer", "[1, 2, 3] is the result", `[1, 2, 3]`},
		{"no json", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.in))
		})
	}
}
