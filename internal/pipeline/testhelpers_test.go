package pipeline

import (
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/cost"
	"github.com/sells-group/enrich-cli/internal/events"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

// testMocks bundles every collaborator mock for one pipeline under test.
type testMocks struct {
	store      *mockStore
	anthropic  *mockAnthropicClient
	firecrawl  *mockFirecrawlClient
	jina       *mockJinaClient
	perplexity *mockPerplexityClient
}

func testConfig() *config.Config {
	return &config.Config{
		Anthropic: config.AnthropicConfig{
			HaikuModel:  "claude-haiku-4-5-20251001",
			SonnetModel: "claude-sonnet-4-5-20250929",
			MaxTokens:   4096,
		},
		Triage:    config.TriageConfig{BrandConfidenceThreshold: 0.7, MaxSearchResults: 15},
		Extract:   config.ExtractConfig{MaxPages: 5, MaxThirdPartyCache: 5, TruncateChars: 20000},
		Images:    config.ImageConfig{MinBytes: 100, MaxBytes: 10_000_000, KeepCount: 8, DiscoverCap: 20, ProbeTimeoutSecs: 2, ProbeConcurrency: 4},
		Documents: config.DocumentConfig{MaxDocuments: 10},
		Validation: config.ValidateConfig{
			WeightShortfallPct: 0.05,
			WeightShortfallKg:  0.1,
		},
	}
}

func newTestPipeline() (*Pipeline, *testMocks) {
	m := &testMocks{
		store:      &mockStore{},
		anthropic:  &mockAnthropicClient{},
		firecrawl:  &mockFirecrawlClient{},
		jina:       &mockJinaClient{},
		perplexity: &mockPerplexityClient{},
	}
	pl := New(Deps{
		Config:     testConfig(),
		Store:      m.store,
		Anthropic:  m.anthropic,
		Firecrawl:  m.firecrawl,
		Jina:       m.jina,
		Perplexity: m.perplexity,
		Costs:      cost.NewCalculator(cost.DefaultRates()),
		Bus:        events.NewBus(),
	})
	return pl, m
}

// textResponse wraps a JSON payload as a model answer.
func textResponse(payload string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: payload}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

// instructionsContain matches a CreateMessage request whose user message
// carries the given fragment, distinguishing the pipeline's LLM calls.
func instructionsContain(fragment string) any {
	return mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		for _, msg := range req.Messages {
			if strings.Contains(msg.Content, fragment) {
				return true
			}
		}
		return false
	})
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(s string) *string     { return &s }

func testProduct() *model.Product {
	return &model.Product{
		ID:     "p-1",
		EAN:    "3838909123456",
		Name:   "Akumulatorski vijačnik 18V",
		Brand:  "Makita",
		Status: model.StatusPending,
	}
}
