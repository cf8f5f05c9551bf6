package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIChatClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// OpenAIRescorer asks a chat model for a sentiment score per title.
type OpenAIRescorer struct {
	client openAIChatClient
	model  string
}

// NewOpenAIRescorer returns nil when apiKey is empty.
func NewOpenAIRescorer(apiKey string, model string) *OpenAIRescorer {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIRescorer{
		client: &openAIClient{client: client},
		model:  model,
	}
}

func (s *OpenAIRescorer) RescoreBatch(ctx context.Context, titles []string) ([]Rescore, error) {
	if s == nil || s.client == nil || len(titles) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, title := range titles {
		fmt.Fprintf(&sb, "%d. %s\n", i, strings.ReplaceAll(title, "\n", " "))
	}

	systemPrompt := "You score the sentiment of crypto headlines towards the asset they mention. Return ONLY a JSON array. Each object requires: index (int, as numbered in the input) and score (-1..1). No markdown."
	completion, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage("Headlines:\n" + sb.String()),
		},
	})
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("empty rescorer completion")
	}

	raw := trimCodeFence(completion.Choices[0].Message.Content)
	var parsed []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse rescorer json: %w", err)
	}

	seen := make(map[int]struct{}, len(parsed))
	out := make([]Rescore, 0, len(parsed))
	for _, row := range parsed {
		if row.Index < 0 || row.Index >= len(titles) {
			continue
		}
		if _, dup := seen[row.Index]; dup {
			continue
		}
		seen[row.Index] = struct{}{}
		out = append(out, Rescore{Index: row.Index, Score: clamp(row.Score, -1, 1), Model: "llm:" + s.model})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func trimCodeFence(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "```") {
		v = strings.TrimPrefix(v, "```")
		v = strings.TrimSpace(v)
		if strings.HasPrefix(strings.ToLower(v), "json") {
			v = strings.TrimSpace(v[4:])
		}
		v = strings.TrimSuffix(v, "```")
		v = strings.TrimSpace(v)
	}
	return v
}

type openAIClient struct {
	client openai.Client
}

func (c *openAIClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
