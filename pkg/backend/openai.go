package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiBackend implements Backend for OpenAI
type openaiBackend struct {
	client openai.Client
	cfg    Config
}

func newOpenAIBackend(apiKey string, cfg Config) *openaiBackend {
	return &openaiBackend{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		cfg:    cfg,
	}
}

func (b *openaiBackend) Provider() string {
	return ProviderOpenAI
}

func (b *openaiBackend) Config() Config {
	return b.cfg
}

// Complete makes an API call to OpenAI
func (b *openaiBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			continue // Already handled above
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				toolCalls := []openai.ChatCompletionMessageToolCall{}
				for _, tc := range msg.ToolCalls {
					paramsJSON, err := json.Marshal(tc.Parameters)
					if err != nil {
						return nil, fmt.Errorf("failed to marshal tool parameters: %w", err)
					}

					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      tc.Name,
							Arguments: string(paramsJSON),
						},
					})
				}

				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		case "tool":
			messages = append(messages, openai.ToolMessage(msg.ToolCallID, msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(b.cfg.Model),
		Messages: messages,
	}

	if b.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(b.cfg.MaxTokens))
	}

	if b.cfg.Temperature > 0 {
		params.Temperature = openai.Float(b.cfg.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := []openai.ChatCompletionToolParam{}
		for _, tool := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	response, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]

	toolCalls := []ToolCall{}
	for _, tc := range choice.Message.ToolCalls {
		var callParams map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &callParams); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}

		toolCalls = append(toolCalls, ToolCall{
			ID:         tc.ID,
			Name:       tc.Function.Name,
			Parameters: callParams,
		})
	}

	return &Response{
		Content:   choice.Message.Content,
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}
