package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicBackend implements Backend for Anthropic Claude
type anthropicBackend struct {
	client anthropic.Client
	cfg    Config
}

func newAnthropicBackend(apiKey string, cfg Config) *anthropicBackend {
	return &anthropicBackend{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		cfg:    cfg,
	}
}

func (b *anthropicBackend) Provider() string {
	return ProviderAnthropic
}

func (b *anthropicBackend) Config() Config {
	return b.cfg
}

// Complete makes an API call to Anthropic Claude
func (b *anthropicBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	anthropicMessages := []anthropic.MessageParam{}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			continue // System prompt handled separately
		}

		// Tool results
		if msg.Role == "tool" {
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
			continue
		}

		// Assistant messages with tool calls
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Parameters, tc.Name))
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
			continue
		}

		if msg.Role == "user" {
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		} else if msg.Role == "assistant" {
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})
		}
	}

	maxTokens := b.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.cfg.Model),
		Messages:  anthropicMessages,
		MaxTokens: int64(maxTokens),
	}

	if req.SystemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}

	if b.cfg.Temperature > 0 {
		reqParams.Temperature = anthropic.Float(b.cfg.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, tool := range req.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.InputSchema["properties"],
				},
			}

			if required, ok := tool.InputSchema["required"]; ok {
				if reqSlice, ok := required.([]interface{}); ok {
					strSlice := make([]string, len(reqSlice))
					for i, v := range reqSlice {
						strSlice[i], _ = v.(string)
					}
					toolParam.InputSchema.Required = strSlice
				} else if strSlice, ok := required.([]string); ok {
					toolParam.InputSchema.Required = strSlice
				}
			}

			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		reqParams.Tools = tools
	}

	response, err := b.client.Messages.New(ctx, reqParams)
	if err != nil {
		return nil, err
	}

	content := ""
	toolCalls := []ToolCall{}

	for _, block := range response.Content {
		switch blk := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += blk.Text
		case anthropic.ToolUseBlock:
			var params map[string]interface{}
			if err := json.Unmarshal([]byte(blk.JSON.Input.Raw()), &params); err != nil {
				return nil, fmt.Errorf("failed to parse tool input: %w", err)
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:         blk.ID,
				Name:       blk.Name,
				Parameters: params,
			})
		}
	}

	return &Response{
		Content:   content,
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}
