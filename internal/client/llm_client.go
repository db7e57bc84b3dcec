package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourorg/market-insights/internal/config"

	"github.com/cloudwego/eino-ext/components/model/openai"
	acl "github.com/cloudwego/eino-ext/libs/acl/openai"
	"github.com/getkin/kin-openapi/openapi3"
)

// NewChatModel creates the OpenAI chat model used for market insights.
// Replies are constrained to the insights JSON schema.
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (*openai.ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is not set (OPENAI_API_KEY or OPENAI_API_KEY_FILE)")
	}

	cm, err := openai.NewChatModel(ctx, chatModelConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return cm, nil
}

func chatModelConfig(cfg config.LLMConfig) *openai.ChatModelConfig {
	return &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		ResponseFormat: &acl.ChatCompletionResponseFormat{
			Type: acl.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &acl.ChatCompletionResponseFormatJSONSchema{
				Name:        "insights_response",
				Description: "Market insights grouped by datetime",
				Schema:      insightsSchema(),
			},
		},
	}
}

// insightsSchema describes {count, items: [{datetime, insights: [{message, sentiment}]}]}
func insightsSchema() *openapi3.Schema {
	insight := openapi3.NewObjectSchema().
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("sentiment", openapi3.NewStringSchema().WithEnum("positive", "neutral", "negative")).
		WithoutAdditionalProperties()
	insight.Required = []string{"message", "sentiment"}

	item := openapi3.NewObjectSchema().
		WithProperty("datetime", openapi3.NewDateTimeSchema()).
		WithProperty("insights", openapi3.NewArraySchema().WithItems(insight).WithMinItems(3).WithMaxItems(5)).
		WithoutAdditionalProperties()
	item.Required = []string{"datetime", "insights"}

	response := openapi3.NewObjectSchema().
		WithProperty("count", openapi3.NewIntegerSchema()).
		WithProperty("items", openapi3.NewArraySchema().WithItems(item)).
		WithoutAdditionalProperties()
	response.Required = []string{"count", "items"}
	return response
}
