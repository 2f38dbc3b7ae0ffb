package analyze

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/threatfuse/internal/model"
)

// OpenAIClassifier classifies targets with an OpenAI chat model
type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIClassifier creates an OpenAI-backed classifier
func NewOpenAIClassifier(cfg model.MLConfig) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIClassifier{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   modelName,
		timeout: timeout,
	}, nil
}

// Name returns the backend name
func (c *OpenAIClassifier) Name() string {
	return "openai"
}

// Analyze asks the model for a maliciousness probability
func (c *OpenAIClassifier) Analyze(ctx context.Context, target model.Target) (*model.MlReport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(target)},
		},
		MaxTokens:   300,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	return parseClassification(strings.TrimSpace(resp.Choices[0].Message.Content), c.model)
}
