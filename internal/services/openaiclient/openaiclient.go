// Package openaiclient wraps the two OpenAI SDKs used by the nodes: go-openai for
// image generation and openai-go for chat completions, vision included.
package openaiclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/cesilk/comfy-nodes/internal/config"
)

const APIKeyEnv = "OPENAI_API_KEY"

var (
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY not found in environment variables")
	ErrNoImageData   = errors.New("no image data returned from OpenAI API")
	ErrNoChoices     = errors.New("no choices returned from OpenAI API")
)

type Client struct {
	chat   *openai.Client
	images *goopenai.Client
}

// New builds a client for apiKey. baseURL is optional and points both SDKs at an
// OpenAI compatible endpoint, e.g. "https://api.openai.com/v1".
func New(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	chatOptions := []option.RequestOption{option.WithAPIKey(apiKey)}
	imagesConfig := goopenai.DefaultConfig(apiKey)

	if baseURL != "" {
		chatOptions = append(chatOptions, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/"))
		imagesConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &Client{
		chat:   openai.NewClient(chatOptions...),
		images: goopenai.NewClientWithConfig(imagesConfig),
	}, nil
}

// FromConfig resolves the key at call time: the configured value first, then the
// OPENAI_API_KEY environment variable.
func FromConfig(cfg *config.OpenAIConfig) (*Client, error) {
	var apiKey, baseURL string
	if cfg != nil {
		apiKey, baseURL = cfg.APIKey, cfg.BaseURL
	}
	if apiKey == "" {
		apiKey = os.Getenv(APIKeyEnv)
	}

	return New(apiKey, baseURL)
}

// GenerateImages requests n base64 encoded images and returns the decoded bytes
// in response order. Any item without payload fails the whole request.
func (c *Client) GenerateImages(ctx context.Context, model, prompt string, n int, size string) ([][]byte, error) {
	response, err := c.images.CreateImage(ctx, goopenai.ImageRequest{
		Prompt:         prompt,
		Model:          model,
		N:              n,
		Size:           size,
		ResponseFormat: goopenai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	images := make([][]byte, 0, len(response.Data))
	for _, item := range response.Data {
		if item.B64JSON == "" {
			return nil, ErrNoImageData
		}

		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("could not decode image payload: %w", err)
		}

		images = append(images, data)
	}

	return images, nil
}

// Chat sends a system and a user message and returns the reply text.
func (c *Client) Chat(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, model, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	})
}

// Describe sends prompt together with a JPEG image inlined as a data URI.
func (c *Client) Describe(ctx context.Context, model, prompt string, jpeg []byte) (string, error) {
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)

	return c.complete(ctx, model, []openai.ChatCompletionMessageParamUnion{
		openai.UserMessageParts(
			openai.TextPart(prompt),
			openai.ImagePart(imageURL),
		),
	})
}

func (c *Client) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	completion, err := c.chat.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F(messages),
		Model:    openai.F(openai.ChatModel(model)),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}

	return completion.Choices[0].Message.Content, nil
}
