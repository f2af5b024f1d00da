package openainode

import (
	"context"

	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
)

const ChatClass = "CESILK_OpenAIChat"

var ChatModels = []string{"gpt-4o", "gpt-4.1"}

type Chat struct {
	client ChatterFunc
}

func NewChat(client ChatterFunc) *Chat {
	return &Chat{client: client}
}

func (n *Chat) Definition() *nodes.Definition {
	return &nodes.Definition{
		Class:       ChatClass,
		DisplayName: "CESILK OpenAI Chat",
		Category:    category,
		Required: []nodes.Input{
			{Name: "model", Options: ChatModels},
			{Name: "system_prompt", Type: nodes.StringType, Multiline: true, Tooltip: "System prompt to set the context for the chat."},
			{Name: "user_prompt", Type: nodes.StringType, Multiline: true, Tooltip: "Prompt to send to the OpenAI API."},
		},
		Outputs: []nodes.Output{
			{Name: "text", Type: nodes.StringType},
		},
	}
}

func (n *Chat) Execute(ctx context.Context, in nodes.Inputs) (*nodes.Result, error) {
	model, err := in.String("model")
	if err != nil {
		return nil, err
	}
	systemPrompt, err := in.String("system_prompt")
	if err != nil {
		return nil, err
	}
	userPrompt, err := in.String("user_prompt")
	if err != nil {
		return nil, err
	}

	client, err := n.client()
	if err != nil {
		return nil, err
	}

	message, err := client.Chat(ctx, model, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	return &nodes.Result{Outputs: []any{message}}, nil
}
