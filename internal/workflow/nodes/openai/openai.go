package openainode

import (
	"context"
)

const category = "🐅cesilk_nodes"

type ImageGenerator interface {
	GenerateImages(ctx context.Context, model, prompt string, n int, size string) ([][]byte, error)
}

type Describer interface {
	Describe(ctx context.Context, model, prompt string, jpeg []byte) (string, error)
}

type Chatter interface {
	Chat(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// The client funcs open an OpenAI client for a single node execution, so a
// missing API key fails the node that needs it rather than the process.
type (
	GeneratorFunc func() (ImageGenerator, error)
	DescriberFunc func() (Describer, error)
	ChatterFunc   func() (Chatter, error)
)
