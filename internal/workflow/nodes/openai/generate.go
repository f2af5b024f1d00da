package openainode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cesilk/comfy-nodes/internal/tensor"
	"github.com/cesilk/comfy-nodes/internal/utils/imageutil"
	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
)

const GenerateClass = "CESILK_OpenAIImageBatchGenerator"

const (
	ModelDallE3     = "dall-e-3"
	ModelGPTImage1  = "gpt-image-1"
	AspectSquare    = "1:1"
	AspectLandscape = "3:2 (landscape)"
	AspectPortrait  = "2:3 (portrait)"
)

var (
	ImageModels  = []string{ModelDallE3, ModelGPTImage1}
	AspectRatios = []string{AspectSquare, AspectLandscape, AspectPortrait}

	ErrInvalidAspectRatio = errors.New("invalid aspect ratio")
	ErrNoPrompts          = errors.New("no prompts to generate images for")
)

// SizeMap holds the pixel size each model renders an aspect ratio at.
var SizeMap = map[string]map[string]string{
	ModelGPTImage1: {
		AspectSquare:    "1024x1024",
		AspectLandscape: "1536x1024",
		AspectPortrait:  "1024x1536",
	},
	ModelDallE3: {
		AspectSquare:    "1024x1024",
		AspectLandscape: "1792x1024",
		AspectPortrait:  "1024x1792",
	},
}

func ResolveSize(model, aspectRatio string) (string, error) {
	size, ok := SizeMap[model][aspectRatio]
	if !ok {
		return "", fmt.Errorf("%w '%s' for model '%s'", ErrInvalidAspectRatio, aspectRatio, model)
	}
	return size, nil
}

// BatchCount is the number of images requested per prompt; dall-e-3 only
// renders one at a time.
func BatchCount(model string, batchSize int) int {
	if model == ModelDallE3 {
		return 1
	}
	return batchSize
}

// SplitPrompts treats the whole string as one prompt when multiline is set and
// otherwise yields one prompt per non-blank line.
func SplitPrompts(s string, multiline bool) []string {
	s = strings.TrimSpace(s)
	if multiline {
		return []string{s}
	}

	var prompts []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			prompts = append(prompts, line)
		}
	}
	return prompts
}

func BuildStyledPrompt(styleIndication, prompt string) string {
	return "Please follow the style instructions to generate the image.\n\n" +
		"# Style Instructions\n" + styleIndication + "\n\n" +
		"# Description of generated image\n" + prompt
}

type ImageBatchGenerator struct {
	client GeneratorFunc
	logger *zap.Logger
}

func NewImageBatchGenerator(client GeneratorFunc, logger *zap.Logger) *ImageBatchGenerator {
	return &ImageBatchGenerator{client: client, logger: logger}
}

func (n *ImageBatchGenerator) Definition() *nodes.Definition {
	return &nodes.Definition{
		Class:       GenerateClass,
		DisplayName: "CESILK OpenAI Image Generator (Batch)",
		Category:    category,
		Required: []nodes.Input{
			{Name: "model", Options: ImageModels},
			{Name: "aspect_ratio", Options: AspectRatios},
			{Name: "batch_size", Type: nodes.IntType, Default: 1, Min: nodes.Int(1), Max: nodes.Int(10), Step: nodes.Int(1)},
			{Name: "style_indication", Type: nodes.StringType, Multiline: true, Tooltip: "Style instructions for the image generation."},
			{Name: "prompt_string", Type: nodes.StringType, Multiline: true},
			{Name: "multiline", Type: nodes.BoolType, Default: false},
		},
		Outputs: []nodes.Output{
			{Name: "images", Type: nodes.ImageType},
		},
	}
}

func (n *ImageBatchGenerator) Execute(ctx context.Context, in nodes.Inputs) (*nodes.Result, error) {
	model, err := in.String("model")
	if err != nil {
		return nil, err
	}
	aspectRatio, err := in.String("aspect_ratio")
	if err != nil {
		return nil, err
	}
	batchSize, err := in.Int("batch_size")
	if err != nil {
		return nil, err
	}
	style, err := in.String("style_indication")
	if err != nil {
		return nil, err
	}
	promptString, err := in.String("prompt_string")
	if err != nil {
		return nil, err
	}
	multiline, err := in.Bool("multiline")
	if err != nil {
		return nil, err
	}

	size, err := ResolveSize(model, aspectRatio)
	if err != nil {
		return nil, err
	}

	client, err := n.client()
	if err != nil {
		return nil, err
	}

	images, err := n.generate(ctx, client, model, size, BatchCount(model, batchSize), style, SplitPrompts(promptString, multiline))
	if err != nil {
		return nil, err
	}

	return &nodes.Result{Outputs: []any{images}}, nil
}

func (n *ImageBatchGenerator) generate(ctx context.Context, client ImageGenerator, model, size string, count int, style string, prompts []string) (tensor.Batch, error) {
	if len(prompts) == 0 {
		return nil, ErrNoPrompts
	}

	var images tensor.Batch
	for _, prompt := range prompts {
		styled := BuildStyledPrompt(style, prompt)
		payloads, err := client.GenerateImages(ctx, model, styled, count, size)
		if err != nil {
			return nil, err
		}

		n.logger.Info("successfully generated image for prompt", zap.String("prompt", styled), zap.Int("images", len(payloads)))

		for _, payload := range payloads {
			img, err := imageutil.DecodeImage(payload)
			if err != nil {
				return nil, fmt.Errorf("could not decode generated image: %w", err)
			}
			images = append(images, tensor.FromImage(img))
		}
	}

	return tensor.Concat(images)
}
