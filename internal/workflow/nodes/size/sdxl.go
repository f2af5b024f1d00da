package sizenode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
)

const Class = "CESILK_SdxlImageSizes"

var ErrInvalidLabel = errors.New("invalid size label")

// Labels is the canonical SDXL preset list, in display order.
var Labels = []string{
	"1024x1024 (1:1)",
	"1152x896 (4:3)",
	"896x1152 (3:4)",
	"1152x1536 (3:4)",
	"1216x832 (3:2)",
	"832x1216 (2:3)",
	"1344x768 (16:9)",
	"768x1344 (9:16)",
}

// Dimensions parses "<w>x<h> (<ratio>)" into its width and height.
func Dimensions(label string) (int, int, error) {
	size, _, _ := strings.Cut(label, " ")
	w, h, ok := strings.Cut(size, "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	return width, height, nil
}

type SdxlImageSizes struct{}

func New() *SdxlImageSizes {
	return &SdxlImageSizes{}
}

func (n *SdxlImageSizes) Definition() *nodes.Definition {
	return &nodes.Definition{
		Class:       Class,
		DisplayName: "CESILK SDXL Image Sizes",
		Category:    "cesilk_nodes",
		Required: []nodes.Input{
			{Name: "size", Options: Labels},
		},
		Outputs: []nodes.Output{
			{Name: "width", Type: nodes.IntType},
			{Name: "height", Type: nodes.IntType},
		},
	}
}

func (n *SdxlImageSizes) Execute(_ context.Context, in nodes.Inputs) (*nodes.Result, error) {
	label, err := in.String("size")
	if err != nil {
		return nil, err
	}

	width, height, err := Dimensions(label)
	if err != nil {
		return nil, err
	}

	return &nodes.Result{Outputs: []any{width, height}}, nil
}
