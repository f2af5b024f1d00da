package openainode

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cesilk/comfy-nodes/internal/services/filestorage"
	"github.com/cesilk/comfy-nodes/internal/utils/imageutil"
	"github.com/cesilk/comfy-nodes/internal/utils/placeholder"
	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
)

const DescribeClass = "CESILK_OpenAIImageDescriptionToTextfile"

// DescribeModel is the vision model used for every description.
const DescribeModel = "gpt-4.1"

var ErrMissingExcelPath = errors.New("excel path must be provided when save_excel is true")

type ImageDescriptionToTextfile struct {
	client   DescriberFunc
	storage  *filestorage.LocalFileStorage
	resolver *placeholder.Resolver
	logger   *zap.Logger
}

func NewImageDescriptionToTextfile(client DescriberFunc, storage *filestorage.LocalFileStorage, resolver *placeholder.Resolver, logger *zap.Logger) *ImageDescriptionToTextfile {
	return &ImageDescriptionToTextfile{
		client:   client,
		storage:  storage,
		resolver: resolver,
		logger:   logger,
	}
}

func (n *ImageDescriptionToTextfile) Definition() *nodes.Definition {
	return &nodes.Definition{
		Class:       DescribeClass,
		DisplayName: "CESILK OpenAI Image Description to Textfile",
		Category:    category,
		Required: []nodes.Input{
			{Name: "images", Type: nodes.ImageType},
			{Name: "prompt", Type: nodes.StringType, Multiline: true},
			{Name: "save_textfile", Type: nodes.BoolType, Default: false},
			{Name: "filename_prefix", Type: nodes.StringType, Default: "ComfyUI"},
			{Name: "save_excel", Type: nodes.BoolType, Default: false},
			{Name: "excel_path", Type: nodes.StringType, Default: "", Tooltip: "Path to the Excel file."},
			{Name: "sheet_name", Type: nodes.StringType, Default: ""},
			{Name: "column", Type: nodes.StringType, Default: "A", Tooltip: "Excel cell column name. Example: Column A"},
			{Name: "start_row_num", Type: nodes.IntType, Default: 2, Min: nodes.Int(1), Max: nodes.Int(1000), Step: nodes.Int(1), Tooltip: "Excel cell row number."},
		},
		OutputNode: true,
	}
}

type describeParams struct {
	prompt       string
	saveTextfile bool
	prefix       string
	saveExcel    bool
	excelPath    string
	sheetName    string
	column       string
	startRow     int
}

func readDescribeParams(in nodes.Inputs) (*describeParams, error) {
	var (
		p   describeParams
		err error
	)

	if p.prompt, err = in.String("prompt"); err != nil {
		return nil, err
	}
	if p.saveTextfile, err = in.Bool("save_textfile"); err != nil {
		return nil, err
	}
	if p.prefix, err = in.String("filename_prefix"); err != nil {
		return nil, err
	}
	if p.saveExcel, err = in.Bool("save_excel"); err != nil {
		return nil, err
	}
	if p.excelPath, err = in.String("excel_path"); err != nil {
		return nil, err
	}
	if p.sheetName, err = in.String("sheet_name"); err != nil {
		return nil, err
	}
	if p.column, err = in.String("column"); err != nil {
		return nil, err
	}
	if p.startRow, err = in.Int("start_row_num"); err != nil {
		return nil, err
	}

	return &p, nil
}

func (n *ImageDescriptionToTextfile) Execute(ctx context.Context, in nodes.Inputs) (*nodes.Result, error) {
	images, err := in.Images("images")
	if err != nil {
		return nil, err
	}

	params, err := readDescribeParams(in)
	if err != nil {
		return nil, err
	}

	client, err := n.client()
	if err != nil {
		return nil, err
	}

	prefix := n.resolver.Dates(strings.TrimSpace(params.prefix))
	fullPath := filepath.Join(n.storage.OutputDir(), prefix)

	messages := make([]string, 0, len(images))
	for i, img := range images {
		jpeg, err := imageutil.EncodeJPEG(img.ToRGBA(), imageutil.DefaultJPEGQuality)
		if err != nil {
			return nil, fmt.Errorf("failed to encode image %d: %w", i, err)
		}

		msg, err := client.Describe(ctx, DescribeModel, params.prompt, jpeg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)

		if params.saveTextfile {
			filePath := fmt.Sprintf("%s_%04d.txt", fullPath, i)
			if err := n.storage.WriteFile(filePath, []byte(msg)); err != nil {
				return nil, fmt.Errorf("failed to save description: %w", err)
			}

			n.logger.Info("saved description", zap.String("path", filePath))
		}
	}

	// Checked only once every description has been requested. Saved graphs
	// rely on the text files being written even when this fails.
	if params.saveExcel {
		if params.excelPath == "" {
			return nil, ErrMissingExcelPath
		}

		if err := WriteColumn(params.excelPath, params.sheetName, params.column, params.startRow, messages); err != nil {
			return nil, err
		}

		n.logger.Info("saved descriptions to workbook", zap.String("path", params.excelPath), zap.String("sheet", params.sheetName))
	}

	return &nodes.Result{UI: map[string]any{}}, nil
}
