package imagenode

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cesilk/comfy-nodes/internal/services/filestorage"
	"github.com/cesilk/comfy-nodes/internal/tensor"
	"github.com/cesilk/comfy-nodes/internal/utils/imageutil"
	"github.com/cesilk/comfy-nodes/internal/utils/pathutil"
	"github.com/cesilk/comfy-nodes/internal/utils/placeholder"
	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
)

const (
	// Category differs between the two save nodes in the published pack.
	s3Category     = "cesilk_nodes"
	gdriveCategory = "🐅cesilk_nodes"

	compressLevel = 4
	batchNumToken = "%batch_num%"
)

// SavedImage is one entry of the UI "images" list.
type SavedImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

var hiddenInputs = []nodes.Input{
	{Name: "prompt", Type: nodes.PromptType},
	{Name: "extra_pnginfo", Type: nodes.ExtraPNGInfoType},
}

// Saver writes image batches as PNG files below the output directory.
type Saver struct {
	Storage         *filestorage.LocalFileStorage
	Resolver        *placeholder.Resolver
	DisableMetadata bool
}

type savedFile struct {
	SavedImage
	Path string
}

// nameFunc builds the file name of one image from the batch-resolved name and
// its counter.
type nameFunc func(filename string, counter int) string

// Save resolves prefix once for the batch and writes every image in order. Each
// written file is handed to after before the next image is encoded; an error
// from after stops the batch.
func (s *Saver) Save(images tensor.Batch, prefix string, in nodes.Inputs, name nameFunc, after func(i int, file savedFile) error) ([]SavedImage, error) {
	size, err := images.Size()
	if err != nil {
		return nil, err
	}

	prefix = s.Resolver.Vars(prefix, size.X, size.Y)
	savePath, err := pathutil.ResolveSavePath(prefix, s.Storage.OutputDir())
	if err != nil {
		return nil, err
	}

	texts, err := s.metadata(in)
	if err != nil {
		return nil, err
	}

	results := make([]SavedImage, 0, len(images))
	counter := savePath.Counter
	for i, img := range images {
		filename := strings.ReplaceAll(savePath.Filename, batchNumToken, fmt.Sprint(i))
		file := savedFile{
			SavedImage: SavedImage{
				Filename:  name(filename, counter),
				Subfolder: savePath.Subfolder,
				Type:      filestorage.FolderTypeOutput,
			},
		}
		file.Path = filepath.Join(savePath.Folder, file.Filename)

		content, err := imageutil.EncodePNG(img.ToRGBA(), compressLevel, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode image %d: %w", i, err)
		}

		if err := s.Storage.WriteFile(file.Path, content); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", file.Path, err)
		}

		results = append(results, file.SavedImage)
		counter++

		if after != nil {
			if err := after(i, file); err != nil {
				return nil, err
			}
		}
	}

	return results, nil
}

// metadata builds the tEXt chunks: the prompt first, then every extra_pnginfo
// entry by key.
func (s *Saver) metadata(in nodes.Inputs) ([]imageutil.TextChunk, error) {
	if s.DisableMetadata {
		return nil, nil
	}

	var texts []imageutil.TextChunk
	if prompt, ok := in.Value("prompt"); ok {
		text, err := imageutil.JSONTextChunk("prompt", prompt)
		if err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}

	if extra, ok := in.Map("extra_pnginfo"); ok {
		keys := make([]string, 0, len(extra))
		for key := range extra {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			text, err := imageutil.JSONTextChunk(key, extra[key])
			if err != nil {
				return nil, err
			}
			texts = append(texts, text)
		}
	}

	return texts, nil
}
