package openainode

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shoenig/test/must"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/cesilk/comfy-nodes/internal/services/filestorage"
	"github.com/cesilk/comfy-nodes/internal/tensor"
	"github.com/cesilk/comfy-nodes/internal/utils/imageutil"
	"github.com/cesilk/comfy-nodes/internal/utils/placeholder"
	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
)

var errBoom = errors.New("boom")

type generateCall struct {
	model, prompt, size string
	n                   int
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []generateCall
	png   []byte
	err   error
}

func (f *fakeGenerator) GenerateImages(_ context.Context, model, prompt string, n int, size string) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, generateCall{model, prompt, size, n})
	if f.err != nil {
		return nil, f.err
	}

	payloads := make([][]byte, n)
	for i := range payloads {
		payloads[i] = f.png
	}
	return payloads, nil
}

func pngPayload(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	data, err := imageutil.EncodePNG(img, 4, nil)
	must.NoError(t, err)
	return data
}

func generateInputs(model, aspect string, batchSize int, prompts string, multiline bool) nodes.Inputs {
	return nodes.Inputs{
		"model":            model,
		"aspect_ratio":     aspect,
		"batch_size":       batchSize,
		"style_indication": "watercolor",
		"prompt_string":    prompts,
		"multiline":        multiline,
	}
}

func TestResolveSize(t *testing.T) {
	size, err := ResolveSize(ModelGPTImage1, AspectLandscape)
	must.NoError(t, err)
	must.EqOp(t, "1536x1024", size)

	size, err = ResolveSize(ModelDallE3, AspectPortrait)
	must.NoError(t, err)
	must.EqOp(t, "1024x1792", size)

	_, err = ResolveSize(ModelDallE3, "16:9")
	must.ErrorIs(t, err, ErrInvalidAspectRatio)
}

func TestSplitPrompts(t *testing.T) {
	must.Eq(t, []string{"a cat", "a dog"}, SplitPrompts("\n a cat \n\n  \na dog\n", false))
	must.Eq(t, []string{"a cat\n\na dog"}, SplitPrompts("  a cat\n\na dog \n", true))
	must.SliceEmpty(t, SplitPrompts(" \n \n", false))
}

func TestBatchCount(t *testing.T) {
	must.EqOp(t, 1, BatchCount(ModelDallE3, 4))
	must.EqOp(t, 4, BatchCount(ModelGPTImage1, 4))
}

func TestBuildStyledPrompt(t *testing.T) {
	must.EqOp(t,
		"Please follow the style instructions to generate the image.\n\n# Style Instructions\nink\n\n# Description of generated image\na fox",
		BuildStyledPrompt("ink", "a fox"),
	)
}

func TestImageBatchGenerator(t *testing.T) {
	fake := &fakeGenerator{png: pngPayload(t, 6, 4)}
	node := NewImageBatchGenerator(func() (ImageGenerator, error) { return fake, nil }, zap.NewNop())

	result, err := node.Execute(context.Background(), generateInputs(ModelGPTImage1, AspectLandscape, 2, "a cat\na dog", false))
	must.NoError(t, err)

	images, ok := result.Outputs[0].(tensor.Batch)
	must.True(t, ok)
	must.Len(t, 4, images)
	must.EqOp(t, 6, images[0].Width)
	must.EqOp(t, 4, images[0].Height)

	must.Len(t, 2, fake.calls)
	must.Eq(t, generateCall{ModelGPTImage1, BuildStyledPrompt("watercolor", "a cat"), "1536x1024", 2}, fake.calls[0])
	must.Eq(t, generateCall{ModelGPTImage1, BuildStyledPrompt("watercolor", "a dog"), "1536x1024", 2}, fake.calls[1])
}

func TestImageBatchGeneratorDallE3SingleImage(t *testing.T) {
	fake := &fakeGenerator{png: pngPayload(t, 2, 2)}
	node := NewImageBatchGenerator(func() (ImageGenerator, error) { return fake, nil }, zap.NewNop())

	result, err := node.Execute(context.Background(), generateInputs(ModelDallE3, AspectSquare, 5, "one\ntwo", true))
	must.NoError(t, err)
	must.Len(t, 1, result.Outputs[0].(tensor.Batch))
	must.Len(t, 1, fake.calls)
	must.EqOp(t, 1, fake.calls[0].n)
	must.EqOp(t, "1024x1024", fake.calls[0].size)
}

func TestImageBatchGeneratorChecksAspectBeforeClient(t *testing.T) {
	opened := false
	node := NewImageBatchGenerator(func() (ImageGenerator, error) {
		opened = true
		return nil, errBoom
	}, zap.NewNop())

	_, err := node.Execute(context.Background(), generateInputs(ModelDallE3, "4:3", 1, "a", false))
	must.ErrorIs(t, err, ErrInvalidAspectRatio)
	must.False(t, opened)

	_, err = node.Execute(context.Background(), generateInputs(ModelDallE3, AspectSquare, 1, "a", false))
	must.ErrorIs(t, err, errBoom)
	must.True(t, opened)
}

func TestImageBatchGeneratorErrors(t *testing.T) {
	fake := &fakeGenerator{png: pngPayload(t, 2, 2)}
	node := NewImageBatchGenerator(func() (ImageGenerator, error) { return fake, nil }, zap.NewNop())

	_, err := node.Execute(context.Background(), generateInputs(ModelGPTImage1, AspectSquare, 1, "  \n ", false))
	must.ErrorIs(t, err, ErrNoPrompts)
	must.SliceEmpty(t, fake.calls)

	fake.err = errBoom
	_, err = node.Execute(context.Background(), generateInputs(ModelGPTImage1, AspectSquare, 1, "a", false))
	must.ErrorIs(t, err, errBoom)
}

type fakeDescriber struct {
	mu      sync.Mutex
	replies []string
	prompts []string
	jpegs   [][]byte
	err     error
}

func (f *fakeDescriber) Describe(_ context.Context, model, prompt string, jpeg []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if model != DescribeModel {
		return "", errors.New("unexpected model " + model)
	}
	if f.err != nil {
		return "", f.err
	}

	f.prompts = append(f.prompts, prompt)
	f.jpegs = append(f.jpegs, jpeg)
	return f.replies[len(f.prompts)-1], nil
}

func newDescriber(t *testing.T, fake *fakeDescriber) (*ImageDescriptionToTextfile, string) {
	t.Helper()

	dir := t.TempDir()
	storage, err := filestorage.NewLocalFileStorage(dir)
	must.NoError(t, err)

	now := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)
	resolver := &placeholder.Resolver{
		Now:   func() time.Time { return now },
		Local: time.UTC,
	}

	node := NewImageDescriptionToTextfile(func() (Describer, error) { return fake, nil }, storage, resolver, zap.NewNop())
	return node, dir
}

func describeInputs(images tensor.Batch) nodes.Inputs {
	in := nodes.Inputs{
		"images": images,
		"prompt": "describe this",
	}
	nodes.ApplyDefaults((&ImageDescriptionToTextfile{}).Definition(), in)
	return in
}

func twoImages() tensor.Batch {
	a, b := tensor.New(4, 4), tensor.New(4, 4)
	b.Set(1, 1, 1, 1, 1)
	return tensor.Batch{a, b}
}

func TestDescribeWritesTextfiles(t *testing.T) {
	fake := &fakeDescriber{replies: []string{"first", "second"}}
	node, dir := newDescriber(t, fake)

	in := describeInputs(twoImages())
	in["save_textfile"] = true
	in["filename_prefix"] = " captions/%date:yyyy-MM-dd%/shot "

	result, err := node.Execute(context.Background(), in)
	must.NoError(t, err)
	must.MapEmpty(t, result.UI)
	must.SliceEmpty(t, result.Outputs)

	must.Eq(t, []string{"describe this", "describe this"}, fake.prompts)
	for _, jpeg := range fake.jpegs {
		_, format, err := image.DecodeConfig(bytes.NewReader(jpeg))
		must.NoError(t, err)
		must.EqOp(t, "jpeg", format)
	}

	first, err := os.ReadFile(filepath.Join(dir, "captions", "2025-05-06", "shot_0000.txt"))
	must.NoError(t, err)
	must.EqOp(t, "first", string(first))

	second, err := os.ReadFile(filepath.Join(dir, "captions", "2025-05-06", "shot_0001.txt"))
	must.NoError(t, err)
	must.EqOp(t, "second", string(second))
}

func TestDescribeWithoutTextfiles(t *testing.T) {
	fake := &fakeDescriber{replies: []string{"only"}}
	node, dir := newDescriber(t, fake)

	_, err := node.Execute(context.Background(), describeInputs(tensor.Batch{tensor.New(2, 2)}))
	must.NoError(t, err)

	entries, err := os.ReadDir(dir)
	must.NoError(t, err)
	must.SliceEmpty(t, entries)
}

func TestDescribeMissingExcelPathAfterDescriptions(t *testing.T) {
	fake := &fakeDescriber{replies: []string{"first", "second"}}
	node, dir := newDescriber(t, fake)

	in := describeInputs(twoImages())
	in["save_textfile"] = true
	in["save_excel"] = true

	_, err := node.Execute(context.Background(), in)
	must.ErrorIs(t, err, ErrMissingExcelPath)
	must.EqOp(t, "excel path must be provided when save_excel is true", err.Error())
	must.Len(t, 2, fake.prompts)

	_, err = os.Stat(filepath.Join(dir, "ComfyUI_0001.txt"))
	must.NoError(t, err)
}

func TestDescribePropagatesClientErrors(t *testing.T) {
	fake := &fakeDescriber{err: errBoom}
	node, _ := newDescriber(t, fake)

	_, err := node.Execute(context.Background(), describeInputs(twoImages()))
	must.ErrorIs(t, err, errBoom)
}

func newWorkbook(t *testing.T, sheet string) string {
	t.Helper()

	f := excelize.NewFile()
	_, err := f.NewSheet(sheet)
	must.NoError(t, err)
	must.NoError(t, f.SetCellValue(sheet, "A1", "header"))
	must.NoError(t, f.SetCellValue(sheet, "B2", "keep"))

	path := filepath.Join(t.TempDir(), "book.xlsx")
	must.NoError(t, f.SaveAs(path))
	must.NoError(t, f.Close())
	return path
}

func cell(t *testing.T, path, sheet, axis string) string {
	t.Helper()

	f, err := excelize.OpenFile(path)
	must.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(sheet, axis)
	must.NoError(t, err)
	return v
}

func TestDescribeWritesWorkbook(t *testing.T) {
	fake := &fakeDescriber{replies: []string{"first", "second"}}
	node, _ := newDescriber(t, fake)
	path := newWorkbook(t, "captions")

	in := describeInputs(twoImages())
	in["save_excel"] = true
	in["excel_path"] = path
	in["sheet_name"] = "captions"
	in["column"] = "C"
	in["start_row_num"] = 3

	_, err := node.Execute(context.Background(), in)
	must.NoError(t, err)

	must.EqOp(t, "first", cell(t, path, "captions", "C3"))
	must.EqOp(t, "second", cell(t, path, "captions", "C4"))
	must.EqOp(t, "header", cell(t, path, "captions", "A1"))
	must.EqOp(t, "keep", cell(t, path, "captions", "B2"))
}

func TestWriteColumnErrors(t *testing.T) {
	path := newWorkbook(t, "captions")

	err := WriteColumn(path, "missing", "A", 2, []string{"x"})
	must.ErrorIs(t, err, ErrSheetNotFound)

	err = WriteColumn(path, "captions", "1", 2, []string{"x"})
	must.Error(t, err)

	err = WriteColumn(filepath.Join(t.TempDir(), "nope.xlsx"), "captions", "A", 2, []string{"x"})
	must.Error(t, err)
}

type fakeChatter struct {
	model, system, user string
	reply               string
	err                 error
}

func (f *fakeChatter) Chat(_ context.Context, model, systemPrompt, userPrompt string) (string, error) {
	f.model, f.system, f.user = model, systemPrompt, userPrompt
	return f.reply, f.err
}

func TestChat(t *testing.T) {
	fake := &fakeChatter{reply: "hello"}
	node := NewChat(func() (Chatter, error) { return fake, nil })

	result, err := node.Execute(context.Background(), nodes.Inputs{
		"model":         "gpt-4.1",
		"system_prompt": "be terse",
		"user_prompt":   "hi",
	})
	must.NoError(t, err)
	must.Eq(t, []any{"hello"}, result.Outputs)
	must.EqOp(t, "gpt-4.1", fake.model)
	must.EqOp(t, "be terse", fake.system)
	must.EqOp(t, "hi", fake.user)

	def := node.Definition()
	must.EqOp(t, ChatClass, def.Class)
	must.Eq(t, []string{"gpt-4o", "gpt-4.1"}, def.Required[0].Options)
}

func TestChatErrors(t *testing.T) {
	node := NewChat(func() (Chatter, error) { return nil, errBoom })

	_, err := node.Execute(context.Background(), nodes.Inputs{"model": "gpt-4o", "system_prompt": "", "user_prompt": "hi"})
	must.ErrorIs(t, err, errBoom)

	_, err = node.Execute(context.Background(), nodes.Inputs{"model": "gpt-4o", "user_prompt": "hi"})
	must.ErrorIs(t, err, nodes.ErrMissingInput)
}
