package filestorage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cesilk/comfy-nodes/internal/utils/pathutil"
)

const (
	FolderTypeOutput = "output"
)

// LocalFileStorage writes node results below the output directory.
type LocalFileStorage struct {
	outputDir string
}

func NewLocalFileStorage(outputDir string) (*LocalFileStorage, error) {
	outputDir, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &LocalFileStorage{outputDir: outputDir}, nil
}

func (s *LocalFileStorage) OutputDir() string {
	return s.outputDir
}

// WriteFile writes content to filedest, creating parent folders as needed.
func (s *LocalFileStorage) WriteFile(filedest string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(filedest), os.ModePerm); err != nil {
		return err
	}

	return os.WriteFile(filedest, content, os.FileMode(0644))
}

// ResolveFile maps a (filename, subfolder) pair reported by a node back to a path
// on disk. It rejects anything escaping the output directory.
func (s *LocalFileStorage) ResolveFile(filename, subfolder string) (string, error) {
	resolved := filepath.Join(s.outputDir, subfolder, filename)
	if !pathutil.IsWithin(s.outputDir, resolved) {
		return "", fmt.Errorf("%w: %s", pathutil.ErrOutsideOutputDir, resolved)
	}

	if _, err := os.Stat(resolved); err != nil {
		return "", err
	}

	return resolved, nil
}
