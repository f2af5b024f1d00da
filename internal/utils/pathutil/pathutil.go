package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrOutsideOutputDir = errors.New("saving image outside the output folder is not allowed")

// ExpandPath expands the path using the user's home directory.
// If the path starts with "~", it is replaced with the user's home directory.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		// Replace "~" with the home directory path
		path = filepath.Join(homeDir, path[1:])
	}

	return path, nil
}

// SavePath is where a batch of images gets written.
type SavePath struct {
	Folder    string
	Filename  string
	Counter   int
	Subfolder string
	Prefix    string
}

// ResolveSavePath splits an already expanded prefix into folder and file name,
// refuses folders outside outputDir, creates the folder and picks the next free
// counter: one past the highest "<filename>_<digits>" entry already present.
func ResolveSavePath(prefix, outputDir string) (*SavePath, error) {
	outputDir, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, err
	}

	normalized := filepath.Clean(prefix)
	subfolder := filepath.Dir(normalized)
	if subfolder == "." {
		subfolder = ""
	}
	filename := filepath.Base(normalized)

	folder := filepath.Join(outputDir, subfolder)
	if !IsWithin(outputDir, folder) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideOutputDir, folder)
	}

	counter, err := nextCounter(folder, filename)
	if err != nil {
		return nil, err
	}

	return &SavePath{
		Folder:    folder,
		Filename:  filename,
		Counter:   counter,
		Subfolder: subfolder,
		Prefix:    prefix,
	}, nil
}

// IsWithin reports whether path is root or below it.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func nextCounter(folder, filename string) (int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if !os.IsNotExist(err) {
			return 0, err
		}
		if err := os.MkdirAll(folder, os.ModePerm); err != nil {
			return 0, fmt.Errorf("failed to create output folder: %w", err)
		}
		return 1, nil
	}

	highest := 0
	for _, entry := range entries {
		if digits, ok := counterOf(entry.Name(), filename); ok && digits > highest {
			highest = digits
		}
	}

	return highest + 1, nil
}

// counterOf parses the counter of "<filename>_<digits>[_...][.ext]".
func counterOf(name, filename string) (int, bool) {
	if len(name) <= len(filename) || name[:len(filename)] != filename || name[len(filename)] != '_' {
		return 0, false
	}

	rest := name[len(filename)+1:]
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end == -1 {
		end = len(rest)
	}

	digits, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, true
	}

	return digits, true
}
