package recipe

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Loader resolves a recipe path or identifier to a parsed recipe. The engine
// depends on this contract only; file formats are a loader concern.
type Loader interface {
	Load(path string) (*Recipe, error)
}

// FileLoader loads recipes from the local filesystem, trying the path as given
// first and then against each configured root in order. JSON is the default
// format; .yaml/.yml files are parsed as YAML.
type FileLoader struct {
	Roots []string
}

// NewFileLoader creates a FileLoader searching the given roots after the
// working directory.
func NewFileLoader(roots ...string) *FileLoader {
	return &FileLoader{Roots: roots}
}

// Load resolves and parses the recipe at path. A path that resolves nowhere
// returns an error wrapping fs.ErrNotExist so callers can classify it.
func (l *FileLoader) Load(path string) (*Recipe, error) {
	resolved, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return LoadFile(resolved)
}

func (l *FileLoader) resolve(path string) (string, error) {
	candidates := make([]string, 0, len(l.Roots)+1)
	if filepath.IsAbs(path) {
		candidates = append(candidates, path)
	} else {
		candidates = append(candidates, path)
		for _, root := range l.Roots {
			candidates = append(candidates, filepath.Join(root, path))
		}
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("recipe %q: %w", path, fs.ErrNotExist)
}

// LoadFile reads and parses a single recipe file, dispatching on extension.
// The recipe name defaults to the file name without its extension.
func LoadFile(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe %q: %w", path, err)
	}

	var r *Recipe
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		r, err = ParseYAML(data)
	default:
		r, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("recipe %q: %w", path, err)
	}
	if r.Name == "" {
		base := filepath.Base(path)
		r.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return r, nil
}
