package fileio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/template"
)

// WriteType is the step type name for writing context content to files.
const WriteType = "write_files"

// FileSpec names one file to write and its content. Content strings are
// written as-is; any other kind is serialized as indented JSON.
type FileSpec struct {
	Path    string `json:"path"`
	Content any    `json:"content"`
}

// WriteConfig is the write_files step configuration. Exactly one of Files
// and FilesKey supplies the specs: inline, or from a context entry shaped
// like [{"path": ..., "content": ...}].
type WriteConfig struct {
	Files    []FileSpec `json:"files,omitempty"`
	FilesKey string     `json:"files_key,omitempty"`

	// Root is a templated directory prefix applied to every path.
	Root string `json:"root,omitempty"`
}

// Validate checks the configuration, naming the offending field.
func (c *WriteConfig) Validate() error {
	if len(c.Files) == 0 && c.FilesKey == "" {
		return sdkerrors.NewInvalidStepConfig(WriteType, "files", "either files or files_key is required")
	}
	if len(c.Files) > 0 && c.FilesKey != "" {
		return sdkerrors.NewInvalidStepConfig(WriteType, "files", "files and files_key cannot be combined")
	}
	for i, f := range c.Files {
		if f.Path == "" {
			return sdkerrors.NewInvalidStepConfig(WriteType, "files",
				fmt.Sprintf("file %d is missing a path", i))
		}
	}
	return nil
}

// WriteStep is the write_files step.
type WriteStep struct {
	cfg    WriteConfig
	logger *zap.Logger
}

// NewWrite returns the constructor for the write_files step type.
func NewWrite(logger *zap.Logger) engine.Constructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(config json.RawMessage) (engine.Step, error) {
		var cfg WriteConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, sdkerrors.NewInvalidStepConfig(WriteType, "config", err.Error())
			}
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &WriteStep{cfg: cfg, logger: logger}, nil
	}
}

// Execute writes every spec under the rendered root, creating parent
// directories as needed.
func (s *WriteStep) Execute(_ context.Context, rc *engine.Context) error {
	root, err := template.Render(s.cfg.Root, rc)
	if err != nil {
		return fmt.Errorf("rendering root %q: %w", s.cfg.Root, err)
	}

	specs, err := s.resolveSpecs(rc)
	if err != nil {
		return err
	}

	for _, spec := range specs {
		path, err := template.Render(spec.Path, rc)
		if err != nil {
			return fmt.Errorf("rendering file path %q: %w", spec.Path, err)
		}
		if root != "" {
			path = filepath.Join(root, path)
		}

		data, err := contentBytes(spec.Content)
		if err != nil {
			return fmt.Errorf("serializing content for %q: %w", path, err)
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating directory %q: %w", dir, err)
			}
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing file %q: %w", path, err)
		}
		s.logger.Debug("Wrote file", zap.String("path", path), zap.Int("bytes", len(data)))
	}

	s.logger.Info("Wrote files", zap.Int("count", len(specs)))
	return nil
}

// resolveSpecs returns the inline specs, or decodes them from the context
// entry named by files_key: a list of {path, content} maps or a single map.
func (s *WriteStep) resolveSpecs(rc *engine.Context) ([]FileSpec, error) {
	if len(s.cfg.Files) > 0 {
		return s.cfg.Files, nil
	}
	v, ok := rc.Get(s.cfg.FilesKey)
	if !ok {
		return nil, sdkerrors.NewInvalidStepConfig(WriteType, "files_key",
			fmt.Sprintf("context key %q not found", s.cfg.FilesKey))
	}

	switch specs := v.(type) {
	case []any:
		out := make([]FileSpec, 0, len(specs))
		for i, item := range specs {
			spec, err := specFromValue(item)
			if err != nil {
				return nil, sdkerrors.NewInvalidStepConfig(WriteType, "files_key",
					fmt.Sprintf("entry %d: %v", i, err))
			}
			out = append(out, spec)
		}
		return out, nil
	case map[string]any:
		spec, err := specFromValue(specs)
		if err != nil {
			return nil, sdkerrors.NewInvalidStepConfig(WriteType, "files_key", err.Error())
		}
		return []FileSpec{spec}, nil
	default:
		return nil, sdkerrors.NewInvalidStepConfig(WriteType, "files_key",
			fmt.Sprintf("context key %q must hold a file list, got %T", s.cfg.FilesKey, v))
	}
}

func specFromValue(v any) (FileSpec, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return FileSpec{}, fmt.Errorf("expected a {path, content} map, got %T", v)
	}
	path, _ := m["path"].(string)
	if path == "" {
		return FileSpec{}, fmt.Errorf("missing path")
	}
	return FileSpec{Path: path, Content: m["content"]}, nil
}

// contentBytes turns a spec's content into the bytes to write.
func contentBytes(content any) ([]byte, error) {
	switch c := content.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(c), nil
	case []byte:
		return c, nil
	default:
		return json.MarshalIndent(c, "", "  ")
	}
}
