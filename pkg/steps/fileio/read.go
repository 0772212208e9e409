// Package fileio implements the "read_files" and "write_files" leaf steps:
// the bridge between the context and the filesystem.
package fileio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/robotdad/recipe-tool-sub006/pkg/engine"
	sdkerrors "github.com/robotdad/recipe-tool-sub006/pkg/errors"
	"github.com/robotdad/recipe-tool-sub006/pkg/template"
)

// ReadType is the step type name for reading files into the context.
const ReadType = "read_files"

// Merge modes for multi-file reads.
const (
	MergeConcat = "concat"
	MergeDict   = "dict"
)

// ReadConfig is the read_files step configuration.
type ReadConfig struct {
	// Path is a templated path, or several separated by commas.
	Path string `json:"path"`

	// ContentKey is the context key that receives the content.
	ContentKey string `json:"content_key"`

	// Optional tolerates missing files instead of failing.
	Optional bool `json:"optional,omitempty"`

	// MergeMode shapes multi-file content: concat joins the texts in path
	// order (the default), dict maps each path to its text.
	MergeMode string `json:"merge_mode,omitempty"`
}

// ApplyDefaults fills in defaults for omitted optional fields.
func (c *ReadConfig) ApplyDefaults() {
	if c.MergeMode == "" {
		c.MergeMode = MergeConcat
	}
}

// Validate checks the configuration, naming the offending field.
func (c *ReadConfig) Validate() error {
	if c.Path == "" {
		return sdkerrors.NewInvalidStepConfig(ReadType, "path", "is required")
	}
	if c.ContentKey == "" {
		return sdkerrors.NewInvalidStepConfig(ReadType, "content_key", "is required")
	}
	if c.MergeMode != MergeConcat && c.MergeMode != MergeDict {
		return sdkerrors.NewInvalidStepConfig(ReadType, "merge_mode",
			fmt.Sprintf("must be %q or %q, got %q", MergeConcat, MergeDict, c.MergeMode))
	}
	return nil
}

// ReadStep is the read_files step.
type ReadStep struct {
	cfg    ReadConfig
	logger *zap.Logger
}

// NewRead returns the constructor for the read_files step type.
func NewRead(logger *zap.Logger) engine.Constructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(config json.RawMessage) (engine.Step, error) {
		var cfg ReadConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, sdkerrors.NewInvalidStepConfig(ReadType, "config", err.Error())
			}
		}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &ReadStep{cfg: cfg, logger: logger}, nil
	}
}

// Execute reads the configured files and stores their content under the
// content key: a single text for concat mode, a path-to-text map for dict
// mode. With optional set, files that do not exist are skipped; if nothing
// remains the key still gets its (empty) value.
func (s *ReadStep) Execute(_ context.Context, rc *engine.Context) error {
	rendered, err := template.Render(s.cfg.Path, rc)
	if err != nil {
		return fmt.Errorf("rendering path %q: %w", s.cfg.Path, err)
	}
	paths := splitPaths(rendered)
	if len(paths) == 0 {
		return sdkerrors.NewInvalidStepConfig(ReadType, "path", "resolved to no paths")
	}

	texts := make([]string, 0, len(paths))
	byPath := make(map[string]any, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if s.cfg.Optional && errors.Is(err, fs.ErrNotExist) {
				s.logger.Debug("Skipping missing optional file", zap.String("path", p))
				continue
			}
			return fmt.Errorf("reading file %q: %w", p, err)
		}
		texts = append(texts, string(data))
		byPath[p] = string(data)
	}

	if s.cfg.MergeMode == MergeDict {
		rc.Set(s.cfg.ContentKey, byPath)
	} else {
		rc.Set(s.cfg.ContentKey, strings.Join(texts, "\n"))
	}

	s.logger.Debug("Read files",
		zap.Int("requested", len(paths)),
		zap.Int("read", len(texts)),
		zap.String("contentKey", s.cfg.ContentKey))
	return nil
}

// splitPaths splits a comma-separated path list, trimming whitespace and
// dropping empty entries.
func splitPaths(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
