// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig holds the parameters of a structured config file source.
type FileConfig struct {
	// Path to the file. The format is chosen by extension: .yaml/.yml,
	// .toml, .json.
	Path string

	// Optional marks a file whose absence is recoverable: the source then
	// contributes nothing instead of failing the pass.
	Optional bool

	Rank     int
	Required bool
}

type fileSource struct {
	desc     Descriptor
	path     string
	optional bool
}

// NewFile returns a source that parses a YAML, TOML or JSON file into nested
// mappings and flattens them to dotted keys. Top-level keys map directly to
// schema field names; matching is case-sensitive.
func NewFile(cfg FileConfig) Source {
	return &fileSource{
		desc: Descriptor{
			Kind:      KindFile,
			Name:      "file:" + cfg.Path,
			Rank:      cfg.Rank,
			Required:  cfg.Required,
			Delimiter: ".",
		},
		path:     cfg.Path,
		optional: cfg.Optional,
	}
}

func (s *fileSource) Descriptor() Descriptor { return s.desc }

func (s *fileSource) Fetch(_ context.Context) ([]RawValue, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && s.optional && !s.desc.Required {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	doc, err := parseByExtension(s.path, data)
	if err != nil {
		return nil, err
	}

	return flattenDocument(doc), nil
}

func parseByExtension(path string, data []byte) (map[string]any, error) {
	var doc map[string]any

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing yaml %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing toml %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing json %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}

	return doc, nil
}

// flattenDocument walks a parsed document and emits one RawValue per leaf,
// with nested mapping keys joined by ".". Sequences and empty mappings stay
// whole so the merge engine can apply container rules to them.
func flattenDocument(doc map[string]any) []RawValue {
	var out []RawValue
	flattenInto(&out, "", doc)
	return out
}

func flattenInto(out *[]RawValue, prefix string, m map[string]any) {
	for key, val := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}

		if child, ok := val.(map[string]any); ok && len(child) > 0 {
			flattenInto(out, full, child)
			continue
		}
		*out = append(*out, RawValue{Key: full, Value: val})
	}
}
