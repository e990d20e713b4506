// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package settings

import (
	"context"
	"os"
	"strings"
)

// EnvConfig holds the parameters of an environment-variable source.
type EnvConfig struct {
	// Prefix filters which variables are considered; only variables
	// starting with "<Prefix>_" (or "<Prefix>__") contribute, and the
	// prefix is stripped before normalization. Empty means all variables.
	Prefix string

	// Delimiter separates nested field segments inside a variable name.
	// Defaults to "__".
	Delimiter string

	// CaseSensitive disables the default case-insensitive matching of
	// variable names against schema fields.
	CaseSensitive bool

	// Rank and Required feed the source descriptor.
	Rank     int
	Required bool
}

// envSource reads the process environment. The environment is an implicit
// process-wide input; wrapping it in an explicit provider makes the
// dependency visible and lets tests substitute environ.
type envSource struct {
	desc    Descriptor
	prefix  string
	environ func() []string
}

// NewEnv returns a source that snapshots the process environment at fetch
// time. Each resolution pass re-reads the environment fresh.
func NewEnv(cfg EnvConfig) Source {
	if cfg.Delimiter == "" {
		cfg.Delimiter = "__"
	}

	name := "env"
	if cfg.Prefix != "" {
		name = "env:" + cfg.Prefix
	}

	return &envSource{
		desc: Descriptor{
			Kind:      KindEnv,
			Name:      name,
			Rank:      cfg.Rank,
			Required:  cfg.Required,
			Delimiter: cfg.Delimiter,
			FoldCase:  !cfg.CaseSensitive,
		},
		prefix:  cfg.Prefix,
		environ: os.Environ,
	}
}

func (s *envSource) Descriptor() Descriptor { return s.desc }

func (s *envSource) Fetch(_ context.Context) ([]RawValue, error) {
	vars := s.environ()
	out := make([]RawValue, 0, len(vars))

	for _, kv := range vars {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}

		if s.prefix != "" {
			rest, ok := stripEnvPrefix(key, s.prefix, s.desc.FoldCase)
			if !ok {
				continue
			}
			key = rest
		}

		out = append(out, RawValue{Key: key, Value: value})
	}

	return out, nil
}

// stripEnvPrefix cuts "<prefix>_" or "<prefix>__" off an environment-style
// key. A key equal to the bare prefix, or one not separated from it by an
// underscore, does not match.
func stripEnvPrefix(key, prefix string, fold bool) (string, bool) {
	if len(key) <= len(prefix) {
		return "", false
	}
	head, rest := key[:len(prefix)], key[len(prefix):]
	if head != prefix && !(fold && strings.EqualFold(head, prefix)) {
		return "", false
	}
	if !strings.HasPrefix(rest, "_") {
		return "", false
	}
	rest = strings.TrimPrefix(rest, "_")
	rest = strings.TrimPrefix(rest, "_")
	if rest == "" {
		return "", false
	}
	return rest, true
}
