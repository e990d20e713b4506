package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// DotEnvConfig holds the parameters of a .env file source.
type DotEnvConfig struct {
	// Path to the .env file. Defaults to ".env".
	Path string

	// Prefix and Delimiter behave exactly as for environment variables;
	// .env entries occupy a fixed precedence slot below the process
	// environment in the default source ordering.
	Prefix        string
	Delimiter     string
	CaseSensitive bool

	Rank     int
	Required bool
}

type dotEnvSource struct {
	desc   Descriptor
	path   string
	prefix string
}

// NewDotEnv returns a source that parses a .env file (KEY=VALUE lines, "#"
// comments, optional quoting) via joho/godotenv. A missing file is
// recoverable absence unless the source is required: the source simply
// contributes nothing.
func NewDotEnv(cfg DotEnvConfig) Source {
	if cfg.Path == "" {
		cfg.Path = ".env"
	}
	if cfg.Delimiter == "" {
		cfg.Delimiter = "__"
	}

	return &dotEnvSource{
		desc: Descriptor{
			Kind:      KindDotEnv,
			Name:      "dotenv:" + cfg.Path,
			Rank:      cfg.Rank,
			Required:  cfg.Required,
			Delimiter: cfg.Delimiter,
			FoldCase:  !cfg.CaseSensitive,
		},
		path:   cfg.Path,
		prefix: cfg.Prefix,
	}
}

func (s *dotEnvSource) Descriptor() Descriptor { return s.desc }

func (s *dotEnvSource) Fetch(_ context.Context) ([]RawValue, error) {
	vars, err := godotenv.Read(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !s.desc.Required {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	out := make([]RawValue, 0, len(vars))
	for key, value := range vars {
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
