package settings

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"
)

// FlagsConfig holds the parameters of a command-line flag source.
type FlagsConfig struct {
	// FlagSet is a parsed pflag set. Flag names in dotted form ("db.host")
	// address nested fields directly; matching is case-sensitive.
	FlagSet *pflag.FlagSet

	// IncludeUnchanged also emits flags left at their default value.
	// By default only flags the user actually set contribute entries, so
	// flag defaults cannot shadow lower-ranked sources.
	IncludeUnchanged bool

	Rank     int
	Required bool
}

type flagsSource struct {
	desc             Descriptor
	flags            *pflag.FlagSet
	includeUnchanged bool
}

// NewFlags returns a source over a command-line flag set. The set must be
// parsed before resolution; fetching from an unparsed set is an error
// because the source cannot tell set flags from defaults.
func NewFlags(cfg FlagsConfig) Source {
	return &flagsSource{
		desc: Descriptor{
			Kind:      KindFlags,
			Name:      "flags",
			Rank:      cfg.Rank,
			Required:  cfg.Required,
			Delimiter: ".",
		},
		flags:            cfg.FlagSet,
		includeUnchanged: cfg.IncludeUnchanged,
	}
}

func (s *flagsSource) Descriptor() Descriptor { return s.desc }

func (s *flagsSource) Fetch(_ context.Context) ([]RawValue, error) {
	if s.flags == nil {
		return nil, nil
	}
	if !s.flags.Parsed() {
		return nil, fmt.Errorf("flag set has not been parsed")
	}

	var out []RawValue
	s.flags.Visit(func(f *pflag.Flag) {
		out = append(out, flagValue(f))
	})
	if s.includeUnchanged {
		s.flags.VisitAll(func(f *pflag.Flag) {
			if !f.Changed {
				out = append(out, flagValue(f))
			}
		})
	}
	return out, nil
}

func flagValue(f *pflag.Flag) RawValue {
	// Sliced flag types merge like sequences from any other source:
	// wholesale by default.
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		items := sv.GetSlice()
		vals := make([]any, len(items))
		for i, it := range items {
			vals[i] = it
		}
		return RawValue{Key: f.Name, Value: vals}
	}
	return RawValue{Key: f.Name, Value: f.Value.String()}
}
