// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package settings

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/MKhiriev/go-settings/internal/logger"
)

// Builder assembles a Resolver from an ordered list of sources. Sources are
// ranked in declaration order: every With* call adds a source with a higher
// precedence than the ones before it.
type Builder struct {
	pending  []func(b *Builder, rank int) Source
	schema   *Schema
	strict   bool
	parallel bool
	list     ListMergePolicy
	defaults any
	log      *logger.Logger
	err      error
}

// New returns an empty Builder. Without any With* source calls, Build
// assembles the default set: an optional ".env" file below the process
// environment.
func New() *Builder {
	return &Builder{log: logger.Nop()}
}

// WithDefaults registers default values at the lowest declared rank.
//
// A map[string]any (nested or dotted keys) becomes a static source that
// participates in the merge like any other. A struct of the target type is
// instead merged underneath the decoded result during Load, filling fields
// no source supplied.
func (b *Builder) WithDefaults(defaults any) *Builder {
	switch v := defaults.(type) {
	case map[string]any:
		b.addSource(func(_ *Builder, rank int) Source {
			return NewStatic("defaults", v, rank)
		})
	default:
		b.defaults = defaults
	}
	return b
}

// WithFile adds a required structured config file (YAML, TOML or JSON by
// extension). A missing file aborts resolution.
func (b *Builder) WithFile(path string) *Builder {
	b.addSource(func(_ *Builder, rank int) Source {
		return NewFile(FileConfig{Path: path, Rank: rank, Required: true})
	})
	return b
}

// WithOptionalFile adds a structured config file that may be absent.
func (b *Builder) WithOptionalFile(path string) *Builder {
	b.addSource(func(_ *Builder, rank int) Source {
		return NewFile(FileConfig{Path: path, Optional: true, Rank: rank})
	})
	return b
}

// WithDotEnv adds an optional .env file. Pass "" for the default "./.env".
func (b *Builder) WithDotEnv(path string) *Builder {
	b.addSource(func(_ *Builder, rank int) Source {
		return NewDotEnv(DotEnvConfig{Path: path, Rank: rank})
	})
	return b
}

// WithEnv adds the process environment, filtered by the given prefix
// ("" considers every variable).
func (b *Builder) WithEnv(prefix string) *Builder {
	b.addSource(func(_ *Builder, rank int) Source {
		return NewEnv(EnvConfig{Prefix: prefix, Rank: rank})
	})
	return b
}

// WithRemote adds a remote configuration service source.
func (b *Builder) WithRemote(cfg RemoteConfig) *Builder {
	b.addSource(func(b *Builder, rank int) Source {
		cfg.Rank = rank
		return NewRemote(cfg, b.log)
	})
	return b
}

// WithFlags adds a parsed command-line flag set at the highest declared
// rank so far.
func (b *Builder) WithFlags(fs *pflag.FlagSet) *Builder {
	b.addSource(func(_ *Builder, rank int) Source {
		return NewFlags(FlagsConfig{FlagSet: fs, Rank: rank})
	})
	return b
}

// WithSource adds a custom source keeping the rank recorded in its own
// descriptor, for callers that need full control over precedence.
func (b *Builder) WithSource(src Source) *Builder {
	b.pending = append(b.pending, func(_ *Builder, _ int) Source { return src })
	return b
}

// WithSchemaOf declares the schema from the `conf` tags of target before
// Load is called, enabling strict normalization and schema-aware Resolve
// without a target struct.
func (b *Builder) WithSchemaOf(target any) *Builder {
	schema, err := SchemaOf(target)
	if err != nil {
		b.err = fmt.Errorf("building schema: %w", err)
		return b
	}
	b.schema = schema
	return b
}

// WithStrict makes raw keys that match no declared schema field fatal
// instead of silently dropped.
func (b *Builder) WithStrict() *Builder {
	b.strict = true
	return b
}

// WithConcurrentFetch fetches all sources concurrently. Only latency is
// affected: the merge still applies entries in strict rank order.
func (b *Builder) WithConcurrentFetch() *Builder {
	b.parallel = true
	return b
}

// WithListMerge overrides the sequence merge rule per field path.
func (b *Builder) WithListMerge(policy ListMergePolicy) *Builder {
	b.list = policy
	return b
}

// WithLogger attaches a logger. The default discards all output.
func (b *Builder) WithLogger(log *logger.Logger) *Builder {
	if log != nil {
		b.log = log
	}
	return b
}

func (b *Builder) addSource(build func(b *Builder, rank int) Source) {
	b.pending = append(b.pending, build)
}

// Build assembles the Resolver. The returned Resolver is safe for repeated
// resolution passes; each pass re-fetches every source.
func (b *Builder) Build() (*Resolver, error) {
	if b.err != nil {
		return nil, fmt.Errorf("error occured during building resolver: %w", b.err)
	}

	if len(b.pending) == 0 {
		b.WithDotEnv("").WithEnv("")
	}

	sources := make([]Source, 0, len(b.pending))
	for rank, build := range b.pending {
		sources = append(sources, build(b, rank))
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Descriptor().Rank < sources[j].Descriptor().Rank
	})

	return &Resolver{
		sources:  sources,
		schema:   b.schema,
		strict:   b.strict,
		parallel: b.parallel,
		list:     b.list,
		defaults: b.defaults,
		log:      b.log,
	}, nil
}

// Resolver runs resolution passes over a fixed, ordered set of sources.
// Descriptors persist for the Resolver's lifetime; fetched values do not:
// every pass produces a fresh merged tree with no residual state from the
// previous one.
type Resolver struct {
	sources  []Source
	schema   *Schema
	strict   bool
	parallel bool
	list     ListMergePolicy
	defaults any
	log      *logger.Logger
}

// Result is the outcome of one resolution pass.
type Result struct {
	// PassID uniquely identifies the pass in log output.
	PassID string
	// Tree is the merged configuration.
	Tree *Tree
	// Sources lists the descriptors that contributed, in rank order.
	Sources []Descriptor
}

// Resolve fetches every source, normalizes raw keys against the schema (if
// declared), and merges all entries in rank order into a single tree.
//
// Resolution is all-or-nothing: a required source that cannot be reached, a
// duplicate key within one source, or (in strict mode) an unknown key abort
// the pass and no tree is returned.
func (r *Resolver) Resolve(ctx context.Context) (*Result, error) {
	passID := uuid.NewString()
	log := &logger.Logger{Logger: r.log.With().Str("pass_id", passID).Logger()}
	log.Debug().Int("sources", len(r.sources)).Msg("resolution pass started")

	fetched, err := r.fetchAll(ctx, log)
	if err != nil {
		return nil, err
	}

	var entries []RawEntry
	for i, src := range r.sources {
		desc := src.Descriptor()
		sourceEntries, err := normalizeSource(r.schema, desc, fetched[i], r.strict)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("source", desc.Name).
			Int("raw", len(fetched[i])).
			Int("normalized", len(sourceEntries)).
			Msg("source normalized")
		entries = append(entries, sourceEntries...)
	}

	tree := mergeEntries(entries, r.list)
	log.Debug().Int("paths", len(tree.Provenance())).Msg("resolution pass finished")

	descs := make([]Descriptor, len(r.sources))
	for i, src := range r.sources {
		descs[i] = src.Descriptor()
	}

	return &Result{PassID: passID, Tree: tree, Sources: descs}, nil
}

// Load runs a resolution pass and populates target, a non-nil pointer to a
// struct. The schema is derived from target's `conf` tags unless one was
// declared on the builder. Typed defaults registered via WithDefaults fill
// fields no source supplied; the final struct is validated as a whole and
// target is only written on success.
func (r *Resolver) Load(ctx context.Context, target any) error {
	schema := r.schema
	if schema == nil {
		var err error
		if schema, err = SchemaOf(target); err != nil {
			return err
		}
		r.schema = schema
	}

	res, err := r.Resolve(ctx)
	if err != nil {
		return err
	}

	return decodeAndValidate(res.Tree, schema, target, r.defaults)
}

// fetchAll collects raw values from every source, sequentially or
// concurrently. Results are slotted by source index, so concurrency never
// affects merge order.
func (r *Resolver) fetchAll(ctx context.Context, log *logger.Logger) ([][]RawValue, error) {
	fetched := make([][]RawValue, len(r.sources))
	errs := make([]error, len(r.sources))

	if r.parallel {
		var wg sync.WaitGroup
		for i, src := range r.sources {
			wg.Add(1)
			go func(i int, src Source) {
				defer wg.Done()
				fetched[i], errs[i] = src.Fetch(ctx)
			}(i, src)
		}
		wg.Wait()
	} else {
		for i, src := range r.sources {
			fetched[i], errs[i] = src.Fetch(ctx)
		}
	}

	for i, src := range r.sources {
		if errs[i] == nil {
			continue
		}
		desc := src.Descriptor()
		if desc.Required {
			return nil, &SourceUnavailableError{Source: desc.Name, Err: errs[i]}
		}
		// Recoverable absence of an optional source: note and move on.
		log.Warn().Err(errs[i]).Str("source", desc.Name).Msg("optional source skipped")
		fetched[i] = nil
	}

	return fetched, nil
}
