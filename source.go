// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package settings

import "context"

// Kind identifies the origin type of a configuration source. Providers are
// dispatched by this static tag; the resolution core never inspects the
// concrete provider type.
type Kind string

const (
	// KindStatic is an in-memory map of values, typically defaults.
	KindStatic Kind = "static"
	// KindFile is a structured configuration file (YAML, TOML or JSON).
	KindFile Kind = "file"
	// KindDotEnv is a .env file in KEY=VALUE format.
	KindDotEnv Kind = "dotenv"
	// KindEnv is the process environment, snapshotted at fetch time.
	KindEnv Kind = "env"
	// KindRemote is a remote configuration/secret service reached over HTTP.
	KindRemote Kind = "remote"
	// KindFlags is a set of command-line flags.
	KindFlags Kind = "flags"
)

// Descriptor identifies one provider instance inside a resolution session.
// The rank determines precedence on conflicting field paths: a higher rank
// wins. Descriptors persist for the lifetime of the Resolver; fetched values
// do not.
type Descriptor struct {
	// Kind is the provider's static type tag.
	Kind Kind

	// Name uniquely identifies the provider instance inside one session,
	// e.g. "file:config.yaml" or "env". Used in error and provenance
	// reporting.
	Name string

	// Rank is the precedence rank. Lower rank merges first and is
	// overridden by higher ranks. Assigned by the builder in declaration
	// order unless set explicitly.
	Rank int

	// Required marks a source whose unavailability aborts the whole
	// resolution pass with a SourceUnavailableError. A missing optional
	// source contributes nothing and is logged as a note.
	Required bool

	// Delimiter separates nested path segments in this source's raw keys.
	// Environment-style sources use "__"; file and flag sources use ".".
	Delimiter string

	// FoldCase enables case-insensitive matching of raw key segments
	// against schema field names. On by default for env-style sources,
	// off for files and flags.
	FoldCase bool
}

// RawValue is one key/value pair exactly as a provider produced it, before
// key normalization. File providers flatten nested documents into dotted
// keys; sequence values stay whole.
type RawValue struct {
	Key   string
	Value any
}

// RawEntry is a normalized configuration entry: a canonical field path, the
// raw value, and the identity and rank of the source that produced it.
// Entries are immutable once built and live only for one resolution pass.
type RawEntry struct {
	Path   []string
	Value  any
	Source string
	Rank   int
}

// Source is the single capability interface implemented by every provider.
//
// Fetch must not fail for recoverable absence (e.g. a missing optional
// file): it returns an empty slice instead. It must return an error when a
// required origin cannot be reached; the resolver wraps it into a
// SourceUnavailableError. Fetch must not mutate process-wide state and must
// honor ctx cancellation when it performs I/O.
type Source interface {
	Fetch(ctx context.Context) ([]RawValue, error)
	Descriptor() Descriptor
}
