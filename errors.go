package settings

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for use with errors.Is. The typed errors below unwrap to
// these.
var (
	// ErrSourceUnavailable indicates that a required source could not be
	// reached during a resolution pass.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrDuplicateKey indicates that two distinct raw keys from the same
	// source normalized to the same canonical path.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNormalization indicates that a raw key could not be mapped to any
	// declared schema field while strict mode is enabled.
	ErrNormalization = errors.New("unknown configuration key")
	// ErrValidation indicates that the merged configuration failed schema
	// validation.
	ErrValidation = errors.New("invalid configuration")
)

// SourceUnavailableError reports which required source could not be reached
// and why. It aborts the resolution pass entirely: no partial merged tree is
// ever exposed to validation.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %q unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

// DuplicateKeyError reports two raw keys within one source that normalize to
// the same canonical path. Across different sources the same collision is
// expected and resolved by rank, not an error.
type DuplicateKeyError struct {
	Source    string
	Path      string
	FirstKey  string
	SecondKey string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("source %q: keys %q and %q both normalize to %q",
		e.Source, e.FirstKey, e.SecondKey, e.Path)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// NormalizationError reports a raw key that matches no declared schema field.
// Only returned in strict mode; otherwise unknown keys are dropped.
type NormalizationError struct {
	Source string
	Key    string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("source %q: key %q matches no declared field", e.Source, e.Key)
}

func (e *NormalizationError) Unwrap() error { return ErrNormalization }

// FieldError is one field-level validation failure: the canonical path of
// the field, the reason it failed, and the offending raw value as it
// appeared in the merged tree.
type FieldError struct {
	Path   string
	Reason string
	Value  any
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s (value: %v)", e.Path, e.Reason, e.Value)
}

// ValidationError aggregates every field-level failure of one resolution
// pass. Validation never short-circuits on the first failing field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid configuration"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("invalid configuration (%d fields): %s",
		len(e.Fields), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
