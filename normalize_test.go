// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package settings

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type normalizeTestConfig struct {
	App struct {
		Port int    `conf:"port"`
		Host string `conf:"host,alias=hostname"`
	} `conf:"app"`
	Labels map[string]string `conf:"labels"`
}

func normalizeTestSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := SchemaOf(normalizeTestConfig{})
	require.NoError(t, err)
	return s
}

// ── delimiter splitting ────────────────────────────────────────────────────

// TestNormalizeSource_EnvDelimiter verifies that env-style keys split on the
// double-underscore delimiter and fold case onto the canonical spelling.
func TestNormalizeSource_EnvDelimiter(t *testing.T) {
	schema := normalizeTestSchema(t)
	d := Descriptor{Name: "env", Delimiter: "__", FoldCase: true, Rank: 3}

	entries, err := normalizeSource(schema, d, []RawValue{
		{Key: "APP__PORT", Value: "8080"},
	}, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, []string{"app", "port"}, entries[0].Path)
	assert.Equal(t, "8080", entries[0].Value)
	assert.Equal(t, "env", entries[0].Source)
	assert.Equal(t, 3, entries[0].Rank)
}

// TestNormalizeSource_DotDelimiter verifies that file-style dotted keys map
// onto the same canonical paths as env-style keys.
func TestNormalizeSource_DotDelimiter(t *testing.T) {
	schema := normalizeTestSchema(t)
	d := Descriptor{Name: "file:config.yaml", Delimiter: "."}

	entries, err := normalizeSource(schema, d, []RawValue{
		{Key: "app.port", Value: 9090},
	}, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"app", "port"}, entries[0].Path)
}

// TestSplitKey_DropsEmptySegments verifies that doubled or trailing
// delimiters do not produce empty path segments.
func TestSplitKey_DropsEmptySegments(t *testing.T) {
	assert.Equal(t, []string{"app", "port"}, splitKey("app..port.", "."))
	assert.Equal(t, []string{"app", "port"}, splitKey("APP____PORT", "__"))
	assert.Empty(t, splitKey("", "."))
}

// ── schema matching ────────────────────────────────────────────────────────

// TestNormalizeSource_AliasMatch verifies that a declared alias maps onto the
// canonical field name regardless of the source's case policy.
func TestNormalizeSource_AliasMatch(t *testing.T) {
	schema := normalizeTestSchema(t)
	d := Descriptor{Name: "file:config.yaml", Delimiter: "."}

	entries, err := normalizeSource(schema, d, []RawValue{
		{Key: "app.HOSTNAME", Value: "example.com"},
	}, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"app", "host"}, entries[0].Path)
}

// TestNormalizeSource_CaseSensitiveWithoutFold verifies that a source with
// case folding disabled rejects a differently-cased key.
func TestNormalizeSource_CaseSensitiveWithoutFold(t *testing.T) {
	schema := normalizeTestSchema(t)
	d := Descriptor{Name: "file:config.yaml", Delimiter: "."}

	entries, err := normalizeSource(schema, d, []RawValue{
		{Key: "APP.PORT", Value: 1},
	}, false)
	require.NoError(t, err)
	assert.Empty(t, entries, "folded match must not apply when FoldCase is off")
}

// TestNormalizeSource_MapKeysPreservedVerbatim verifies that segments below a
// declared leaf field keep their spelling, including case, even for folding
// sources.
func TestNormalizeSource_MapKeysPreservedVerbatim(t *testing.T) {
	schema := normalizeTestSchema(t)
	d := Descriptor{Name: "env", Delimiter: "__", FoldCase: true}

	entries, err := normalizeSource(schema, d, []RawValue{
		{Key: "LABELS__Team", Value: "core"},
	}, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"labels", "Team"}, entries[0].Path)
}

// ── unknown keys ───────────────────────────────────────────────────────────

// TestNormalizeSource_UnknownKeyDropped verifies the default lenient policy:
// keys matching no declared field are silently discarded.
func TestNormalizeSource_UnknownKeyDropped(t *testing.T) {
	schema := normalizeTestSchema(t)
	d := Descriptor{Name: "env", Delimiter: "__", FoldCase: true}

	entries, err := normalizeSource(schema, d, []RawValue{
		{Key: "PATH", Value: "/usr/bin"},
		{Key: "APP__PORT", Value: "8080"},
	}, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"app", "port"}, entries[0].Path)
}

// TestNormalizeSource_UnknownKeyStrict verifies that strict mode turns an
// unknown key into a NormalizationError.
func TestNormalizeSource_UnknownKeyStrict(t *testing.T) {
	schema := normalizeTestSchema(t)
	d := Descriptor{Name: "env", Delimiter: "__", FoldCase: true}

	_, err := normalizeSource(schema, d, []RawValue{
		{Key: "APP__UNKNOWN", Value: "x"},
	}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNormalization)

	var nErr *NormalizationError
	require.ErrorAs(t, err, &nErr)
	assert.Equal(t, "env", nErr.Source)
	assert.Equal(t, "APP__UNKNOWN", nErr.Key)
}

// TestNormalizeSource_InteriorGroupRejected verifies that a raw key naming an
// interior group rather than a leaf field does not resolve.
func TestNormalizeSource_InteriorGroupRejected(t *testing.T) {
	schema := normalizeTestSchema(t)
	d := Descriptor{Name: "env", Delimiter: "__", FoldCase: true}

	entries, err := normalizeSource(schema, d, []RawValue{
		{Key: "APP", Value: "whole-group"},
	}, false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// ── duplicates ─────────────────────────────────────────────────────────────

// TestNormalizeSource_DuplicateDistinctKeysFatal verifies that two distinct
// raw keys normalizing to the same path within one source are always an
// error, strict mode or not.
func TestNormalizeSource_DuplicateDistinctKeysFatal(t *testing.T) {
	schema := normalizeTestSchema(t)
	d := Descriptor{Name: "env", Delimiter: "__", FoldCase: true}

	_, err := normalizeSource(schema, d, []RawValue{
		{Key: "APP__HOST", Value: "a"},
		{Key: "APP__HOSTNAME", Value: "b"},
	}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	var dErr *DuplicateKeyError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "app.host", dErr.Path)
	assert.Equal(t, "APP__HOST", dErr.FirstKey)
	assert.Equal(t, "APP__HOSTNAME", dErr.SecondKey)
}

// TestNormalizeSource_SameKeyRepeatedAllowed verifies that the same raw key
// appearing twice is not a duplicate: both entries survive and rank-stable
// merging later lets the last one win.
func TestNormalizeSource_SameKeyRepeatedAllowed(t *testing.T) {
	schema := normalizeTestSchema(t)
	d := Descriptor{Name: "file:config.yaml", Delimiter: "."}

	entries, err := normalizeSource(schema, d, []RawValue{
		{Key: "app.port", Value: 1},
		{Key: "app.port", Value: 2},
	}, false)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

// ── nil schema passthrough ─────────────────────────────────────────────────

// TestNormalizeSource_NilSchemaPassthrough verifies that without a schema
// keys are split and optionally lower-cased but otherwise untouched.
func TestNormalizeSource_NilSchemaPassthrough(t *testing.T) {
	d := Descriptor{Name: "env", Delimiter: "__", FoldCase: true}

	entries, err := normalizeSource(nil, d, []RawValue{
		{Key: "ANY__KEY", Value: "v"},
	}, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"any", "key"}, entries[0].Path)
}

// TestNormalizeSource_NilSchemaKeepsCase verifies that passthrough preserves
// case for sources that do not fold.
func TestNormalizeSource_NilSchemaKeepsCase(t *testing.T) {
	d := Descriptor{Name: "file:config.yaml", Delimiter: "."}

	entries, err := normalizeSource(nil, d, []RawValue{
		{Key: "App.Port", Value: 1},
	}, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"App", "Port"}, entries[0].Path)
}

// TestNormalizeSource_ErrorsIsWiring double-checks that the typed errors
// unwrap to their sentinels.
func TestNormalizeSource_ErrorsIsWiring(t *testing.T) {
	assert.True(t, errors.Is(&NormalizationError{}, ErrNormalization))
	assert.True(t, errors.Is(&DuplicateKeyError{}, ErrDuplicateKey))
}
