// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnviron substitutes the environment snapshot of an env source.
func fakeEnviron(src Source, vars ...string) {
	src.(*envSource).environ = func() []string { return vars }
}

// ── fetching ───────────────────────────────────────────────────────────────

// TestEnvSource_FetchAllVariables verifies that without a prefix every
// well-formed variable is fetched as-is.
func TestEnvSource_FetchAllVariables(t *testing.T) {
	src := NewEnv(EnvConfig{})
	fakeEnviron(src, "APP__PORT=8080", "HOME=/root")

	raw, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []RawValue{
		{Key: "APP__PORT", Value: "8080"},
		{Key: "HOME", Value: "/root"},
	}, raw)
}

// TestEnvSource_FetchSkipsMalformed verifies that entries without "=" or with
// an empty name are dropped.
func TestEnvSource_FetchSkipsMalformed(t *testing.T) {
	src := NewEnv(EnvConfig{})
	fakeEnviron(src, "NOEQUALS", "=value", "OK=1")

	raw, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []RawValue{{Key: "OK", Value: "1"}}, raw)
}

// TestEnvSource_FetchSnapshotsPerCall verifies that each fetch re-reads the
// environment instead of caching the first snapshot.
func TestEnvSource_FetchSnapshotsPerCall(t *testing.T) {
	src := NewEnv(EnvConfig{})
	fakeEnviron(src, "APP__PORT=1")

	raw, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1", raw[0].Value)

	fakeEnviron(src, "APP__PORT=2")
	raw, err = src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", raw[0].Value)
}

// TestEnvSource_RealEnvironment verifies the os.Environ default by round
// tripping a variable through t.Setenv.
func TestEnvSource_RealEnvironment(t *testing.T) {
	t.Setenv("GOSETTINGS_TEST__MARKER", "present")

	src := NewEnv(EnvConfig{Prefix: "GOSETTINGS_TEST"})
	raw, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []RawValue{{Key: "MARKER", Value: "present"}}, raw)
}

// ── prefix filtering ───────────────────────────────────────────────────────

// TestEnvSource_PrefixFiltersAndStrips verifies that only prefixed variables
// contribute and the prefix plus separator is removed.
func TestEnvSource_PrefixFiltersAndStrips(t *testing.T) {
	src := NewEnv(EnvConfig{Prefix: "MYAPP"})
	fakeEnviron(src,
		"MYAPP__DB__HOST=db1",
		"MYAPP_PORT=8080",
		"OTHER__KEY=x",
		"MYAPPX=not-separated",
		"MYAPP=bare",
	)

	raw, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []RawValue{
		{Key: "DB__HOST", Value: "db1"},
		{Key: "PORT", Value: "8080"},
	}, raw)
}

// TestEnvSource_PrefixCaseFolds verifies that prefix matching follows the
// source's case policy.
func TestEnvSource_PrefixCaseFolds(t *testing.T) {
	src := NewEnv(EnvConfig{Prefix: "MYAPP"})
	fakeEnviron(src, "myapp__port=8080")

	raw, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []RawValue{{Key: "port", Value: "8080"}}, raw)
}

// TestEnvSource_PrefixCaseSensitive verifies that CaseSensitive disables
// folded prefix matching.
func TestEnvSource_PrefixCaseSensitive(t *testing.T) {
	src := NewEnv(EnvConfig{Prefix: "MYAPP", CaseSensitive: true})
	fakeEnviron(src, "myapp__port=8080", "MYAPP__HOST=h")

	raw, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []RawValue{{Key: "HOST", Value: "h"}}, raw)
}

// ── descriptor ─────────────────────────────────────────────────────────────

// TestEnvSource_DescriptorDefaults verifies kind, name, delimiter and case
// policy defaults.
func TestEnvSource_DescriptorDefaults(t *testing.T) {
	d := NewEnv(EnvConfig{}).Descriptor()

	assert.Equal(t, KindEnv, d.Kind)
	assert.Equal(t, "env", d.Name)
	assert.Equal(t, "__", d.Delimiter)
	assert.True(t, d.FoldCase)
	assert.False(t, d.Required)
}

// TestEnvSource_DescriptorWithPrefix verifies that the prefix is part of the
// source name used in provenance and errors.
func TestEnvSource_DescriptorWithPrefix(t *testing.T) {
	d := NewEnv(EnvConfig{Prefix: "MYAPP", Rank: 7, Required: true}).Descriptor()

	assert.Equal(t, "env:MYAPP", d.Name)
	assert.Equal(t, 7, d.Rank)
	assert.True(t, d.Required)
}

// ── prefix stripping ───────────────────────────────────────────────────────

// TestStripEnvPrefix verifies the separator rules around the prefix boundary.
func TestStripEnvPrefix(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
		ok   bool
	}{
		{name: "single underscore", key: "APP_PORT", want: "PORT", ok: true},
		{name: "double underscore", key: "APP__PORT", want: "PORT", ok: true},
		{name: "nested remainder", key: "APP__DB__HOST", want: "DB__HOST", ok: true},
		{name: "no separator", key: "APPPORT", ok: false},
		{name: "bare prefix", key: "APP", ok: false},
		{name: "separator only", key: "APP__", ok: false},
		{name: "different prefix", key: "API_PORT", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stripEnvPrefix(tt.key, "APP", false)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
