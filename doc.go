// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package settings resolves typed application configuration by merging
// multiple external sources (process environment variables, .env files,
// YAML/TOML/JSON files, a remote configuration service, command-line flags)
// in a deterministic precedence order, then validating the merged result
// against a declared schema.
//
// Sources are assembled in ascending precedence (later sources override
// earlier ones on conflicting field paths):
//  1. Static defaults
//  2. Structured config files (YAML/TOML/JSON)
//  3. .env files
//  4. Environment variables
//  5. Remote configuration service
//  6. Command-line flags
//
// The main entry point is [New], which returns a builder:
//
//	var cfg AppConfig
//	r, err := settings.New().
//		WithDefaults(defaults).
//		WithFile("config.yaml").
//		WithEnv("APP").
//		Build()
//	if err != nil { ... }
//	if err := r.Load(ctx, &cfg); err != nil { ... }
//
// Schema information (field paths, aliases, required flags) is read from
// `conf` struct tags and never mutated by the resolution core. Validation
// constraints use go-playground/validator `validate` tags and are reported
// aggregated across all fields.
package settings
