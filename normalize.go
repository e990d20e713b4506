// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package settings

import "strings"

// normalizeSource converts one provider's raw key/value pairs into canonical
// entries aligned with the schema's field hierarchy.
//
// Raw keys are split on the source's delimiter, matched against the schema
// (exact, then alias, then case-insensitive when the source folds case) and
// rewritten to the canonical spelling. Keys matching no declared field are
// dropped, or fatal in strict mode. Two distinct raw keys normalizing to the
// same path within one source are always fatal; the same collision across
// sources is resolved later by rank.
//
// A nil schema passes keys through untouched apart from delimiter splitting
// and optional lower-casing, so a resolver can produce a raw merged tree
// without a declared schema.
func normalizeSource(schema *Schema, d Descriptor, raw []RawValue, strict bool) ([]RawEntry, error) {
	entries := make([]RawEntry, 0, len(raw))
	seen := make(map[string]string, len(raw))

	for _, rv := range raw {
		segs := splitKey(rv.Key, d.Delimiter)
		if len(segs) == 0 {
			continue
		}

		var canon []string
		if schema != nil {
			var ok bool
			canon, ok = schema.Resolve(segs, d.FoldCase)
			if !ok {
				if strict {
					return nil, &NormalizationError{Source: d.Name, Key: rv.Key}
				}
				continue
			}
		} else {
			canon = segs
			if d.FoldCase {
				canon = make([]string, len(segs))
				for i, s := range segs {
					canon[i] = strings.ToLower(s)
				}
			}
		}

		dotted := strings.Join(canon, ".")
		if prev, dup := seen[dotted]; dup && prev != rv.Key {
			return nil, &DuplicateKeyError{
				Source:    d.Name,
				Path:      dotted,
				FirstKey:  prev,
				SecondKey: rv.Key,
			}
		}
		seen[dotted] = rv.Key

		entries = append(entries, RawEntry{
			Path:   canon,
			Value:  rv.Value,
			Source: d.Name,
			Rank:   d.Rank,
		})
	}

	return entries, nil
}

// splitKey splits a raw key into path segments. A non-dot delimiter (e.g.
// "__") is rewritten to "." first, so remote property keys may mix both
// spellings. Empty segments are discarded.
func splitKey(key, delimiter string) []string {
	if delimiter != "" && delimiter != "." {
		key = strings.ReplaceAll(key, delimiter, ".")
	}

	parts := strings.Split(key, ".")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}
