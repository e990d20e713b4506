// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package settings

import (
	"sort"
	"strings"
)

// ListMerge selects how sequence-valued paths combine across sources.
type ListMerge int

const (
	// ListReplace substitutes the higher-rank sequence wholesale. This is
	// the default: it keeps "last source wins" deterministic and prevents
	// unbounded growth through repeated merges.
	ListReplace ListMerge = iota

	// ListByIndex overlays the higher-rank sequence element-wise; elements
	// of the lower-rank sequence beyond the new length are kept.
	ListByIndex
)

// ListMergePolicy returns the merge rule for a sequence at the given
// canonical dotted path. A nil policy means ListReplace everywhere.
type ListMergePolicy func(path string) ListMerge

// Tree is the merged nested configuration structure. Every path holds
// exactly one value after merge; conflicts have been resolved by source
// rank. A Tree is built fresh on every resolution pass.
type Tree struct {
	values map[string]any
	prov   map[string]string
}

func newTree() *Tree {
	return &Tree{
		values: make(map[string]any),
		prov:   make(map[string]string),
	}
}

// Values returns the nested mapping. Callers must treat it as read-only.
func (t *Tree) Values() map[string]any { return t.values }

// Get returns the value at a canonical dotted path.
func (t *Tree) Get(path string) (any, bool) {
	var cur any = t.values
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ProvenanceOf returns the name of the source that supplied the value at the
// given path.
func (t *Tree) ProvenanceOf(path string) (string, bool) {
	src, ok := t.prov[path]
	return src, ok
}

// Provenance returns the winning source per contributed path. Callers must
// treat it as read-only.
func (t *Tree) Provenance() map[string]string { return t.prov }

// mergeEntries combines normalized entries from all sources into one Tree.
//
// Entries are applied in ascending rank order; the sort is stable, so ties
// within one source keep declaration order and the last write wins. For each
// entry the path is walked and created as needed: scalars replace scalars,
// mappings deep-merge with later leaves winning, sequences follow the list
// policy, and a scalar-vs-container type conflict is won entirely by the
// later entry.
func mergeEntries(entries []RawEntry, policy ListMergePolicy) *Tree {
	ordered := make([]RawEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})

	t := newTree()
	for _, e := range ordered {
		t.insert(e, policy)
	}
	return t
}

func (t *Tree) insert(e RawEntry, policy ListMergePolicy) {
	m := t.values
	for i, seg := range e.Path[:len(e.Path)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			// Absent, or a scalar being overridden by a nested
			// structure from a later source: the structure wins.
			if _, present := m[seg]; present {
				t.dropProvenance(strings.Join(e.Path[:i+1], "."))
			}
			child = make(map[string]any)
			m[seg] = child
		}
		m = child
	}

	last := e.Path[len(e.Path)-1]
	dotted := strings.Join(e.Path, ".")

	// The tree owns its containers. Providers may hand over values aliased
	// to internal state (the remote source's release cache), so container
	// values are copied on entry; later merges then mutate tree-owned maps
	// only.
	val := deepCopyValue(e.Value)

	existing, present := m[last]
	if !present {
		m[last] = val
		t.recordProvenance(dotted, val, e.Source)
		return
	}

	m[last] = t.mergeValue(existing, val, dotted, e.Source, policy)
}

func (t *Tree) mergeValue(old, new any, path, source string, policy ListMergePolicy) any {
	oldMap, oldIsMap := old.(map[string]any)
	newMap, newIsMap := new.(map[string]any)
	if oldIsMap && newIsMap {
		for k, v := range newMap {
			sub := path + "." + k
			if prev, ok := oldMap[k]; ok {
				oldMap[k] = t.mergeValue(prev, v, sub, source, policy)
			} else {
				oldMap[k] = v
				t.recordProvenance(sub, v, source)
			}
		}
		return oldMap
	}

	oldList, oldIsList := old.([]any)
	newList, newIsList := new.([]any)
	if oldIsList && newIsList && listMergeFor(policy, path) == ListByIndex {
		merged := make([]any, 0, max(len(oldList), len(newList)))
		merged = append(merged, newList...)
		if len(oldList) > len(newList) {
			merged = append(merged, oldList[len(newList):]...)
		}
		t.dropProvenance(path)
		t.recordProvenance(path, merged, source)
		return merged
	}

	// Scalar replacement, wholesale sequence replacement, or a type
	// conflict: the later source wins entirely and any nested structure
	// from lower ranks is discarded.
	t.dropProvenance(path)
	t.recordProvenance(path, new, source)
	return new
}

func listMergeFor(policy ListMergePolicy, path string) ListMerge {
	if policy == nil {
		return ListReplace
	}
	return policy(path)
}

// recordProvenance marks source as the supplier of every leaf under path
// within val.
func (t *Tree) recordProvenance(path string, val any, source string) {
	if m, ok := val.(map[string]any); ok && len(m) > 0 {
		for k, v := range m {
			t.recordProvenance(path+"."+k, v, source)
		}
		return
	}
	t.prov[path] = source
}

// dropProvenance forgets the supplier of path and of everything beneath it.
func (t *Tree) dropProvenance(path string) {
	delete(t.prov, path)
	prefix := path + "."
	for k := range t.prov {
		if strings.HasPrefix(k, prefix) {
			delete(t.prov, k)
		}
	}
}
