// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package settings

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Field describes one declared configuration field: its canonical dotted
// path, alternative names accepted during normalization, and whether some
// source must supply it.
type Field struct {
	Path     string
	Aliases  []string
	Required bool
}

// Schema is a read-only descriptor of the declared configuration fields.
// It is built once from `conf` struct tags and queried by the key
// normalizer and the validation adapter; the resolution core never mutates
// it.
//
// Tag format:
//
//	Port int           `conf:"port,required"`
//	Host string        `conf:"host,alias=hostname,alias=addr"`
//	DB   DBConfig      `conf:"db"`
//	skip string        `conf:"-"`
//
// A field without a tag uses the lower-cased Go field name. Nested structs
// contribute a path segment; embedded structs are inlined.
type Schema struct {
	fields []Field
	root   *schemaNode
}

type schemaNode struct {
	children map[string]*schemaNode // by canonical segment
	folded   map[string]string      // lower-cased segment -> canonical segment
	alias    map[string]string      // lower-cased alias -> canonical segment
	field    *Field                 // non-nil for declared leaf fields
}

func newSchemaNode() *schemaNode {
	return &schemaNode{
		children: make(map[string]*schemaNode),
		folded:   make(map[string]string),
		alias:    make(map[string]string),
	}
}

// SchemaOf builds a Schema from the `conf` tags of target, which must be a
// struct or a non-nil pointer to one.
func SchemaOf(target any) (*Schema, error) {
	t := reflect.TypeOf(target)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema target must be a struct, got %T", target)
	}

	s := &Schema{root: newSchemaNode()}
	if err := s.addStruct(t, s.root, ""); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) addStruct(t reflect.Type, node *schemaNode, prefix string) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		name, opts := parseConfTag(sf)
		if name == "-" {
			continue
		}

		ft := sf.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}

		// Embedded structs without an explicit tag are inlined.
		if _, tagged := sf.Tag.Lookup("conf"); sf.Anonymous && ft.Kind() == reflect.Struct && !tagged {
			if err := s.addStruct(ft, node, prefix); err != nil {
				return err
			}
			continue
		}

		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		child, err := node.addChild(name, opts.aliases)
		if err != nil {
			return fmt.Errorf("field %q: %w", path, err)
		}

		if isSchemaGroup(ft) {
			if err := s.addStruct(ft, child, path); err != nil {
				return err
			}
			continue
		}

		f := Field{Path: path, Aliases: opts.aliases, Required: opts.required}
		s.fields = append(s.fields, f)
		child.field = &f
	}
	return nil
}

// addChild registers a sibling segment with its aliases. Aliases match
// case-insensitively, so any case-folded collision between sibling names and
// aliases would make one of them unreachable; all such collisions are
// construction errors.
func (n *schemaNode) addChild(seg string, aliases []string) (*schemaNode, error) {
	if _, ok := n.children[seg]; ok {
		return nil, fmt.Errorf("segment %q declared twice", seg)
	}
	if canon, ok := n.alias[strings.ToLower(seg)]; ok {
		return nil, fmt.Errorf("segment %q collides with an alias of %q", seg, canon)
	}

	child := newSchemaNode()
	n.children[seg] = child
	n.folded[strings.ToLower(seg)] = seg

	for _, a := range aliases {
		la := strings.ToLower(a)
		if canon, ok := n.folded[la]; ok {
			return nil, fmt.Errorf("alias %q collides with segment %q", a, canon)
		}
		if canon, ok := n.alias[la]; ok {
			return nil, fmt.Errorf("alias %q declared for both %q and %q", a, canon, seg)
		}
		n.alias[la] = seg
	}
	return child, nil
}

// isSchemaGroup reports whether a struct type contributes nested path
// segments rather than being decoded as a single scalar value.
func isSchemaGroup(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	switch t {
	case reflect.TypeOf(time.Time{}):
		return false
	}
	return true
}

// Fields returns all declared leaf fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Lookup returns the declared field at the given canonical dotted path.
func (s *Schema) Lookup(path string) (Field, bool) {
	node := s.root
	for _, seg := range strings.Split(path, ".") {
		child, ok := node.children[seg]
		if !ok {
			return Field{}, false
		}
		node = child
	}
	if node.field == nil {
		return Field{}, false
	}
	return *node.field, true
}

// Resolve maps raw path segments onto the canonical schema path.
//
// Matching is exact first, then by alias, then case-insensitive when
// foldCase is set. Segments below a declared leaf field (e.g. keys inside a
// map-typed field) are preserved verbatim. Resolve returns false when the
// path reaches no declared field or group.
func (s *Schema) Resolve(segs []string, foldCase bool) ([]string, bool) {
	out := make([]string, 0, len(segs))
	node := s.root
	for i, seg := range segs {
		if node.field != nil {
			// Inside a leaf field's own value (map keys etc.).
			out = append(out, segs[i:]...)
			return out, true
		}

		canon, ok := node.matchSegment(seg, foldCase)
		if !ok {
			return nil, false
		}
		out = append(out, canon)
		node = node.children[canon]
	}
	if node.field == nil && len(node.children) > 0 {
		// Raw key names an interior group, not a field.
		return nil, false
	}
	return out, true
}

func (n *schemaNode) matchSegment(seg string, foldCase bool) (string, bool) {
	if _, ok := n.children[seg]; ok {
		return seg, true
	}
	// Aliases match case-insensitively regardless of policy; the canonical
	// spelling is declared exactly once in the tag.
	if canon, ok := n.alias[strings.ToLower(seg)]; ok {
		return canon, true
	}
	if foldCase {
		if canon, ok := n.folded[strings.ToLower(seg)]; ok {
			return canon, true
		}
	}
	return "", false
}

type confTagOptions struct {
	aliases  []string
	required bool
}

func parseConfTag(sf reflect.StructField) (string, confTagOptions) {
	var opts confTagOptions

	tag, ok := sf.Tag.Lookup("conf")
	if !ok {
		return strings.ToLower(sf.Name), opts
	}

	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		name = strings.ToLower(sf.Name)
	}
	for _, p := range parts[1:] {
		switch {
		case p == "required":
			opts.required = true
		case strings.HasPrefix(p, "alias="):
			if a := strings.TrimPrefix(p, "alias="); a != "" {
				opts.aliases = append(opts.aliases, a)
			}
		}
	}
	return name, opts
}
