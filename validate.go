package settings

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// validate is the shared validator instance. Field names in violation
// reports use the `conf` tag spelling so they line up with canonical paths.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("conf"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return strings.ToLower(fld.Name)
		}
		return name
	})
	return v
}

// decodeAndValidate turns a merged tree into a typed settings struct.
//
// The tree is decoded into a fresh instance, typed defaults are merged
// underneath it, source-level required fields are checked against the tree,
// and `validate` tag constraints are applied. Failures from all stages are
// aggregated into one ValidationError; target is written only when every
// field passed, so callers never observe a partially valid configuration.
func decodeAndValidate(tree *Tree, schema *Schema, target, defaults any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("load target must be a non-nil struct pointer, got %T", target)
	}

	fresh := reflect.New(rv.Elem().Type())

	var fields []FieldError

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "conf",
		Result:           fresh.Interface(),
		WeaklyTypedInput: true,
		Squash:           true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("building decoder: %w", err)
	}
	if err = dec.Decode(tree.Values()); err != nil {
		fields = append(fields, decodeFailures(err, tree)...)
	}

	if defaults != nil {
		if err = mergeTypedDefaults(fresh, defaults); err != nil {
			return err
		}
	}

	if schema != nil {
		for _, f := range schema.Fields() {
			if !f.Required {
				continue
			}
			if _, ok := tree.Get(f.Path); !ok {
				fields = append(fields, FieldError{
					Path:   f.Path,
					Reason: "required field not supplied by any source",
				})
			}
		}
	}

	if err = validate.Struct(fresh.Interface()); err != nil {
		var violations validator.ValidationErrors
		if errors.As(err, &violations) {
			for _, fe := range violations {
				fields = append(fields, constraintFailure(fe, tree))
			}
		} else {
			return fmt.Errorf("validating configuration: %w", err)
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	rv.Elem().Set(fresh.Elem())
	return nil
}

// mergeTypedDefaults fills zero-valued fields of the decoded struct from a
// defaults struct of the same type.
func mergeTypedDefaults(fresh reflect.Value, defaults any) error {
	dv := reflect.ValueOf(defaults)
	if dv.Kind() == reflect.Pointer {
		if dv.IsNil() {
			return nil
		}
		dv = dv.Elem()
	}
	if dv.Type() != fresh.Elem().Type() {
		return fmt.Errorf("defaults type %s does not match target type %s",
			dv.Type(), fresh.Elem().Type())
	}

	if err := mergo.Merge(fresh.Interface(), dv.Interface()); err != nil {
		return fmt.Errorf("error merging default configs: %w", err)
	}
	return nil
}

// decodeFailures converts a mapstructure decode error into field-level
// failures. Messages look like "cannot parse 'db.port' as int: ..."; the
// quoted name is the canonical path.
func decodeFailures(err error, tree *Tree) []FieldError {
	msgs := strings.Split(err.Error(), "\n")
	var out []FieldError
	for _, msg := range msgs {
		msg = strings.TrimSpace(strings.TrimPrefix(msg, "*"))
		if msg == "" || strings.HasSuffix(msg, "error(s) decoding:") {
			continue
		}

		path := quotedName(msg)
		var value any
		if path != "" {
			value, _ = tree.Get(path)
		}
		out = append(out, FieldError{Path: path, Reason: msg, Value: value})
	}
	if len(out) == 0 {
		out = append(out, FieldError{Reason: err.Error()})
	}
	return out
}

func quotedName(msg string) string {
	start := strings.IndexByte(msg, '\'')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(msg[start+1:], '\'')
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}

// constraintFailure converts one validator violation into a FieldError with
// the offending raw value from the merged tree.
func constraintFailure(fe validator.FieldError, tree *Tree) FieldError {
	// Namespace begins with the root struct type name.
	segs := strings.Split(fe.Namespace(), ".")
	path := strings.Join(segs[1:], ".")

	reason := fmt.Sprintf("failed validation rule %q", fe.Tag())
	if fe.Param() != "" {
		reason = fmt.Sprintf("failed validation rule %q (param %s)", fe.Tag(), fe.Param())
	}

	value, ok := tree.Get(path)
	if !ok {
		value = fe.Value()
	}
	return FieldError{Path: path, Reason: reason, Value: value}
}
