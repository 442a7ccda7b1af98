package models

import (
	"errors"
	"reflect"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/orgview/internal/apperr"
)

// ValidateField checks value against the field's kind and options.
// A nil value is always valid: absent fields are optional.
func ValidateField(f FieldSpec, value any) error {
	if value == nil {
		return nil
	}
	return validation.Validate(value, fieldRules(f)...)
}

// ValidateFrontmatter validates every schema field present in fm against the
// schema of fm's type. Fields outside the schema are not checked.
func ValidateFrontmatter(fm Frontmatter) error {
	return ValidateChanges(fm, nil)
}

// ValidateChanges is ValidateFrontmatter limited to the schema fields whose
// value differs from prev, so values already stored are accepted as they
// are. A change of type checks every field. A nil prev checks every field.
func ValidateChanges(fm, prev Frontmatter) error {
	t, _ := fm.String("type")
	sameType := false
	if prev != nil {
		pt, _ := prev.String("type")
		sameType = ParseDocType(pt) == ParseDocType(t)
	}
	errs := validation.Errors{}
	for _, f := range Schema(ParseDocType(t)) {
		if sameType && reflect.DeepEqual(fm[f.Name], prev[f.Name]) {
			continue
		}
		errs[f.Name] = ValidateField(f, fm[f.Name])
	}
	return toValidationError(errs.Filter())
}

func fieldRules(f FieldSpec) []validation.Rule {
	switch f.Kind {
	case KindEnum:
		opts := make([]any, len(f.Options))
		for i, o := range f.Options {
			opts[i] = o
		}
		return []validation.Rule{validation.By(isString), validation.In(opts...)}
	case KindTags:
		return []validation.Rule{validation.By(isTagList)}
	default:
		return []validation.Rule{validation.By(isScalar)}
	}
}

func isString(v any) error {
	if _, ok := v.(string); !ok {
		return errors.New("must be a string")
	}
	return nil
}

func isScalar(v any) error {
	switch v.(type) {
	case string, bool, int, int64, uint64, float64, time.Time:
		return nil
	default:
		return errors.New("must be a scalar value")
	}
}

// isTagList accepts a YAML list of strings or a single comma-separated string.
func isTagList(v any) error {
	switch tags := v.(type) {
	case string, []string:
		return nil
	case []any:
		for _, t := range tags {
			if _, ok := t.(string); !ok {
				return errors.New("must be a list of strings")
			}
		}
		return nil
	default:
		return errors.New("must be a list of strings")
	}
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return &apperr.ValidationError{Fields: map[string]string{"": err.Error()}}
	}
	fields := make(map[string]string, len(errs))
	for k, e := range errs {
		fields[k] = e.Error()
	}
	return &apperr.ValidationError{Fields: fields}
}
