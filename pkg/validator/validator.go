package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// FieldError describes the first rule a struct field failed
type FieldError struct {
	Field string
	Rule  string
	msg   string
}

func (e *FieldError) Error() string {
	return e.msg
}

// ValidateStruct validates a struct based on validate tags.
//
// Supported rules: required, email, min=N, max=N (string length in runes or
// slice length) and oneof=a b c. Fields are reported by their json name.
func ValidateStruct(s any) error {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return errors.New("not a struct")
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("validate")
		if tag == "" {
			continue
		}

		name := fieldName(field)
		for _, rule := range strings.Split(tag, ",") {
			if err := validateField(name, v.Field(i), rule); err != nil {
				return err
			}
		}
	}

	return nil
}

func fieldName(field reflect.StructField) string {
	if tag := field.Tag.Get("json"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}

func validateField(name string, value reflect.Value, rule string) error {
	fail := func(format string, args ...any) error {
		return &FieldError{Field: name, Rule: rule, msg: fmt.Sprintf(format, args...)}
	}

	if value.Kind() == reflect.Ptr {
		if value.IsNil() {
			if rule == "required" {
				return fail("%s is required", name)
			}
			return nil
		}
		value = value.Elem()
	}

	key, arg, _ := strings.Cut(rule, "=")
	switch key {
	case "required":
		if isZero(value) {
			return fail("%s is required", name)
		}
	case "email":
		if value.Kind() == reflect.String && value.String() != "" {
			if err := ValidateEmail(value.String()); err != nil {
				return fail("%s must be a valid email", name)
			}
		}
	case "min", "max":
		limit, err := strconv.Atoi(arg)
		if err != nil {
			return fail("invalid %s rule on %s", key, name)
		}
		n, ok := length(value)
		if !ok {
			return nil
		}
		if key == "min" && n < limit {
			return fail("%s must be at least %d characters", name, limit)
		}
		if key == "max" && n > limit {
			return fail("%s must be at most %d characters", name, limit)
		}
	case "oneof":
		if value.Kind() != reflect.String || value.String() == "" {
			return nil
		}
		allowed := strings.Fields(arg)
		for _, candidate := range allowed {
			if value.String() == candidate {
				return nil
			}
		}
		return fail("%s must be one of: %s", name, strings.Join(allowed, ", "))
	}
	return nil
}

func length(v reflect.Value) (int, bool) {
	switch v.Kind() {
	case reflect.String:
		return utf8.RuneCountInString(strings.TrimSpace(v.String())), true
	case reflect.Slice, reflect.Array, reflect.Map:
		return v.Len(), true
	default:
		return 0, false
	}
}

// isZero checks if a value is zero/empty
func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return strings.TrimSpace(v.String()) == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !emailRegex.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// NormalizeSet trims, lower-cases, de-duplicates and sorts a list of terms,
// dropping empty entries
func NormalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(SanitizeString(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	sort.Strings(result)
	return result
}
