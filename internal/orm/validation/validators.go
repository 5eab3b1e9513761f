package validation

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Pre-compiled regex patterns for validators
var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ImageExtensions lists the file extensions accepted by image fields
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// Func validates a single field value. A nil value is never passed by the
// save path for nullable fields; validators still treat nil as valid.
type Func func(value interface{}) error

// Email validates an e-mail address
func Email(value interface{}) error {
	s, ok := asString(value)
	if !ok {
		return nil
	}
	if !emailPattern.MatchString(s) {
		return fmt.Errorf("enter a valid email address")
	}
	return nil
}

// URL validates an absolute URL with a scheme and a host
func URL(value interface{}) error {
	s, ok := asString(value)
	if !ok {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter a valid URL")
	}
	return nil
}

// UUID validates a UUID in any of the textual forms accepted by uuid.Parse
func UUID(value interface{}) error {
	if value == nil {
		return nil
	}
	if _, ok := value.(uuid.UUID); ok {
		return nil
	}
	if _, err := uuid.Parse(fmt.Sprint(value)); err != nil {
		return fmt.Errorf("enter a valid UUID")
	}
	return nil
}

// IP validates an IPv4 or IPv6 address
func IP(value interface{}) error {
	s, ok := asString(value)
	if !ok {
		return nil
	}
	if net.ParseIP(s) == nil {
		return fmt.Errorf("enter a valid IPv4 or IPv6 address")
	}
	return nil
}

// MaxLength limits the number of characters in a string value
func MaxLength(n int) Func {
	return func(value interface{}) error {
		s, ok := asString(value)
		if !ok {
			return nil
		}
		if utf8.RuneCountInString(s) > n {
			return fmt.Errorf("must be at most %d characters", n)
		}
		return nil
	}
}

// OneOf restricts a value to a fixed set of choices
func OneOf(choices ...string) Func {
	return func(value interface{}) error {
		if value == nil {
			return nil
		}
		s := fmt.Sprint(value)
		for _, c := range choices {
			if c == s {
				return nil
			}
		}
		return fmt.Errorf("%s is not a valid choice", s)
	}
}

// Extension restricts file names to the given extensions (case-insensitive)
func Extension(allowed ...string) Func {
	return func(value interface{}) error {
		s, ok := asString(value)
		if !ok || s == "" {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(s))
		for _, a := range allowed {
			if ext == a {
				return nil
			}
		}
		return fmt.Errorf("unsupported file format: %s", ext)
	}
}

// Pattern validates a string against a regular expression
func Pattern(re *regexp.Regexp) Func {
	return func(value interface{}) error {
		s, ok := asString(value)
		if !ok {
			return nil
		}
		if !re.MatchString(s) {
			return fmt.Errorf("does not match required pattern")
		}
		return nil
	}
}

// Range validates that a numeric value lies within [min, max]
func Range(min, max float64) Func {
	return func(value interface{}) error {
		if value == nil {
			return nil
		}
		f, ok := toFloat64(value)
		if !ok {
			return fmt.Errorf("expected numeric value")
		}
		if f < min || f > max {
			return fmt.Errorf("must be between %v and %v", min, max)
		}
		return nil
	}
}

func asString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

func toFloat64(value interface{}) (float64, bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
