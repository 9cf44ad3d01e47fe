package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Key layout separators.
const (
	PrefixSeparator = ":"
	NameSeparator   = ":"
	ParamSeparator  = "|"
	ListSeparator   = ","
)

// MaxKeyLength is the longest key Build returns verbatim. Longer keys keep their
// prefix and replace the parameter section with a digest.
const MaxKeyLength = 512

// Params are the named inputs that identify a cached value.
type Params map[string]any

// KeyBuilder builds canonical cache keys.
//
// Two Params that differ only in map ordering, name casing or the order of
// list values produce the same key.
type KeyBuilder interface {
	Build(prefix string, params Params) string
}

type canonicalKeyBuilder struct {
	maxLength int
}

// NewKeyBuilder returns the default KeyBuilder producing
// "prefix:name1:value1|name2:value2" keys.
func NewKeyBuilder() KeyBuilder {
	return &canonicalKeyBuilder{maxLength: MaxKeyLength}
}

type keyPart struct {
	name  string
	value string
}

// Build canonicalizes params under prefix. Names are snake_cased and sorted,
// list values are sorted, and empty values are omitted.
func (b *canonicalKeyBuilder) Build(prefix string, params Params) string {
	parts := make([]keyPart, 0, len(params))
	for name, value := range params {
		serialized, ok := serializeValue(value)
		if !ok {
			continue
		}
		snake := toSnake(name)
		if snake == "" {
			continue
		}
		parts = append(parts, keyPart{name: snake, value: serialized})
	}

	sort.Slice(parts, func(i, j int) bool {
		if parts[i].name != parts[j].name {
			return parts[i].name < parts[j].name
		}
		return parts[i].value < parts[j].value
	})

	segments := make([]string, len(parts))
	for i, p := range parts {
		segments[i] = p.name + NameSeparator + p.value
	}

	key := prefix
	if len(segments) > 0 {
		key = prefix + PrefixSeparator + strings.Join(segments, ParamSeparator)
	}

	if len(key) <= b.maxLength {
		return key
	}
	return fmt.Sprintf("%s%sh%016x", prefix, PrefixSeparator, xxhash.Sum64String(key))
}

// serializeValue renders v as a key segment. The boolean is false when v is
// empty and must be omitted.
func serializeValue(v any) (string, bool) {
	if v == nil {
		return "", false
	}

	switch val := v.(type) {
	case string:
		if val == "" {
			return "", false
		}
		return escape(val), true
	case time.Time:
		if val.IsZero() {
			return "", false
		}
		return val.UTC().Format(time.RFC3339Nano), true
	case *time.Time:
		if val == nil || val.IsZero() {
			return "", false
		}
		return val.UTC().Format(time.RFC3339Nano), true
	case time.Duration:
		return val.String(), true
	case fmt.Stringer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", false
		}
		s := val.String()
		return escape(s), s != ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "", false
		}
		return serializeValue(rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return "", false
		}
		return serializeList(rv)

	case reflect.Map:
		if rv.Len() == 0 {
			return "", false
		}
		return serializeMap(rv)

	case reflect.String:
		s := rv.String()
		return escape(s), s != ""

	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true

	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), true

	case reflect.Struct:
		return serializeStruct(rv)
	}

	return escape(fmt.Sprintf("%v", v)), true
}

// serializeList sorts the rendered elements so list order never affects the key.
func serializeList(rv reflect.Value) (string, bool) {
	items := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		s, ok := serializeValue(rv.Index(i).Interface())
		if !ok {
			continue
		}
		items = append(items, s)
	}
	if len(items) == 0 {
		return "", false
	}
	sort.Strings(items)
	return strings.Join(items, ListSeparator), true
}

func serializeMap(rv reflect.Value) (string, bool) {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, ok := serializeValue(iter.Key().Interface())
		if !ok {
			continue
		}
		v, ok := serializeValue(iter.Value().Interface())
		if !ok {
			continue
		}
		pairs = append(pairs, k+"="+v)
	}
	if len(pairs) == 0 {
		return "", false
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ListSeparator) + "}", true
}

func serializeStruct(rv reflect.Value) (string, bool) {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		s, ok := serializeValue(rv.Field(i).Interface())
		if !ok {
			continue
		}
		parts = append(parts, toSnake(field.Name)+"="+s)
	}
	if len(parts) == 0 {
		return "", false
	}
	return "{" + strings.Join(parts, ListSeparator) + "}", true
}

var keyEscaper = strings.NewReplacer(
	`\`, `\\`,
	PrefixSeparator, `\`+PrefixSeparator,
	ParamSeparator, `\`+ParamSeparator,
	ListSeparator, `\`+ListSeparator,
	"=", `\=`,
	"{", `\{`,
	"}", `\}`,
)

func escape(s string) string {
	return keyEscaper.Replace(s)
}
