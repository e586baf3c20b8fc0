// yarex/pkg/rule/meta.go

package rule

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"rgehrsitz/yarex/pkg/ident"
)

// MetaEntry is one `identifier = value` line of the meta section. Values are
// held as string, int64 or bool according to Type.
type MetaEntry struct {
	identifier string
	value      interface{}
	typ        MetaType
}

// NewMeta builds a metadata entry, coercing value to typ. JSON numbers
// (float64) and numeric strings are accepted for MetaInt; "true"/"false"
// strings for MetaBool.
func NewMeta(identifier string, value interface{}, typ MetaType) (MetaEntry, error) {
	id := ident.SanitizeIdentifier(identifier)
	if id == "" {
		return MetaEntry{}, fmt.Errorf("metadata identifier '%s' has no valid characters", identifier)
	}
	v, err := coerceMeta(value, typ)
	if err != nil {
		return MetaEntry{}, err
	}
	return MetaEntry{identifier: id, value: v, typ: typ}, nil
}

// InferMeta builds an entry whose type follows the Go type of value.
func InferMeta(identifier string, value interface{}) (MetaEntry, error) {
	return NewMeta(identifier, value, inferMetaType(value))
}

func (m MetaEntry) Identifier() string { return m.identifier }
func (m MetaEntry) Value() interface{} { return m.value }
func (m MetaEntry) Type() MetaType { return m.typ }

// String renders the entry as it appears inside the meta section.
func (m MetaEntry) String() string {
	switch m.typ {
	case MetaInt:
		return fmt.Sprintf("%s = %d", m.identifier, m.value.(int64))
	case MetaBool:
		return fmt.Sprintf("%s = %t", m.identifier, m.value.(bool))
	default:
		return fmt.Sprintf("%s = %s", m.identifier, QuoteText(m.value.(string)))
	}
}

func inferMetaType(value interface{}) MetaType {
	switch value.(type) {
	case bool:
		return MetaBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, float32, float64:
		return MetaInt
	default:
		return MetaString
	}
}

func coerceMeta(value interface{}, typ MetaType) (interface{}, error) {
	switch typ {
	case MetaString:
		switch v := value.(type) {
		case string:
			return v, nil
		case nil:
			return "", nil
		default:
			return fmt.Sprint(v), nil
		}
	case MetaInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint:
			return int64(v), nil
		case uint8:
			return int64(v), nil
		case uint16:
			return int64(v), nil
		case uint32:
			return int64(v), nil
		case float32:
			return floatToInt(float64(v))
		case float64:
			return floatToInt(v)
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
			if err != nil {
				return nil, fmt.Errorf("value '%s' is not an integer", v)
			}
			return n, nil
		}
	case MetaBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("value '%s' is not a boolean", v)
			}
			return b, nil
		}
	default:
		return nil, fmt.Errorf("unknown metadata type %v", typ)
	}
	return nil, fmt.Errorf("value '%v' cannot be used as %s", value, typ)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("value '%v' is not an integer", f)
	}
	return int64(f), nil
}
