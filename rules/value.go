package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds
type Kind int

const (
	KindInvalid Kind = iota
	KindNumber
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value is a rule literal or a resolved input field: a number, a string or a boolean.
// The zero Value is invalid and never compares equal to anything.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

// NumberValue wraps a float64
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// StringValue wraps a string
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// BoolValue wraps a bool
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the variant held by v
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a variant
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Number returns the numeric payload when v is a number
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

// Str returns the string payload when v is a string
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Bool returns the boolean payload when v is a bool
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Interface returns the payload as a plain Go value
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<invalid>"
	}
}

// MarshalJSON encodes the payload as its natural JSON type
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
		return nil, fmt.Errorf("cannot encode non-finite number %v", v.num)
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes a JSON number, string or boolean
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, ok := ValueOf(raw)
	if !ok {
		return fmt.Errorf("unsupported rule value %s", string(data))
	}
	*v = parsed
	return nil
}

// ValueOf converts a decoded input value into a Value.
// nil, maps, slices and other composite types are not representable.
func ValueOf(raw any) (Value, bool) {
	switch x := raw.(type) {
	case Value:
		return x, x.IsValid()
	case float64:
		return NumberValue(x), true
	case float32:
		return NumberValue(float64(x)), true
	case int:
		return NumberValue(float64(x)), true
	case int8:
		return NumberValue(float64(x)), true
	case int16:
		return NumberValue(float64(x)), true
	case int32:
		return NumberValue(float64(x)), true
	case int64:
		return NumberValue(float64(x)), true
	case uint:
		return NumberValue(float64(x)), true
	case uint8:
		return NumberValue(float64(x)), true
	case uint16:
		return NumberValue(float64(x)), true
	case uint32:
		return NumberValue(float64(x)), true
	case uint64:
		return NumberValue(float64(x)), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return StringValue(x.String()), true
		}
		return NumberValue(f), true
	case string:
		return StringValue(x), true
	case bool:
		return BoolValue(x), true
	default:
		return Value{}, false
	}
}

// numeric coerces numbers and numeric strings to float64
func (v Value) numeric() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
