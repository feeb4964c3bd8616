package solver

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ValueKind tags the variants of AnswerValue.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueBool
	ValueNumber
	ValueText
	ValueStructured
)

// AnswerValue is the typed form of a quiz answer. Exactly one variant field
// is meaningful, selected by Kind; it marshals to the bare underlying value
// so the grading endpoint sees a plain JSON scalar or structure.
type AnswerValue struct {
	Kind       ValueKind
	Bool       bool
	Number     float64
	Text       string
	Structured json.RawMessage
}

func BoolValue(v bool) AnswerValue      { return AnswerValue{Kind: ValueBool, Bool: v} }
func NumberValue(v float64) AnswerValue { return AnswerValue{Kind: ValueNumber, Number: v} }
func TextValue(v string) AnswerValue    { return AnswerValue{Kind: ValueText, Text: v} }

func StructuredValue(raw []byte) AnswerValue {
	return AnswerValue{Kind: ValueStructured, Structured: json.RawMessage(raw)}
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueBool:
		return json.Marshal(v.Bool)
	case ValueNumber:
		if v.Number == math.Trunc(v.Number) && math.Abs(v.Number) < 1e15 {
			return json.Marshal(int64(v.Number))
		}
		return json.Marshal(v.Number)
	case ValueText:
		return json.Marshal(v.Text)
	case ValueStructured:
		return []byte(v.Structured), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON reverses MarshalJSON by normalizing whatever the wire
// carried back into a typed value.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = Normalize(raw)
	return nil
}

// String renders the value for logs and placeholder checks.
func (v AnswerValue) String() string {
	switch v.Kind {
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueNumber:
		if v.Number == math.Trunc(v.Number) && math.Abs(v.Number) < 1e15 {
			return strconv.FormatInt(int64(v.Number), 10)
		}
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case ValueText:
		return v.Text
	case ValueStructured:
		return string(v.Structured)
	default:
		return ""
	}
}

var numberPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// Normalize converts a loosely-typed answer into its typed form: boolean
// literals become Bool, strings matching the numeric grammar become Number,
// strings parsing as JSON objects/arrays become Structured, everything else
// a trimmed Text. Normalizing an AnswerValue returns it unchanged, so the
// operation is idempotent.
func Normalize(raw any) AnswerValue {
	switch val := raw.(type) {
	case nil:
		return AnswerValue{}
	case AnswerValue:
		return val
	case bool:
		return BoolValue(val)
	case float64:
		return NumberValue(val)
	case float32:
		return NumberValue(float64(val))
	case int:
		return NumberValue(float64(val))
	case int64:
		return NumberValue(float64(val))
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return TextValue(val.String())
		}
		return NumberValue(f)
	case string:
		return normalizeString(val)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return TextValue(fmt.Sprintf("%v", val))
		}
		return StructuredValue(data)
	default:
		return TextValue(fmt.Sprintf("%v", val))
	}
}

func normalizeString(s string) AnswerValue {
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	}

	if numberPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return NumberValue(f)
		}
	}

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		if json.Valid([]byte(s)) {
			return StructuredValue([]byte(s))
		}
	}

	return TextValue(s)
}
