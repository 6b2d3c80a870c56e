package s3policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ConditionKind identifies the shape of a policy condition
type ConditionKind int

const (
	// ConditionExact is an exact match, encoded as {"field":"value"}
	ConditionExact ConditionKind = iota + 1
	// ConditionStartsWith is a prefix match, encoded as ["starts-with","$field","prefix"]
	ConditionStartsWith
	// ConditionContentLengthRange bounds the upload size, encoded as ["content-length-range",min,max]
	ConditionContentLengthRange
	// ConditionRaw is a caller-supplied entry emitted verbatim
	ConditionRaw
)

func (k ConditionKind) String() string {
	switch k {
	case ConditionExact:
		return "exact"
	case ConditionStartsWith:
		return "starts-with"
	case ConditionContentLengthRange:
		return "content-length-range"
	case ConditionRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Condition is one constraint entry of a policy document
type Condition struct {
	kind  ConditionKind
	field string
	value string
	min   int64
	max   int64
	raw   json.RawMessage
}

// Exact returns a condition requiring the form field to equal value
func Exact(field, value string) Condition {
	return Condition{kind: ConditionExact, field: field, value: value}
}

// StartsWith returns a condition requiring the form field to start with prefix.
// An empty prefix accepts any value. The leading "$" of the field name is optional.
func StartsWith(field, prefix string) Condition {
	return Condition{kind: ConditionStartsWith, field: strings.TrimPrefix(field, "$"), value: prefix}
}

// ContentLengthRange returns a condition bounding the uploaded file size in bytes
func ContentLengthRange(minBytes, maxBytes int64) Condition {
	return Condition{kind: ConditionContentLengthRange, field: "content-length-range", min: minBytes, max: maxBytes}
}

// Raw wraps a JSON condition entry that is emitted as-is
func Raw(entry json.RawMessage) Condition {
	return Condition{kind: ConditionRaw, raw: append(json.RawMessage(nil), entry...)}
}

// Kind returns the condition shape
func (c Condition) Kind() ConditionKind { return c.kind }

// Field returns the form field the condition applies to, without "$"
func (c Condition) Field() string { return c.field }

// Value returns the exact value or the prefix
func (c Condition) Value() string { return c.value }

// Min returns the lower bound of a content-length-range condition
func (c Condition) Min() int64 { return c.min }

// Max returns the upper bound of a content-length-range condition
func (c Condition) Max() int64 { return c.max }

// MarshalJSON encodes the condition in the policy document wire form
func (c Condition) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case ConditionExact:
		key, err := encodeJSON(c.field)
		if err != nil {
			return nil, err
		}
		val, err := encodeJSON(c.value)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.WriteByte('{')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case ConditionStartsWith:
		return encodeJSON([]any{"starts-with", "$" + c.field, c.value})
	case ConditionContentLengthRange:
		return encodeJSON([]any{"content-length-range", c.min, c.max})
	case ConditionRaw:
		if !json.Valid(c.raw) {
			return nil, fmt.Errorf("%w: raw entry is not valid JSON", ErrInvalidCondition)
		}
		return c.raw, nil
	default:
		return nil, fmt.Errorf("%w: zero value", ErrInvalidCondition)
	}
}

// UnmarshalJSON decodes an object or array condition entry.
// ["eq","$field","value"] decodes to an exact condition.
func (c *Condition) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty entry", ErrInvalidCondition)
	}

	switch data[0] {
	case '{':
		var obj map[string]string
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		if len(obj) != 1 {
			return fmt.Errorf("%w: object must hold exactly one field, got %d", ErrInvalidCondition, len(obj))
		}
		for k, v := range obj {
			*c = Exact(k, v)
		}
		return nil
	case '[':
		return c.unmarshalArray(data)
	default:
		return fmt.Errorf("%w: expected object or array", ErrInvalidCondition)
	}
}

func (c *Condition) unmarshalArray(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	if len(items) != 3 {
		return fmt.Errorf("%w: array must hold 3 elements, got %d", ErrInvalidCondition, len(items))
	}
	op, ok := items[0].(string)
	if !ok {
		return fmt.Errorf("%w: operator must be a string", ErrInvalidCondition)
	}

	switch strings.ToLower(op) {
	case "starts-with", "eq":
		field, ok1 := items[1].(string)
		value, ok2 := items[2].(string)
		if !ok1 || !ok2 {
			return fmt.Errorf("%w: %s operands must be strings", ErrInvalidCondition, op)
		}
		if !strings.HasPrefix(field, "$") {
			return fmt.Errorf("%w: %s field %q must start with $", ErrInvalidCondition, op, field)
		}
		if strings.EqualFold(op, "eq") {
			*c = Exact(strings.TrimPrefix(field, "$"), value)
		} else {
			*c = StartsWith(field, value)
		}
		return nil
	case "content-length-range":
		lo, err := toInt64(items[1])
		if err != nil {
			return err
		}
		hi, err := toInt64(items[2])
		if err != nil {
			return err
		}
		*c = ContentLengthRange(lo, hi)
		return nil
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, op)
	}
}

func toInt64(v any) (int64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: range bound must be a number", ErrInvalidCondition)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: range bound %s: %v", ErrInvalidCondition, n, err)
	}
	return i, nil
}

// encodeJSON marshals v without HTML escaping and without a trailing newline
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
