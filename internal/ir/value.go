package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IRValue is a sealed interface for literal values.
// Only IRNull, IRString, IRInt, IRBool and IRArray implement it.
// There is no float variant: a double literal is an IRString under a cast.
type IRValue interface {
	irValue()
}

// IRNull is the SQL NULL literal.
type IRNull struct{}

func (IRNull) irValue() {}

// IRString is a string literal.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer literal. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean literal.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is a list literal, used by IN lists.
type IRArray []IRValue

func (IRArray) irValue() {}

// MarshalIRValue encodes v as plain JSON. Not canonical; see MarshalCanonical.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case IRBool:
		return json.Marshal(bool(val))
	case IRArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// UnmarshalIRValue decodes JSON into an IRValue.
// null becomes IRNull. Fractional or exponent numbers are rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return fromJSON(raw)
}

func fromJSON(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case json.Number:
		n, err := intFromNumber(val)
		if err != nil {
			return nil, err
		}
		return IRInt(n), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unsupported literal type: %T", v)
	}
}

func intFromNumber(n json.Number) (int64, error) {
	s := string(n)
	if strings.ContainsAny(s, ".eE") {
		return 0, fmt.Errorf("float literals are not allowed: %s", s)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("number out of int64 range: %s", s)
	}
	return i, nil
}

// FormatIRValue renders v as a SQL literal: 'text', 42, TRUE, NULL, (1, 2).
func FormatIRValue(v IRValue) string {
	switch val := v.(type) {
	case IRNull:
		return "NULL"
	case IRString:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	case IRInt:
		return strconv.FormatInt(int64(val), 10)
	case IRBool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case IRArray:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = FormatIRValue(elem)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return fmt.Sprintf("<%T>", v)
	}
}
