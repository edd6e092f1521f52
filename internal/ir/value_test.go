package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueRoundTrip(t *testing.T) {
	values := []IRValue{
		IRNull{},
		IRString("shipped"),
		IRString("it's"),
		IRInt(-42),
		IRBool(true),
		IRArray{IRInt(1), IRString("two"), IRNull{}},
		IRArray{},
	}

	for _, v := range values {
		t.Run(FormatIRValue(v), func(t *testing.T) {
			data, err := MarshalIRValue(v)
			require.NoError(t, err)

			decoded, err := UnmarshalIRValue(data)
			require.NoError(t, err)
			assert.Equal(t, v, decoded)
		})
	}
}

func TestUnmarshalIRValue_RejectsFloats(t *testing.T) {
	for _, input := range []string{"1.5", "1e3", "[1, 2.0]"} {
		_, err := UnmarshalIRValue([]byte(input))
		assert.ErrorContains(t, err, "float", input)
	}
}

func TestUnmarshalIRValue_RejectsObjects(t *testing.T) {
	_, err := UnmarshalIRValue([]byte(`{"a": 1}`))
	assert.ErrorContains(t, err, "unsupported literal type")
}

func TestUnmarshalIRValue_OutOfRange(t *testing.T) {
	_, err := UnmarshalIRValue([]byte("99999999999999999999"))
	assert.ErrorContains(t, err, "out of int64 range")
}

func TestFormatIRValue(t *testing.T) {
	assert.Equal(t, "NULL", FormatIRValue(IRNull{}))
	assert.Equal(t, "'it''s'", FormatIRValue(IRString("it's")))
	assert.Equal(t, "42", FormatIRValue(IRInt(42)))
	assert.Equal(t, "FALSE", FormatIRValue(IRBool(false)))
	assert.Equal(t, "(1, 'a')", FormatIRValue(IRArray{IRInt(1), IRString("a")}))
}
