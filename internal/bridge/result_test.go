package bridge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultAccessors(t *testing.T) {
	tests := []struct {
		name    string
		r       Result
		isErr   bool
		isInt   bool
		float   float64
		integer int64
		str     string
		text    string
	}{
		{"nil", NilResult(), false, false, -1, -1, "def", "nil"},
		{"true", BooleanResult(true), false, false, -1, -1, "def", "true"},
		{"integer", NumberResult(42), false, true, 42, 42, "def", "42"},
		{"fraction", NumberResult(2.5), false, false, 2.5, 2, "def", "2.5"},
		{"negative", NumberResult(-3), false, true, -3, -3, "def", "-3"},
		{"string", StringResult("hi"), false, false, -1, -1, "hi", "hi"},
		{"syntax", SyntaxErrorResult("bad token"), true, false, -1, -1, "bad token", "syntax error: bad token"},
		{"runtime", RuntimeErrorResult("nil index"), true, false, -1, -1, "nil index", "runtime error: nil index"},
		{"table", UnsupportedResult("table"), true, false, -1, -1, "table", "<table>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isErr, tt.r.IsError())
			assert.Equal(t, tt.isInt, tt.r.IsInteger())
			assert.Equal(t, tt.float, tt.r.Float(-1))
			assert.Equal(t, tt.integer, tt.r.Int(-1))
			assert.Equal(t, tt.str, tt.r.Str("def"))
			assert.Equal(t, tt.text, tt.r.String())
		})
	}
}

func TestUnsupportedResultIsError(t *testing.T) {
	r := UnsupportedResult("function")
	assert.True(t, r.IsError())
	assert.Equal(t, "function", r.Str(""))
	assert.Equal(t, KindUnsupportedType, r.Kind)
}

func TestResultBoolean(t *testing.T) {
	assert.True(t, BooleanResult(true).Boolean(false))
	assert.False(t, BooleanResult(false).Boolean(true))
	assert.True(t, NumberResult(1).Boolean(true))
}

func TestResultNonFinite(t *testing.T) {
	inf := NumberResult(math.Inf(1))
	assert.False(t, inf.IsInteger())
	assert.Equal(t, int64(7), inf.Int(7))
	assert.Equal(t, int64(7), NumberResult(math.NaN()).Int(7))
	assert.Equal(t, "+Inf", inf.String())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "number", KindNumber.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
