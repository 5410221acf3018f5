package bridge

import (
	"math"
	"strconv"
)

// Kind tags what a script execution produced.
type Kind uint8

const (
	// KindNil - the script returned nothing or nil.
	KindNil Kind = iota

	// KindBoolean - the script returned a boolean.
	KindBoolean

	// KindNumber - the script returned a number.
	KindNumber

	// KindString - the script returned a string.
	KindString

	// KindSyntaxError - the script did not compile.
	KindSyntaxError

	// KindRuntimeError - the script raised an error while running.
	KindRuntimeError

	// KindUnsupportedType - the script returned a value with no Result form,
	// such as a table or function.
	KindUnsupportedType
)

var kindNames = [...]string{
	KindNil:             "nil",
	KindBoolean:         "boolean",
	KindNumber:          "number",
	KindString:          "string",
	KindSyntaxError:     "syntax error",
	KindRuntimeError:    "runtime error",
	KindUnsupportedType: "unsupported type",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Result is the first value a script returned, or why it failed.
//
// Text holds the string value, the error message, or for KindUnsupportedType
// the script type name.
type Result struct {
	Kind   Kind
	Bool   bool
	Number float64
	Text   string
}

// NilResult is returned by scripts that produce no value.
func NilResult() Result { return Result{Kind: KindNil} }

// BooleanResult wraps a boolean.
func BooleanResult(b bool) Result { return Result{Kind: KindBoolean, Bool: b} }

// NumberResult wraps a number.
func NumberResult(n float64) Result { return Result{Kind: KindNumber, Number: n} }

// StringResult wraps a string.
func StringResult(s string) Result { return Result{Kind: KindString, Text: s} }

// SyntaxErrorResult reports a script that failed to compile.
func SyntaxErrorResult(msg string) Result { return Result{Kind: KindSyntaxError, Text: msg} }

// RuntimeErrorResult reports a script that failed while running.
func RuntimeErrorResult(msg string) Result { return Result{Kind: KindRuntimeError, Text: msg} }

// UnsupportedResult reports a value of a type with no Result form.
func UnsupportedResult(typeName string) Result {
	return Result{Kind: KindUnsupportedType, Text: typeName}
}

// IsError reports whether the script failed or returned a value that could
// not be converted.
func (r Result) IsError() bool {
	switch r.Kind {
	case KindSyntaxError, KindRuntimeError, KindUnsupportedType:
		return true
	}
	return false
}

// IsInteger reports whether r is a number with no fractional part.
func (r Result) IsInteger() bool {
	return r.Kind == KindNumber && !math.IsInf(r.Number, 0) && r.Number == math.Trunc(r.Number)
}

// Float returns the number, or def for other kinds.
func (r Result) Float(def float64) float64 {
	if r.Kind != KindNumber {
		return def
	}
	return r.Number
}

// Int returns the number truncated toward zero, or def for other kinds.
func (r Result) Int(def int64) int64 {
	if r.Kind != KindNumber || math.IsNaN(r.Number) || math.IsInf(r.Number, 0) {
		return def
	}
	return int64(r.Number)
}

// Boolean returns the boolean, or def for other kinds.
func (r Result) Boolean(def bool) bool {
	if r.Kind != KindBoolean {
		return def
	}
	return r.Bool
}

// Str returns the string or error text, or def for other kinds. For
// KindUnsupportedType the text is the type name.
func (r Result) Str(def string) string {
	switch r.Kind {
	case KindString, KindSyntaxError, KindRuntimeError, KindUnsupportedType:
		return r.Text
	}
	return def
}

// String formats r the way the console prints it.
func (r Result) String() string {
	switch r.Kind {
	case KindNil:
		return "nil"
	case KindBoolean:
		return strconv.FormatBool(r.Bool)
	case KindNumber:
		if r.IsInteger() && math.Abs(r.Number) < 1e15 {
			return strconv.FormatInt(int64(r.Number), 10)
		}
		return strconv.FormatFloat(r.Number, 'g', 14, 64)
	case KindString:
		return r.Text
	case KindSyntaxError, KindRuntimeError:
		return r.Kind.String() + ": " + r.Text
	case KindUnsupportedType:
		return "<" + r.Text + ">"
	}
	return r.Kind.String()
}
