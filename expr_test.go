package ivm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprArithmetic(t *testing.T) {
	r := Record{{Key: "price", Value: 10.0}, {Key: "tax", Value: 2.5}}

	v, err := ExprAdd(Field("price"), Field("tax")).Eval(r)
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	v, _ = ExprSubtract(Field("price"), Field("tax")).Eval(r)
	assert.Equal(t, 7.5, v)

	v, _ = ExprMultiply(Field("price"), Const(2.0)).Eval(r)
	assert.Equal(t, 20.0, v)

	v, _ = ExprDivide(Field("price"), Const(4.0)).Eval(r)
	assert.Equal(t, 2.5, v)
}

func TestExprString(t *testing.T) {
	r := Record{{Key: "first", Value: "Jane"}, {Key: "last", Value: "Doe"}}

	v, err := ExprConcat(Field("first"), Const(" "), Field("last")).Eval(r)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", v)

	v, _ = ExprToUpper(Field("first")).Eval(r)
	assert.Equal(t, "JANE", v)

	v, _ = ExprStrLenCP(Field("first")).Eval(r)
	assert.Equal(t, float64(4), v)

	v, _ = ExprSubstr(Field("first"), 1, 2).Eval(r)
	assert.Equal(t, "an", v)
}

func TestExprConversions(t *testing.T) {
	r := Record{{Key: "n", Value: "42"}}
	v, _ := ExprToString(Field("n")).Eval(r)
	assert.Equal(t, "42", v)

	r2 := Record{{Key: "n", Value: 3.9}}
	v, _ = ExprToInt(Field("n")).Eval(r2)
	assert.Equal(t, int64(3), v)

	v, _ = ExprToBool(Const(0.0)).Eval(r2)
	assert.Equal(t, false, v)

	v, _ = ExprIsNumber(Field("n")).Eval(r2)
	assert.Equal(t, true, v)
}

func TestExprNonNumericErrors(t *testing.T) {
	r := Record{{Key: "n", Value: "not a number"}}
	_, err := ExprAdd(Field("n"), Const(1.0)).Eval(r)
	assert.Error(t, err)
}
