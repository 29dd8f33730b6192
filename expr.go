package ivm

import (
	"fmt"
	"strings"
)

// Expr is a small evaluable expression tree for deriving a property value
// from a record, the in-process counterpart of gmqb's ExprAdd/ExprSubtract/
// etc. wire-expression builders — those compiled to $expr documents for the
// aggregation pipeline; these evaluate directly against a live Record
// (§4.3 defineProperty's fn argument).
//
// Example:
//
//	total := ivm.ExprAdd(ivm.Field("price"), ivm.Field("tax"))
//	decl.DefineProperty("total", total.Eval)
type Expr struct {
	eval func(Record) (Value, error)
}

// Eval computes the expression's value for r. It has the PropertyFunc
// shape so it can be passed directly to Declaration.DefineProperty.
func (e Expr) Eval(r Record) (Value, error) {
	return e.eval(r)
}

// Const returns an expression that always evaluates to v.
func Const(v Value) Expr {
	return Expr{eval: func(Record) (Value, error) { return v, nil }}
}

// Field returns an expression that reads name out of the record, or nil if
// absent.
func Field(name string) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		v, _ := r.Get(name)
		return v, nil
	}}
}

func numericOp(name string, a, b Expr, op func(x, y float64) float64) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		av, err := a.Eval(r)
		if err != nil {
			return nil, err
		}
		bv, err := b.Eval(r)
		if err != nil {
			return nil, err
		}
		af, ok := toFloat64(av)
		if !ok {
			return nil, fmt.Errorf("expr %s: operand is not numeric (got %T)", name, av)
		}
		bf, ok := toFloat64(bv)
		if !ok {
			return nil, fmt.Errorf("expr %s: operand is not numeric (got %T)", name, bv)
		}
		return op(af, bf), nil
	}}
}

// ExprAdd returns an expression summing a and b.
func ExprAdd(a, b Expr) Expr {
	return numericOp("add", a, b, func(x, y float64) float64 { return x + y })
}

// ExprSubtract returns an expression computing a - b.
func ExprSubtract(a, b Expr) Expr {
	return numericOp("subtract", a, b, func(x, y float64) float64 { return x - y })
}

// ExprMultiply returns an expression computing a * b.
func ExprMultiply(a, b Expr) Expr {
	return numericOp("multiply", a, b, func(x, y float64) float64 { return x * y })
}

// ExprDivide returns an expression computing a / b. Division by zero
// propagates ±Inf or NaN per §7's numeric semantics rather than erroring.
func ExprDivide(a, b Expr) Expr {
	return numericOp("divide", a, b, func(x, y float64) float64 { return x / y })
}

// ExprMod returns an expression computing a modulo b, truncated toward
// zero.
func ExprMod(a, b Expr) Expr {
	return numericOp("mod", a, b, func(x, y float64) float64 {
		if y == 0 {
			return 0
		}
		return float64(int64(x) % int64(y))
	})
}

func stringOf(e Expr, name string, r Record) (string, error) {
	v, err := e.Eval(r)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expr %s: operand is not a string (got %T)", name, v)
	}
	return s, nil
}

// ExprConcat returns an expression concatenating the string values of
// parts.
func ExprConcat(parts ...Expr) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		var b strings.Builder
		for _, p := range parts {
			s, err := stringOf(p, "concat", r)
			if err != nil {
				return nil, err
			}
			b.WriteString(s)
		}
		return b.String(), nil
	}}
}

// ExprToUpper returns an expression upper-casing e's string value.
func ExprToUpper(e Expr) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		s, err := stringOf(e, "toUpper", r)
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(s), nil
	}}
}

// ExprToLower returns an expression lower-casing e's string value.
func ExprToLower(e Expr) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		s, err := stringOf(e, "toLower", r)
		if err != nil {
			return nil, err
		}
		return strings.ToLower(s), nil
	}}
}

// ExprSubstr returns an expression taking at most length runes of e's
// string value starting at the rune offset start.
func ExprSubstr(e Expr, start, length int) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		s, err := stringOf(e, "substr", r)
		if err != nil {
			return nil, err
		}
		runes := []rune(s)
		if start < 0 || start > len(runes) {
			return "", nil
		}
		end := start + length
		if end > len(runes) || length < 0 {
			end = len(runes)
		}
		return string(runes[start:end]), nil
	}}
}

// ExprStrLenCP returns an expression computing the rune length of e's
// string value.
func ExprStrLenCP(e Expr) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		s, err := stringOf(e, "strLenCP", r)
		if err != nil {
			return nil, err
		}
		return float64(len([]rune(s))), nil
	}}
}

// ExprToString returns an expression rendering e's value with fmt's
// default formatting.
func ExprToString(e Expr) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		v, err := e.Eval(r)
		if err != nil {
			return nil, err
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil
	}}
}

// ExprToDouble returns an expression coercing e's value to float64.
func ExprToDouble(e Expr) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		v, err := e.Eval(r)
		if err != nil {
			return nil, err
		}
		f, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("expr toDouble: value is not numeric (got %T)", v)
		}
		return f, nil
	}}
}

// ExprToInt returns an expression coercing e's value to a truncated int64.
func ExprToInt(e Expr) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		v, err := e.Eval(r)
		if err != nil {
			return nil, err
		}
		f, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("expr toInt: value is not numeric (got %T)", v)
		}
		return int64(f), nil
	}}
}

// ExprToBool returns an expression coercing e's value to bool following
// MongoDB's truthiness rule: false, 0, null, and missing are false;
// everything else is true.
func ExprToBool(e Expr) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		v, err := e.Eval(r)
		if err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case nil:
			return false, nil
		case bool:
			return x, nil
		default:
			if f, ok := toFloat64(x); ok {
				return f != 0, nil
			}
			return true, nil
		}
	}}
}

// ExprIsNumber returns an expression reporting whether e's value is
// numeric.
func ExprIsNumber(e Expr) Expr {
	return Expr{eval: func(r Record) (Value, error) {
		v, err := e.Eval(r)
		if err != nil {
			return nil, err
		}
		_, ok := toFloat64(v)
		return ok, nil
	}}
}
