// Package expr builds Crunch filter expressions.
//
// The Crunch API represents filters as function documents: JSON objects with a
// "function" name and an "args" list of variable references and literal
// values. This package assembles those documents without string parsing.
// Variable references are written by alias; operations that send an
// expression to the server resolve aliases to variable URLs first.
//
//	e := expr.And(
//	    expr.Gt("age", 21),
//	    expr.In("country", []interface{}{"AR", "UY"}),
//	)
package expr

// Expression is a Crunch function document, a variable reference, or a
// literal value.
type Expression map[string]interface{}

// Var references a variable by alias (or URL).
func Var(alias string) Expression {
	return Expression{"variable": alias}
}

// Val wraps a literal value.
func Val(value interface{}) Expression {
	return Expression{"value": value}
}

func apply(function string, args ...Expression) Expression {
	list := make([]interface{}, 0, len(args))
	for _, a := range args {
		list = append(list, map[string]interface{}(a))
	}
	return Expression{"function": function, "args": list}
}

// Gt builds "variable > value".
func Gt(alias string, value interface{}) Expression {
	return apply(">", Var(alias), Val(value))
}

// Gte builds "variable >= value".
func Gte(alias string, value interface{}) Expression {
	return apply(">=", Var(alias), Val(value))
}

// Lt builds "variable < value".
func Lt(alias string, value interface{}) Expression {
	return apply("<", Var(alias), Val(value))
}

// Lte builds "variable <= value".
func Lte(alias string, value interface{}) Expression {
	return apply("<=", Var(alias), Val(value))
}

// Eq builds "variable == value".
func Eq(alias string, value interface{}) Expression {
	return apply("==", Var(alias), Val(value))
}

// Ne builds "variable != value".
func Ne(alias string, value interface{}) Expression {
	return apply("!=", Var(alias), Val(value))
}

// In builds "variable in values".
func In(alias string, values []interface{}) Expression {
	return apply("in", Var(alias), Val(values))
}

// Not negates an expression.
func Not(e Expression) Expression {
	return apply("not", e)
}

// And combines expressions conjunctively. The platform's "and" takes two
// arguments, so longer lists nest left to right.
func And(exprs ...Expression) Expression {
	return fold("and", exprs)
}

// Or combines expressions disjunctively, nesting like And.
func Or(exprs ...Expression) Expression {
	return fold("or", exprs)
}

func fold(function string, exprs []Expression) Expression {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	}
	acc := apply(function, exprs[0], exprs[1])
	for _, e := range exprs[2:] {
		acc = apply(function, acc, e)
	}
	return acc
}
