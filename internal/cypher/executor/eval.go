package executor

import (
	"fmt"
	"math"

	"github.com/aleksaelezovic/nodus/internal/cypher/parser"
	"github.com/aleksaelezovic/nodus/internal/index"
)

// truthy reports whether a value counts as true in a filter. Only the
// boolean true does; null and non-booleans filter the record out.
func truthy(v Value) bool {
	return v.Kind == KindBool && v.Bool
}

// evalExpr evaluates an expression against a record. Type mismatches
// yield null (and comparisons false) rather than failing the query, so
// heterogeneous data cannot abort an otherwise valid scan.
func evalExpr(e *env, rec Record, expr parser.Expression) (Value, error) {
	switch v := expr.(type) {
	case *parser.StringLit:
		return Text(v.Value), nil
	case *parser.NumberLit:
		return Float(v.Value), nil
	case *parser.BoolLit:
		return Bool(v.Value), nil
	case *parser.NullLit:
		return Null(), nil
	case *parser.Parameter:
		if val, ok := e.params[v.Name]; ok {
			return val, nil
		}
		return Null(), nil
	case *parser.Ident:
		if val, ok := rec[v.Name]; ok {
			return val, nil
		}
		return Null(), nil
	case *parser.PropertyAccess:
		return evalProperty(e, rec, v)
	case *parser.UnaryExpr:
		return evalUnary(e, rec, v)
	case *parser.BinaryExpr:
		return evalBinary(e, rec, v)
	case *parser.FuncCall:
		return evalCall(e, rec, v)
	}
	return Null(), fmt.Errorf("unsupported expression %T", expr)
}

// evalProperty resolves var.key to the object of the first
// (var, key, ?) triple, interpreted as a term value. Missing node,
// unknown key or absent triple all yield null.
func evalProperty(e *env, rec Record, p *parser.PropertyAccess) (Value, error) {
	node, ok := rec[p.Var]
	if !ok || node.Kind != KindNode {
		return Null(), nil
	}
	keyID, ok, err := e.snap.ResolveID(p.Key)
	if err != nil {
		return Null(), err
	}
	if !ok {
		return Null(), nil
	}

	scan, err := e.snap.Triples(index.Criteria{
		Subject: node.Node, HasSubject: true,
		Predicate: keyID, HasPredicate: true,
	})
	if err != nil {
		return Null(), err
	}
	defer scan.Close()

	if !scan.Next() {
		return Null(), scan.Err()
	}
	text, ok, err := e.snap.ResolveStr(scan.Triple().Object)
	if err != nil {
		return Null(), err
	}
	if !ok {
		return Null(), nil
	}
	return TermValue(text), nil
}

func evalUnary(e *env, rec Record, u *parser.UnaryExpr) (Value, error) {
	operand, err := evalExpr(e, rec, u.Operand)
	if err != nil {
		return Null(), err
	}
	switch u.Op {
	case "NOT":
		if operand.Kind != KindBool {
			return Null(), nil
		}
		return Bool(!operand.Bool), nil
	case "-":
		if operand.Kind != KindFloat {
			return Null(), nil
		}
		return Float(-operand.Float), nil
	}
	return Null(), fmt.Errorf("unsupported unary operator %q", u.Op)
}

func evalBinary(e *env, rec Record, b *parser.BinaryExpr) (Value, error) {
	left, err := evalExpr(e, rec, b.Left)
	if err != nil {
		return Null(), err
	}
	right, err := evalExpr(e, rec, b.Right)
	if err != nil {
		return Null(), err
	}

	switch b.Op {
	case "AND":
		return Bool(truthy(left) && truthy(right)), nil
	case "OR":
		return Bool(truthy(left) || truthy(right)), nil
	case "=":
		return Bool(left.Equal(right)), nil
	case "<>":
		if left.Kind == KindNull || right.Kind == KindNull {
			return Bool(false), nil
		}
		return Bool(!left.Equal(right)), nil
	case "<", "<=", ">", ">=":
		return compare(b.Op, left, right), nil
	case "+", "-", "*", "/", "%":
		return arithmetic(b.Op, left, right), nil
	}
	return Null(), fmt.Errorf("unsupported binary operator %q", b.Op)
}

// compare orders floats numerically and texts lexicographically. Mixed
// or unordered kinds compare false.
func compare(op string, left, right Value) Value {
	var less, equal bool
	switch {
	case left.Kind == KindFloat && right.Kind == KindFloat:
		less = left.Float < right.Float
		equal = left.Float == right.Float
	case left.Kind == KindText && right.Kind == KindText:
		less = left.Text < right.Text
		equal = left.Text == right.Text
	default:
		return Bool(false)
	}
	switch op {
	case "<":
		return Bool(less)
	case "<=":
		return Bool(less || equal)
	case ">":
		return Bool(!less && !equal)
	case ">=":
		return Bool(!less)
	}
	return Bool(false)
}

// arithmetic works on floats; + also concatenates texts. Everything
// else is null.
func arithmetic(op string, left, right Value) Value {
	if op == "+" && left.Kind == KindText && right.Kind == KindText {
		return Text(left.Text + right.Text)
	}
	if left.Kind != KindFloat || right.Kind != KindFloat {
		return Null()
	}
	switch op {
	case "+":
		return Float(left.Float + right.Float)
	case "-":
		return Float(left.Float - right.Float)
	case "*":
		return Float(left.Float * right.Float)
	case "/":
		if right.Float == 0 {
			return Null()
		}
		return Float(left.Float / right.Float)
	case "%":
		if right.Float == 0 {
			return Null()
		}
		return Float(math.Mod(left.Float, right.Float))
	}
	return Null()
}

// evalCall handles id(node) and type(rel). The planner has already
// checked names, arities and argument kinds.
func evalCall(e *env, rec Record, call *parser.FuncCall) (Value, error) {
	arg, err := evalExpr(e, rec, call.Args[0])
	if err != nil {
		return Null(), err
	}
	switch call.Name {
	case "id":
		if arg.Kind != KindNode {
			return Null(), nil
		}
		return Float(float64(arg.Node)), nil
	case "type":
		if arg.Kind != KindRel {
			return Null(), nil
		}
		text, ok, err := e.snap.ResolveStr(arg.Rel.Predicate)
		if err != nil {
			return Null(), err
		}
		if !ok {
			return Null(), nil
		}
		return Text(text), nil
	}
	return Null(), fmt.Errorf("unknown function %q", call.Name)
}
