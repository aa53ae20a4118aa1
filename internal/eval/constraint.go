package eval

import "go.followtheprocess.codes/apidoc/internal/syntax"

// Constraint is a field of the response that a predicate requires to have a
// particular value, e.g. `this.code == 0`.
type Constraint struct {
	Value any      // The required value
	Path  []string // Field path in the response
	Top   bool     // Whether the path is only valid at the top level (an @BASERES reference)
}

// Constraints extracts the equality constraints from a predicate. Only constraints
// joined by `&&` are collected, anything under `||` or `!` is ignored as it
// doesn't have to hold for the predicate to be true.
func Constraints(predicate syntax.Expr) []Constraint {
	var constraints []Constraint

	var collect func(expr syntax.Expr)
	collect = func(expr syntax.Expr) {
		binary, ok := expr.(*syntax.Binary)
		if !ok {
			return
		}

		switch binary.Op {
		case "&&":
			collect(binary.Left)
			collect(binary.Right)
		case "==":
			if c, ok := equality(binary.Left, binary.Right); ok {
				constraints = append(constraints, c)
			} else if c, ok := equality(binary.Right, binary.Left); ok {
				constraints = append(constraints, c)
			}
		}
	}

	collect(predicate)
	return constraints
}

// equality builds a [Constraint] from a field reference and a literal.
func equality(ref, literal syntax.Expr) (Constraint, bool) {
	if !isLiteral(literal) {
		return Constraint{}, false
	}

	value, err := Eval(literal, Env{})
	if err != nil {
		return Constraint{}, false
	}

	switch node := ref.(type) {
	case *syntax.ThisRef:
		if len(node.Path) == 0 {
			return Constraint{}, false
		}
		return Constraint{Path: node.Path, Value: value}, true
	case *syntax.VarRef:
		if node.Name != syntax.BaseResponse || len(node.Path) == 0 {
			return Constraint{}, false
		}
		return Constraint{Path: node.Path, Value: value, Top: true}, true
	default:
		return Constraint{}, false
	}
}

func isLiteral(expr syntax.Expr) bool {
	switch node := expr.(type) {
	case *syntax.StringLit, *syntax.NumberLit, *syntax.BoolLit, *syntax.NullLit:
		return true
	case *syntax.Unary:
		_, isNumber := node.X.(*syntax.NumberLit)
		return node.Op == "-" && isNumber
	default:
		return false
	}
}
