// Package eval implements evaluation of expressions against variable bindings
// and a response payload bound to `this`.
//
// Values are the plain Go forms of JSON: nil, bool, float64, string, []any and
// map[string]any. Integers produced elsewhere (e.g. by the mock generator) are
// accepted anywhere a float64 is.
package eval

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"go.followtheprocess.codes/apidoc/internal/syntax"
)

// FieldResolutionError is a reference to a response field that doesn't exist.
type FieldResolutionError struct {
	Path string // The reference as written e.g. "this.user.name"
}

// Error implements the error interface for [FieldResolutionError].
func (e FieldResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s in the response", e.Path)
}

// UnboundVariableError is a reference to a variable with no value.
type UnboundVariableError struct {
	Name string // Name of the variable without the '@'
}

// Error implements the error interface for [UnboundVariableError].
func (e UnboundVariableError) Error() string {
	return fmt.Sprintf("variable @%s is not bound", e.Name)
}

// UnknownFunctionError is a call to a function that doesn't exist.
type UnknownFunctionError struct {
	Name string // Name of the function
}

// Error implements the error interface for [UnknownFunctionError].
func (e UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function %q", e.Name)
}

// Lookup resolves a variable by name.
type Lookup func(name string) (any, bool)

// Func is a named built in function.
type Func func(args []any) (any, error)

// Env is the environment an expression is evaluated in.
type Env struct {
	Vars    Lookup          // Variable bindings, may be nil if there are none
	Funcs   map[string]Func // Built in functions available to calls
	This    any             // The response payload
	Slot    []string        // Path to the @BASERES wildcard slot within This, nil if none
	HasThis bool            // Whether `this` is bound at all
}

// Eval evaluates expr in env.
func Eval(expr syntax.Expr, env Env) (any, error) {
	switch node := expr.(type) {
	case *syntax.StringLit:
		return node.Value, nil
	case *syntax.NumberLit:
		return node.Value, nil
	case *syntax.BoolLit:
		return node.Value, nil
	case *syntax.NullLit:
		return nil, nil
	case *syntax.Word:
		return node.Value, nil
	case *syntax.TypeName, *syntax.Wildcard:
		return nil, fmt.Errorf("%s is a type, not a value", expr)
	case *syntax.VarRef:
		return evalVar(node, env)
	case *syntax.ThisRef:
		if !env.HasThis {
			return nil, fmt.Errorf("%s used with no response", node)
		}
		return Resolve(env.This, env.Slot, node.Path)
	case *syntax.Call:
		return evalCall(node, env)
	case *syntax.Unary:
		return evalUnary(node, env)
	case *syntax.Binary:
		return evalBinary(node, env)
	case *syntax.ObjectLit:
		object := make(map[string]any, len(node.Fields))
		for _, field := range node.Fields {
			value, err := Eval(field.Value, env)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field.Key, err)
			}
			object[field.Key] = value
		}
		return object, nil
	case *syntax.ArrayLit:
		array := make([]any, 0, len(node.Items))
		for _, item := range node.Items {
			value, err := Eval(item, env)
			if err != nil {
				return nil, err
			}
			array = append(array, value)
		}
		return array, nil
	case *syntax.Template:
		return evalTemplate(node, env)
	default:
		return nil, fmt.Errorf("cannot evaluate %T", expr)
	}
}

// Resolve looks up a field path in a response with the two step strategy: first
// directly on the top level object, then on the object found at the @BASERES
// wildcard slot. An empty path resolves to the whole response.
func Resolve(this any, slot, path []string) (any, error) {
	if len(path) == 0 {
		return this, nil
	}

	if value, ok := Select(this, path); ok {
		return value, nil
	}

	if slot != nil {
		if inner, ok := Select(this, slot); ok {
			if value, ok := Select(inner, path); ok {
				return value, nil
			}
		}
	}

	return nil, FieldResolutionError{Path: "this." + strings.Join(path, ".")}
}

// Select walks a field path through nested objects.
func Select(value any, path []string) (any, bool) {
	for _, key := range path {
		object, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}

		value, ok = object[key]
		if !ok {
			return nil, false
		}
	}

	return value, true
}

// IsValue reports whether expr can be evaluated without a response, i.e. it
// contains no types and no references to `this`.
func IsValue(expr syntax.Expr) bool {
	value := true
	syntax.Walk(expr, func(node syntax.Expr) bool {
		switch node.(type) {
		case *syntax.TypeName, *syntax.Wildcard, *syntax.ThisRef:
			value = false
		}
		return value
	})

	return value
}

// Truthy reports whether a value counts as true in a condition.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	default:
		if number, ok := toFloat(value); ok {
			return number != 0
		}
		return true
	}
}

// Equal reports whether two values are equal, numbers compare by value whatever
// their Go type.
func Equal(a, b any) bool {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		return ok && x == y
	}

	return reflect.DeepEqual(a, b)
}

// String renders a value as text for use in a URL or header.
func String(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	default:
		return fmt.Sprint(v)
	}
}

func evalVar(node *syntax.VarRef, env Env) (any, error) {
	// @BASERES.field in a predicate is the top level of the response, never the slot
	if node.Name == syntax.BaseResponse && env.HasThis {
		value, ok := Select(env.This, node.Path)
		if !ok {
			return nil, FieldResolutionError{Path: node.String()}
		}
		return value, nil
	}

	if env.Vars == nil {
		return nil, UnboundVariableError{Name: node.Name}
	}

	value, ok := env.Vars(node.Name)
	if !ok {
		return nil, UnboundVariableError{Name: node.Name}
	}

	value, ok = Select(value, node.Path)
	if !ok {
		return nil, FieldResolutionError{Path: node.String()}
	}

	return value, nil
}

func evalCall(node *syntax.Call, env Env) (any, error) {
	fn, ok := env.Funcs[node.Name]
	if !ok {
		return nil, UnknownFunctionError{Name: node.Name}
	}

	args := make([]any, 0, len(node.Args))
	for _, arg := range node.Args {
		value, err := Eval(arg, env)
		if err != nil {
			return nil, err
		}
		args = append(args, value)
	}

	value, err := fn(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node.Name, err)
	}

	return value, nil
}

func evalUnary(node *syntax.Unary, env Env) (any, error) {
	x, err := Eval(node.X, env)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case "!":
		return !Truthy(x), nil
	case "-":
		number, ok := toFloat(x)
		if !ok {
			return nil, fmt.Errorf("cannot negate %s", String(x))
		}
		return -number, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", node.Op)
	}
}

func evalBinary(node *syntax.Binary, env Env) (any, error) {
	left, err := Eval(node.Left, env)
	if err != nil {
		return nil, err
	}

	// Short circuit
	switch node.Op {
	case "&&":
		if !Truthy(left) {
			return false, nil
		}
	case "||":
		if Truthy(left) {
			return true, nil
		}
	}

	right, err := Eval(node.Right, env)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case "&&", "||":
		return Truthy(right), nil
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "+":
		x, xok := toFloat(left)
		y, yok := toFloat(right)
		if xok && yok {
			return x + y, nil
		}
		return String(left) + String(right), nil
	case "-":
		x, xok := toFloat(left)
		y, yok := toFloat(right)
		if !xok || !yok {
			return nil, fmt.Errorf("cannot subtract %s from %s", String(right), String(left))
		}
		return x - y, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", node.Op)
	}
}

func evalTemplate(node *syntax.Template, env Env) (string, error) {
	var builder strings.Builder
	for _, part := range node.Parts {
		if part.Var == "" {
			builder.WriteString(part.Text)
			continue
		}

		value, err := evalVar(&syntax.VarRef{Name: part.Var}, env)
		if err != nil {
			return "", err
		}
		builder.WriteString(String(value))
	}

	return builder.String(), nil
}

// toFloat converts any Go number to a float64.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}
