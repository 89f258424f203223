// Package formula evaluates the small numeric expressions that guild rules
// use to shift thresholds and reweight AI scores.
//
// Expressions are parsed with the gopher-lua grammar and then checked against
// a whitelist of node types: numbers, named variables, arithmetic, comparison,
// logical operators, and a handful of pure math functions. Nothing is ever
// executed in a Lua VM and no host state is reachable.
package formula

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

// MaxLength bounds the source size of a single formula.
const MaxLength = 512

var (
	// ErrUnsupported is returned for syntax outside the arithmetic whitelist.
	ErrUnsupported = errors.New("formula: unsupported construct")
	// ErrUnknownVariable is returned when an identifier is not in the context.
	ErrUnknownVariable = errors.New("formula: unknown variable")
	// ErrArithmetic is returned for division by zero and non-finite results.
	ErrArithmetic = errors.New("formula: arithmetic error")
)

// Vars is the named-variable context an expression is evaluated against,
// e.g. relationship_value, value, current_score.
type Vars map[string]float64

var constants = map[string]float64{
	"pi":    math.Pi,
	"True":  1,
	"False": 0,
}

// Expr is a compiled, validated expression.
type Expr struct {
	src  string
	root ast.Expr
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

// normalize accepts the operator spellings rule authors tend to write.
var normalizer = strings.NewReplacer("!=", "~=", "&&", " and ", "||", " or ", "**", "^")

// Compile parses and validates src.
//
// Postcondition: a nil error guarantees Eval never touches anything beyond
// the supplied Vars and the whitelisted math functions.
func Compile(src string) (*Expr, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return nil, fmt.Errorf("formula: empty expression")
	}
	if len(trimmed) > MaxLength {
		return nil, fmt.Errorf("formula: expression longer than %d bytes", MaxLength)
	}
	chunk, err := parse.Parse(strings.NewReader("return "+normalizer.Replace(trimmed)), "<formula>")
	if err != nil {
		return nil, fmt.Errorf("formula: parsing %q: %w", src, err)
	}
	if len(chunk) != 1 {
		return nil, fmt.Errorf("%w: %q is not a single expression", ErrUnsupported, src)
	}
	ret, ok := chunk[0].(*ast.ReturnStmt)
	if !ok || len(ret.Exprs) != 1 {
		return nil, fmt.Errorf("%w: %q is not a single expression", ErrUnsupported, src)
	}
	if err := validate(ret.Exprs[0]); err != nil {
		return nil, fmt.Errorf("%q: %w", src, err)
	}
	return &Expr{src: src, root: ret.Exprs[0]}, nil
}

func validate(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.NumberExpr, *ast.IdentExpr, *ast.TrueExpr, *ast.FalseExpr:
		return nil
	case *ast.ArithmeticOpExpr:
		return validatePair(n.Lhs, n.Rhs)
	case *ast.RelationalOpExpr:
		return validatePair(n.Lhs, n.Rhs)
	case *ast.LogicalOpExpr:
		return validatePair(n.Lhs, n.Rhs)
	case *ast.UnaryMinusOpExpr:
		return validate(n.Expr)
	case *ast.UnaryNotOpExpr:
		return validate(n.Expr)
	case *ast.FuncCallExpr:
		ident, ok := n.Func.(*ast.IdentExpr)
		if !ok || n.Receiver != nil || n.Method != "" {
			return fmt.Errorf("%w: only plain function calls are allowed", ErrUnsupported)
		}
		fn, ok := functions[ident.Value]
		if !ok {
			return fmt.Errorf("%w: function %q", ErrUnsupported, ident.Value)
		}
		if fn.arity >= 0 && len(n.Args) != fn.arity {
			return fmt.Errorf("%w: %s takes %d arguments", ErrUnsupported, ident.Value, fn.arity)
		}
		if fn.arity < 0 && len(n.Args) == 0 {
			return fmt.Errorf("%w: %s needs at least one argument", ErrUnsupported, ident.Value)
		}
		for _, a := range n.Args {
			if err := validate(a); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, e)
	}
}

func validatePair(a, b ast.Expr) error {
	if err := validate(a); err != nil {
		return err
	}
	return validate(b)
}

// Eval evaluates the expression. Comparisons and logical operators yield 1
// for true and 0 for false; any non-zero value is truthy.
func (e *Expr) Eval(vars Vars) (float64, error) {
	v, err := eval(e.root, vars)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q produced a non-finite value", ErrArithmetic, e.src)
	}
	return v, nil
}

// EvalBool evaluates the expression as a condition.
func (e *Expr) EvalBool(vars Vars) (bool, error) {
	v, err := e.Eval(vars)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func eval(e ast.Expr, vars Vars) (float64, error) {
	switch n := e.(type) {
	case *ast.NumberExpr:
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
			return f, nil
		}
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad number %q", ErrUnsupported, n.Value)
		}
		return float64(i), nil
	case *ast.TrueExpr:
		return 1, nil
	case *ast.FalseExpr:
		return 0, nil
	case *ast.IdentExpr:
		if v, ok := vars[n.Value]; ok {
			return v, nil
		}
		if v, ok := constants[n.Value]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUnknownVariable, n.Value)
	case *ast.UnaryMinusOpExpr:
		v, err := eval(n.Expr, vars)
		return -v, err
	case *ast.UnaryNotOpExpr:
		v, err := eval(n.Expr, vars)
		return boolf(v == 0), err
	case *ast.ArithmeticOpExpr:
		l, r, err := evalPair(n.Lhs, n.Rhs, vars)
		if err != nil {
			return 0, err
		}
		return arith(n.Operator, l, r)
	case *ast.RelationalOpExpr:
		l, r, err := evalPair(n.Lhs, n.Rhs, vars)
		if err != nil {
			return 0, err
		}
		switch n.Operator {
		case "<":
			return boolf(l < r), nil
		case ">":
			return boolf(l > r), nil
		case "<=":
			return boolf(l <= r), nil
		case ">=":
			return boolf(l >= r), nil
		case "==":
			return boolf(l == r), nil
		case "~=":
			return boolf(l != r), nil
		}
		return 0, fmt.Errorf("%w: operator %q", ErrUnsupported, n.Operator)
	case *ast.LogicalOpExpr:
		l, err := eval(n.Lhs, vars)
		if err != nil {
			return 0, err
		}
		switch n.Operator {
		case "and":
			if l == 0 {
				return 0, nil
			}
		case "or":
			if l != 0 {
				return 1, nil
			}
		default:
			return 0, fmt.Errorf("%w: operator %q", ErrUnsupported, n.Operator)
		}
		r, err := eval(n.Rhs, vars)
		return boolf(r != 0), err
	case *ast.FuncCallExpr:
		fn := functions[n.Func.(*ast.IdentExpr).Value]
		args := make([]float64, len(n.Args))
		for i, a := range n.Args {
			v, err := eval(a, vars)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		return fn.call(args), nil
	}
	return 0, fmt.Errorf("%w: %T", ErrUnsupported, e)
}

func evalPair(a, b ast.Expr, vars Vars) (float64, float64, error) {
	l, err := eval(a, vars)
	if err != nil {
		return 0, 0, err
	}
	r, err := eval(b, vars)
	return l, r, err
}

func arith(op string, l, r float64) (float64, error) {
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, fmt.Errorf("%w: division by zero", ErrArithmetic)
		}
		return l / r, nil
	case "%":
		if r == 0 {
			return 0, fmt.Errorf("%w: modulo by zero", ErrArithmetic)
		}
		return l - math.Floor(l/r)*r, nil
	case "^":
		return math.Pow(l, r), nil
	}
	return 0, fmt.Errorf("%w: operator %q", ErrUnsupported, op)
}

type function struct {
	arity int // -1 = variadic
	call  func(args []float64) float64
}

var functions = map[string]function{
	"abs":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"floor": {1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {1, func(a []float64) float64 { return math.Ceil(a[0]) }},
	"round": {1, func(a []float64) float64 { return math.Round(a[0]) }},
	"sqrt":  {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"clamp": {3, func(a []float64) float64 { return math.Min(math.Max(a[0], a[1]), a[2]) }},
	"min": {-1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"max": {-1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
}

// Cache memoizes compiled expressions. It is safe for concurrent use; a
// source that failed to compile is cached as a failure too.
type Cache struct {
	mu    sync.RWMutex
	exprs map[string]cached
}

type cached struct {
	expr *Expr
	err  error
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{exprs: make(map[string]cached)}
}

// Compile returns the cached compilation of src.
func (c *Cache) Compile(src string) (*Expr, error) {
	c.mu.RLock()
	hit, ok := c.exprs[src]
	c.mu.RUnlock()
	if ok {
		return hit.expr, hit.err
	}
	e, err := Compile(src)
	c.mu.Lock()
	c.exprs[src] = cached{expr: e, err: err}
	c.mu.Unlock()
	return e, err
}

// Eval compiles (through the cache) and evaluates src.
func (c *Cache) Eval(src string, vars Vars) (float64, error) {
	e, err := c.Compile(src)
	if err != nil {
		return 0, err
	}
	return e.Eval(vars)
}

// EvalBool compiles (through the cache) and evaluates src as a condition.
func (c *Cache) EvalBool(src string, vars Vars) (bool, error) {
	e, err := c.Compile(src)
	if err != nil {
		return false, err
	}
	return e.EvalBool(vars)
}

// EvalOr evaluates src and returns fallback alongside the error when
// compilation or evaluation fails, so callers can treat a broken formula as
// a no-op and still log it.
func (c *Cache) EvalOr(src string, vars Vars, fallback float64) (float64, error) {
	v, err := c.Eval(src, vars)
	if err != nil {
		return fallback, err
	}
	return v, nil
}
