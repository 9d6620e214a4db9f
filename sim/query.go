package sim

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
)

// Query is a parsed property expression such as "-potential_energy" or
// "comp(0) > 0.4 && formation_energy < 0". It evaluates against the
// per-unit-cell properties of one configuration.
//
// Scalars: formation_energy, potential_energy, true, false, numeric literals.
// Vector components: corr(i), comp_n(i), comp(i), order_parameter(i).
// Functions: abs(x), sqrt(x). Operators: + - * / < <= > >= == != && || !.
type Query struct {
	text   string
	expr   ast.Expr
	isBool bool
}

var queryScalars = map[string]func(p *PropertySnapshot) float64{
	"formation_energy": func(p *PropertySnapshot) float64 { return p.FormationEnergy },
	"potential_energy": func(p *PropertySnapshot) float64 { return p.PotentialEnergy },
}

var queryVectors = map[string]func(p *PropertySnapshot) []float64{
	"corr":            func(p *PropertySnapshot) []float64 { return p.Corr },
	"comp_n":          func(p *PropertySnapshot) []float64 { return p.CompN },
	"comp":            func(p *PropertySnapshot) []float64 { return p.Comp },
	"order_parameter": func(p *PropertySnapshot) []float64 { return p.Eta },
}

var queryFuncs = map[string]func(float64) float64{
	"abs":  math.Abs,
	"sqrt": math.Sqrt,
}

// ParseQuery parses text and checks that it only names known properties and
// functions. Errors quote the offending text.
func ParseQuery(text string) (*Query, error) {
	expr, err := parser.ParseExpr(text)
	if err != nil {
		return nil, fmt.Errorf("parsing query %q: %w", text, err)
	}
	q := &Query{text: text, expr: expr}
	if err := q.checkNames(expr); err != nil {
		return nil, fmt.Errorf("parsing query %q: %w", text, err)
	}
	if q.isBool, err = typeOf(expr); err != nil {
		return nil, fmt.Errorf("parsing query %q: %w", text, err)
	}
	return q, nil
}

// MustParseQuery is ParseQuery for expressions known to be valid.
func MustParseQuery(text string) *Query {
	q, err := ParseQuery(text)
	if err != nil {
		panic(err)
	}
	return q
}

func (q *Query) String() string { return q.text }

// IsBool reports whether the query is a predicate rather than a number.
func (q *Query) IsBool() bool { return q.isBool }

// typeOf reports whether e is boolean, checking every operand including
// those a short-circuit would skip. e has passed checkNames.
func typeOf(e ast.Expr) (bool, error) {
	switch n := e.(type) {
	case *ast.BasicLit:
		return false, nil
	case *ast.CallExpr:
		name := n.Fun.(*ast.Ident).Name
		if _, ok := queryFuncs[name]; ok {
			isBool, err := typeOf(n.Args[0])
			if err != nil {
				return false, err
			}
			if isBool {
				return false, fmt.Errorf("%s applied to a boolean", name)
			}
		}
		return false, nil
	case *ast.Ident:
		return n.Name == "true" || n.Name == "false", nil
	case *ast.ParenExpr:
		return typeOf(n.X)
	case *ast.UnaryExpr:
		isBool, err := typeOf(n.X)
		if err != nil {
			return false, err
		}
		if (n.Op == token.NOT) != isBool {
			return false, fmt.Errorf("%s applied to a %s", n.Op, typeName(isBool))
		}
		return isBool, nil
	case *ast.BinaryExpr:
		x, err := typeOf(n.X)
		if err != nil {
			return false, err
		}
		y, err := typeOf(n.Y)
		if err != nil {
			return false, err
		}
		switch n.Op {
		case token.LAND, token.LOR:
			if !x || !y {
				return false, fmt.Errorf("%s applied to a number", n.Op)
			}
		case token.EQL, token.NEQ:
			if x != y {
				return false, fmt.Errorf("%s compares a boolean with a number", n.Op)
			}
		default:
			if x || y {
				return false, fmt.Errorf("%s applied to a boolean", n.Op)
			}
			if n.Op == token.ADD || n.Op == token.SUB || n.Op == token.MUL || n.Op == token.QUO {
				return false, nil
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("unsupported expression")
}

func typeName(isBool bool) string {
	if isBool {
		return "boolean"
	}
	return "number"
}

func (q *Query) checkNames(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return fmt.Errorf("unsupported literal %s", n.Value)
		}
	case *ast.Ident:
		if _, ok := queryScalars[n.Name]; !ok && n.Name != "true" && n.Name != "false" {
			return fmt.Errorf("unknown property %q", n.Name)
		}
	case *ast.ParenExpr:
		return q.checkNames(n.X)
	case *ast.UnaryExpr:
		if n.Op != token.SUB && n.Op != token.ADD && n.Op != token.NOT {
			return fmt.Errorf("unsupported operator %s", n.Op)
		}
		return q.checkNames(n.X)
	case *ast.BinaryExpr:
		switch n.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO,
			token.LSS, token.LEQ, token.GTR, token.GEQ, token.EQL, token.NEQ,
			token.LAND, token.LOR:
		default:
			return fmt.Errorf("unsupported operator %s", n.Op)
		}
		if err := q.checkNames(n.X); err != nil {
			return err
		}
		return q.checkNames(n.Y)
	case *ast.CallExpr:
		fn, ok := n.Fun.(*ast.Ident)
		if !ok {
			return fmt.Errorf("unsupported call")
		}
		if len(n.Args) != 1 {
			return fmt.Errorf("%s takes exactly one argument", fn.Name)
		}
		if _, ok := queryVectors[fn.Name]; ok {
			if _, err := componentIndex(n.Args[0]); err != nil {
				return fmt.Errorf("%s: %w", fn.Name, err)
			}
			return nil
		}
		if _, ok := queryFuncs[fn.Name]; ok {
			return q.checkNames(n.Args[0])
		}
		return fmt.Errorf("unknown function %q", fn.Name)
	default:
		return fmt.Errorf("unsupported expression")
	}
	return nil
}

func componentIndex(e ast.Expr) (int, error) {
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return 0, fmt.Errorf("component index must be an integer literal")
	}
	i, err := strconv.Atoi(lit.Value)
	if err != nil {
		return 0, err
	}
	return i, nil
}

type queryValue struct {
	num    float64
	b      bool
	isBool bool
}

// Float evaluates the query as a number.
func (q *Query) Float(p *PropertySnapshot) (float64, error) {
	v, err := q.eval(q.expr, p)
	if err != nil {
		return 0, fmt.Errorf("evaluating %q: %w", q.text, err)
	}
	if v.isBool {
		return 0, fmt.Errorf("evaluating %q: expression is boolean, want a number", q.text)
	}
	return v.num, nil
}

// Bool evaluates the query as a predicate.
func (q *Query) Bool(p *PropertySnapshot) (bool, error) {
	v, err := q.eval(q.expr, p)
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", q.text, err)
	}
	if !v.isBool {
		return false, fmt.Errorf("evaluating %q: expression is numeric, want a boolean", q.text)
	}
	return v.b, nil
}

func (q *Query) eval(e ast.Expr, p *PropertySnapshot) (queryValue, error) {
	switch n := e.(type) {
	case *ast.BasicLit:
		f, err := strconv.ParseFloat(n.Value, 64)
		return queryValue{num: f}, err
	case *ast.Ident:
		switch n.Name {
		case "true":
			return queryValue{b: true, isBool: true}, nil
		case "false":
			return queryValue{isBool: true}, nil
		}
		return queryValue{num: queryScalars[n.Name](p)}, nil
	case *ast.ParenExpr:
		return q.eval(n.X, p)
	case *ast.UnaryExpr:
		x, err := q.eval(n.X, p)
		if err != nil {
			return x, err
		}
		if n.Op == token.NOT {
			if !x.isBool {
				return x, fmt.Errorf("! applied to a number")
			}
			return queryValue{b: !x.b, isBool: true}, nil
		}
		if x.isBool {
			return x, fmt.Errorf("%s applied to a boolean", n.Op)
		}
		if n.Op == token.SUB {
			x.num = -x.num
		}
		return x, nil
	case *ast.BinaryExpr:
		return q.evalBinary(n, p)
	case *ast.CallExpr:
		name := n.Fun.(*ast.Ident).Name
		if vec, ok := queryVectors[name]; ok {
			i, _ := componentIndex(n.Args[0])
			v := vec(p)
			if i < 0 || i >= len(v) {
				return queryValue{}, fmt.Errorf("%s(%d) out of range, property has %d components", name, i, len(v))
			}
			return queryValue{num: v[i]}, nil
		}
		x, err := q.eval(n.Args[0], p)
		if err != nil {
			return x, err
		}
		if x.isBool {
			return x, fmt.Errorf("%s applied to a boolean", name)
		}
		return queryValue{num: queryFuncs[name](x.num)}, nil
	}
	return queryValue{}, fmt.Errorf("unsupported expression")
}

func (q *Query) evalBinary(n *ast.BinaryExpr, p *PropertySnapshot) (queryValue, error) {
	x, err := q.eval(n.X, p)
	if err != nil {
		return x, err
	}
	if n.Op == token.LAND || n.Op == token.LOR {
		if !x.isBool {
			return x, fmt.Errorf("%s applied to a number", n.Op)
		}
		// short-circuit
		if (n.Op == token.LAND && !x.b) || (n.Op == token.LOR && x.b) {
			return x, nil
		}
		y, err := q.eval(n.Y, p)
		if err != nil {
			return y, err
		}
		if !y.isBool {
			return y, fmt.Errorf("%s applied to a number", n.Op)
		}
		return y, nil
	}
	y, err := q.eval(n.Y, p)
	if err != nil {
		return y, err
	}
	if x.isBool || y.isBool {
		if (n.Op == token.EQL || n.Op == token.NEQ) && x.isBool && y.isBool {
			return queryValue{b: (x.b == y.b) == (n.Op == token.EQL), isBool: true}, nil
		}
		return queryValue{}, fmt.Errorf("%s applied to a boolean", n.Op)
	}
	switch n.Op {
	case token.ADD:
		return queryValue{num: x.num + y.num}, nil
	case token.SUB:
		return queryValue{num: x.num - y.num}, nil
	case token.MUL:
		return queryValue{num: x.num * y.num}, nil
	case token.QUO:
		return queryValue{num: x.num / y.num}, nil
	case token.LSS:
		return queryValue{b: x.num < y.num, isBool: true}, nil
	case token.LEQ:
		return queryValue{b: x.num <= y.num, isBool: true}, nil
	case token.GTR:
		return queryValue{b: x.num > y.num, isBool: true}, nil
	case token.GEQ:
		return queryValue{b: x.num >= y.num, isBool: true}, nil
	case token.EQL:
		return queryValue{b: x.num == y.num, isBool: true}, nil
	case token.NEQ:
		return queryValue{b: x.num != y.num, isBool: true}, nil
	}
	return queryValue{}, fmt.Errorf("unsupported operator %s", n.Op)
}
