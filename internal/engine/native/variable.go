package native

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/san-kum/mdctl/internal/modifier"
)

const maxVariableDepth = 16

type namedVariable struct {
	name  string
	style string
	text  string
	expr  node
}

func (v namedVariable) shape() modifier.Shape {
	if v.style == "vector" {
		return modifier.Vector
	}
	return modifier.Scalar
}

func (e *Engine) cmdVariable(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("Illegal variable command")
	}
	name, style := args[0], args[1]
	if style == "delete" {
		for i, v := range e.variables {
			if v.name == name {
				e.variables = append(e.variables[:i], e.variables[i+1:]...)
				delete(e.snapshots[modifier.Variable], name)
				return nil
			}
		}
		return nil
	}
	if style != "equal" && style != "vector" {
		return fmt.Errorf("Unsupported variable style %s", style)
	}
	if len(args) < 3 {
		return fmt.Errorf("Illegal variable command")
	}
	text := strings.Join(args[2:], " ")
	expr, err := parseExpr(text)
	if err != nil {
		return fmt.Errorf("Invalid variable %s formula: %v", name, err)
	}

	nv := namedVariable{name: name, style: style, text: text, expr: expr}
	e.snapshots[modifier.Variable][name] = modifier.Value{Shape: nv.shape()}
	for i := range e.variables {
		if e.variables[i].name == name {
			e.variables[i] = nv
			return nil
		}
	}
	e.variables = append(e.variables, nv)
	return nil
}

func (e *Engine) findVariable(name string) (namedVariable, bool) {
	for _, v := range e.variables {
		if v.name == name {
			return v, true
		}
	}
	return namedVariable{}, false
}

// evalVariable computes a variable's current value.
func (e *Engine) evalVariable(v namedVariable) (modifier.Value, error) {
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > maxIncludeDepth+maxVariableDepth {
		return modifier.Value{}, fmt.Errorf("Variable %s has a circular dependency", v.name)
	}

	r, err := v.expr.eval(e)
	if err != nil {
		return modifier.Value{}, err
	}
	if v.style == "equal" {
		if r.vec {
			return modifier.Value{}, fmt.Errorf("Equal-style variable %s evaluates to a vector", v.name)
		}
		return modifier.Value{Shape: modifier.Scalar, Scalar: r.data[0]}, nil
	}
	return modifier.Value{Shape: modifier.Vector, Vector: r.data}, nil
}

// variableText renders a variable for $ substitution.
func (e *Engine) variableText(name string) (string, error) {
	v, ok := e.findVariable(name)
	if !ok {
		return "", fmt.Errorf("Substitution for illegal variable %s", name)
	}
	val, err := e.evalVariable(v)
	if err != nil {
		return "", err
	}
	if val.Shape == modifier.Scalar {
		return strconv.FormatFloat(val.Scalar, 'g', 15, 64), nil
	}
	parts := make([]string, len(val.Vector))
	for i, x := range val.Vector {
		parts[i] = strconv.FormatFloat(x, 'g', 15, 64)
	}
	return "[" + strings.Join(parts, ",") + "]", nil
}

// result is a scalar (one element, vec false) or a vector.
type result struct {
	data []float64
	vec  bool
}

func scalar(x float64) result { return result{data: []float64{x}} }

type node interface {
	eval(e *Engine) (result, error)
}

type (
	numNode  float64
	nameNode string
	negNode  struct{ x node }
	binNode  struct {
		op   byte
		l, r node
	}
	callNode struct {
		fn   string
		args []node
	}
	refNode struct {
		prefix byte
		id     string
		index  int
	}
)

func (n numNode) eval(*Engine) (result, error) { return scalar(float64(n)), nil }

func (n negNode) eval(e *Engine) (result, error) {
	r, err := n.x.eval(e)
	if err != nil {
		return result{}, err
	}
	out := make([]float64, len(r.data))
	for i, x := range r.data {
		out[i] = -x
	}
	return result{data: out, vec: r.vec}, nil
}

func (n binNode) eval(e *Engine) (result, error) {
	l, err := n.l.eval(e)
	if err != nil {
		return result{}, err
	}
	r, err := n.r.eval(e)
	if err != nil {
		return result{}, err
	}
	size := len(l.data)
	if r.vec && (!l.vec || len(r.data) < size) {
		size = len(r.data)
	}
	out := make([]float64, size)
	for i := range out {
		a, b := pick(l, i), pick(r, i)
		switch n.op {
		case '+':
			out[i] = a + b
		case '-':
			out[i] = a - b
		case '*':
			out[i] = a * b
		case '/':
			if b == 0 {
				return result{}, fmt.Errorf("Divide by 0 in variable formula")
			}
			out[i] = a / b
		case '%':
			if b == 0 {
				return result{}, fmt.Errorf("Modulo 0 in variable formula")
			}
			out[i] = math.Mod(a, b)
		case '^':
			out[i] = math.Pow(a, b)
		}
	}
	return result{data: out, vec: l.vec || r.vec}, nil
}

func pick(r result, i int) float64 {
	if !r.vec {
		return r.data[0]
	}
	return r.data[i]
}

var unary = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"exp":   math.Exp,
	"ln":    math.Log,
	"log":   math.Log10,
	"abs":   math.Abs,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"round": math.Round,
}

func (n callNode) eval(e *Engine) (result, error) {
	args := make([]result, len(n.args))
	for i, a := range n.args {
		r, err := a.eval(e)
		if err != nil {
			return result{}, err
		}
		args[i] = r
	}

	if fn, ok := unary[n.fn]; ok {
		if len(args) != 1 {
			return result{}, fmt.Errorf("Invalid math function %s() syntax", n.fn)
		}
		out := make([]float64, len(args[0].data))
		for i, x := range args[0].data {
			out[i] = fn(x)
		}
		return result{data: out, vec: args[0].vec}, nil
	}

	switch n.fn {
	case "min", "max":
		if len(args) != 2 || args[0].vec || args[1].vec {
			return result{}, fmt.Errorf("Invalid math function %s() syntax", n.fn)
		}
		if n.fn == "min" {
			return scalar(math.Min(args[0].data[0], args[1].data[0])), nil
		}
		return scalar(math.Max(args[0].data[0], args[1].data[0])), nil
	case "sum", "count", "ave":
		if len(args) != 1 {
			return result{}, fmt.Errorf("Invalid special function %s() syntax", n.fn)
		}
		sum := 0.0
		for _, x := range args[0].data {
			sum += x
		}
		cnt := float64(len(args[0].data))
		switch n.fn {
		case "count":
			return scalar(cnt), nil
		case "ave":
			return scalar(sum / cnt), nil
		}
		return scalar(sum), nil
	}
	return result{}, fmt.Errorf("Invalid math function %s()", n.fn)
}

// eval resolves a thermo keyword.
func (n nameNode) eval(e *Engine) (result, error) {
	switch string(n) {
	case "PI":
		return scalar(math.Pi), nil
	case "step":
		return scalar(float64(e.ntimestep)), nil
	case "dt":
		return scalar(e.dt), nil
	case "time":
		return scalar(float64(e.ntimestep) * e.dt), nil
	case "atoms":
		return scalar(float64(e.atoms.n())), nil
	case "temp":
		return scalar(e.temperature()), nil
	case "ke":
		return scalar(e.kinetic()), nil
	case "pe":
		return scalar(e.pe), nil
	case "etotal":
		return scalar(e.pe + e.kinetic()), nil
	case "press":
		return scalar(e.pressure()), nil
	case "vol", "lx", "ly", "lz", "xlo", "ylo", "zlo", "xhi", "yhi", "zhi":
		if e.box == nil {
			return result{}, fmt.Errorf("Variable evaluation before simulation box is defined")
		}
		return scalar(boxKeyword(e.box, string(n))), nil
	}
	return result{}, fmt.Errorf("Invalid thermo keyword '%s' in variable formula", string(n))
}

func boxKeyword(b *box, kw string) float64 {
	switch kw {
	case "vol":
		return b.volume()
	case "lx", "ly", "lz":
		return b.length(int(kw[1] - 'x'))
	case "xlo", "ylo", "zlo":
		return b.lo[kw[0]-'x']
	default:
		return b.hi[kw[0]-'x']
	}
}

func (n refNode) eval(e *Engine) (result, error) {
	var val modifier.Value
	switch n.prefix {
	case 'c':
		c, ok := e.findCompute(n.id)
		if !ok {
			return result{}, fmt.Errorf("Invalid compute ID '%s' in variable formula", n.id)
		}
		val = c.c.value(e)
	case 'f':
		f, ok := e.findFix(n.id)
		if !ok {
			return result{}, fmt.Errorf("Invalid fix ID '%s' in variable formula", n.id)
		}
		val = f.f.value(e)
	case 'v':
		v, ok := e.findVariable(n.id)
		if !ok {
			return result{}, fmt.Errorf("Invalid variable reference v_%s in variable formula", n.id)
		}
		var err error
		if val, err = e.evalVariable(v); err != nil {
			return result{}, err
		}
	}

	switch val.Shape {
	case modifier.Scalar:
		if n.index > 0 {
			return result{}, fmt.Errorf("Variable formula %c_%s is not a vector", n.prefix, n.id)
		}
		return scalar(val.Scalar), nil
	case modifier.Vector:
		if n.index == 0 {
			return result{data: val.Vector, vec: true}, nil
		}
		if n.index > len(val.Vector) {
			return result{}, fmt.Errorf("Variable formula %c_%s vector is accessed out-of-range", n.prefix, n.id)
		}
		return scalar(val.Vector[n.index-1]), nil
	case modifier.Array:
		if n.index == 0 || len(val.Array) == 0 {
			return result{}, fmt.Errorf("Variable formula %c_%s array needs a column index", n.prefix, n.id)
		}
		col := make([]float64, len(val.Array))
		for i, row := range val.Array {
			if n.index > len(row) {
				return result{}, fmt.Errorf("Variable formula %c_%s array is accessed out-of-range", n.prefix, n.id)
			}
			col[i] = row[n.index-1]
		}
		return result{data: col, vec: true}, nil
	}
	return result{}, fmt.Errorf("Variable formula %c_%s has no global value", n.prefix, n.id)
}

// parser is a recursive descent parser over
//
//	expr  = term { ("+"|"-") term }
//	term  = unary { ("*"|"/"|"%") unary }
//	unary = "-" unary | power
//	power = atom [ "^" unary ]
type parser struct {
	s   string
	pos int
}

func parseExpr(s string) (node, error) {
	p := &parser{s: s}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skip()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("unexpected %q at %d", p.s[p.pos:], p.pos)
	}
	return n, nil
}

func (p *parser) skip() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skip()
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) expr() (node, error) {
	l, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return l, nil
		}
		p.pos++
		r, err := p.term()
		if err != nil {
			return nil, err
		}
		l = binNode{op: op, l: l, r: r}
	}
}

func (p *parser) term() (node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' && op != '%' {
			return l, nil
		}
		p.pos++
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = binNode{op: op, l: l, r: r}
	}
}

func (p *parser) unary() (node, error) {
	if p.peek() == '-' {
		p.pos++
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return negNode{x: x}, nil
	}
	return p.power()
}

func (p *parser) power() (node, error) {
	base, err := p.atom()
	if err != nil {
		return nil, err
	}
	if p.peek() != '^' {
		return base, nil
	}
	p.pos++
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return binNode{op: '^', l: base, r: exp}, nil
}

func (p *parser) atom() (node, error) {
	c := p.peek()
	switch {
	case c == 0:
		return nil, fmt.Errorf("unexpected end of formula")
	case c == '(':
		p.pos++
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("missing ')'")
		}
		p.pos++
		return n, nil
	case c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	case c == '_' || unicode.IsLetter(rune(c)):
		return p.word()
	}
	return nil, fmt.Errorf("unexpected %q at %d", c, p.pos)
}

func (p *parser) number() (node, error) {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		exp := (c == '+' || c == '-') && p.pos > start && (p.s[p.pos-1] == 'e' || p.s[p.pos-1] == 'E')
		if !(c >= '0' && c <= '9') && c != '.' && c != 'e' && c != 'E' && !exp {
			break
		}
		p.pos++
	}
	v, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("bad number %q", p.s[start:p.pos])
	}
	return numNode(v), nil
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.s) {
		c := rune(p.s[p.pos])
		if c != '_' && !unicode.IsLetter(c) && !unicode.IsDigit(c) {
			break
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) word() (node, error) {
	w := p.ident()

	if len(w) > 2 && w[1] == '_' && strings.ContainsRune("cfv", rune(w[0])) {
		ref := refNode{prefix: w[0], id: w[2:]}
		if p.pos < len(p.s) && p.s[p.pos] == '[' {
			end := strings.IndexByte(p.s[p.pos:], ']')
			if end < 0 {
				return nil, fmt.Errorf("missing ']' after %s", w)
			}
			idx, err := strconv.Atoi(strings.TrimSpace(p.s[p.pos+1 : p.pos+end]))
			if err != nil || idx < 1 {
				return nil, fmt.Errorf("bad index for %s", w)
			}
			ref.index = idx
			p.pos += end + 1
		}
		return ref, nil
	}

	if p.peek() != '(' {
		return nameNode(w), nil
	}
	p.pos++
	call := callNode{fn: w}
	if p.peek() == ')' {
		p.pos++
		return call, nil
	}
	for {
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return call, nil
		default:
			return nil, fmt.Errorf("missing ')' in call to %s", w)
		}
	}
}
