// Package evalexpr evaluates a restricted expression language against a
// variable lookup table: a whitelist of builtin functions, no names beyond
// the caller-supplied resolver, no statement syntax.
//
// Expressions are parsed with go/parser rather than a hand-rolled Python
// grammar, restricted to the expression subset that's actually needed:
// literals, arithmetic, comparisons, boolean logic, indexing, and calls to
// whitelisted functions. Bracketed container literals ([1, 2, 3], {"a": 1})
// aren't valid Go expression syntax, so those are recognized up front and
// handed to coerce.ParseLiteral instead of go/parser.
package evalexpr

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dr-natetorious/fleetshell/internal/coerce"
)

// Resolver looks up a variable by name for use inside an expression.
type Resolver func(name string) (any, bool)

// EvaluationError wraps a failure to evaluate an expression, matching the
// taxonomy's VariableEvaluationError.
type EvaluationError struct {
	Expr  string
	Cause error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("failed to evaluate expression %q: %v", e.Expr, e.Cause)
}

func (e *EvaluationError) Unwrap() error { return e.Cause }

// Evaluator evaluates expressions against a Resolver, restricted to the
// builtin whitelist.
type Evaluator struct {
	Resolve Resolver
}

// New constructs an Evaluator backed by the given variable resolver.
func New(resolve Resolver) *Evaluator {
	return &Evaluator{Resolve: resolve}
}

// Evaluate parses and evaluates expr, returning a value of the same runtime
// shapes coerce.Convert expects: bool, int, int64, float64, string,
// []any, map[string]any.
func (ev *Evaluator) Evaluate(expr string) (any, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, &EvaluationError{Expr: expr, Cause: fmt.Errorf("empty expression")}
	}
	if looksLikeContainerLiteral(trimmed) {
		if v, err := coerce.ParseLiteral(trimmed); err == nil {
			return v, nil
		}
	}
	node, err := parser.ParseExpr(trimmed)
	if err != nil {
		// go/parser rejects a Go keyword as a selector (error.type); retry
		// with such selectors prefixed so evalSelector can map them back.
		escaped := keywordSelector.ReplaceAllString(trimmed, "."+keywordSelectorPrefix+"${1}")
		if alt, altErr := parser.ParseExpr(escaped); altErr == nil {
			node, err = alt, nil
		}
	}
	if err != nil {
		return nil, &EvaluationError{Expr: expr, Cause: err}
	}
	v, err := ev.eval(node)
	if err != nil {
		return nil, &EvaluationError{Expr: expr, Cause: err}
	}
	return v, nil
}

// keywordSelector matches a selector spelled as a Go keyword.
var keywordSelector = regexp.MustCompile(`\.(break|case|chan|const|continue|default|defer|else|fallthrough|for|func|go|goto|if|import|interface|map|package|range|return|select|struct|switch|type|var)\b`)

const keywordSelectorPrefix = "_kw_"

func looksLikeContainerLiteral(s string) bool {
	return strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") ||
		(strings.HasPrefix(s, "(") && strings.Contains(s, ","))
}

func (ev *Evaluator) eval(n ast.Expr) (any, error) {
	switch e := n.(type) {
	case *ast.ParenExpr:
		return ev.eval(e.X)
	case *ast.BasicLit:
		return evalBasicLit(e)
	case *ast.Ident:
		return ev.evalIdent(e)
	case *ast.UnaryExpr:
		return ev.evalUnary(e)
	case *ast.BinaryExpr:
		return ev.evalBinary(e)
	case *ast.CallExpr:
		return ev.evalCall(e)
	case *ast.IndexExpr:
		return ev.evalIndex(e)
	case *ast.SliceExpr:
		return ev.evalSlice(e)
	case *ast.SelectorExpr:
		return ev.evalSelector(e)
	default:
		return nil, fmt.Errorf("unsupported expression syntax %T", n)
	}
}

func evalBasicLit(lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.INT:
		i, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, err
		}
		return i, nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case token.STRING, token.CHAR:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported literal kind %v", lit.Kind)
	}
}

func (ev *Evaluator) evalIdent(id *ast.Ident) (any, error) {
	switch id.Name {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "nil", "null":
		return nil, nil
	}
	if ev.Resolve != nil {
		if v, ok := ev.Resolve(id.Name); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("name '%s' is not defined", id.Name)
}

func (ev *Evaluator) evalUnary(e *ast.UnaryExpr) (any, error) {
	v, err := ev.eval(e.X)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case token.SUB:
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, fmt.Errorf("cannot negate %T", v)
	case token.NOT:
		return !truthy(v), nil
	default:
		return nil, fmt.Errorf("unsupported unary operator %v", e.Op)
	}
}

func (ev *Evaluator) evalBinary(e *ast.BinaryExpr) (any, error) {
	if e.Op == token.LAND {
		l, err := ev.eval(e.X)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return false, nil
		}
		r, err := ev.eval(e.Y)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}
	if e.Op == token.LOR {
		l, err := ev.eval(e.X)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return true, nil
		}
		r, err := ev.eval(e.Y)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	l, err := ev.eval(e.X)
	if err != nil {
		return nil, err
	}
	r, err := ev.eval(e.Y)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case token.EQL:
		return equalValues(l, r), nil
	case token.NEQ:
		return !equalValues(l, r), nil
	case token.ADD:
		if ls, ok := l.(string); ok {
			rs, ok2 := r.(string)
			if !ok2 {
				return nil, fmt.Errorf("cannot concatenate string with %T", r)
			}
			return ls + rs, nil
		}
		return arith(l, r, e.Op)
	case token.SUB, token.MUL, token.QUO, token.REM:
		return arith(l, r, e.Op)
	case token.LSS, token.LEQ, token.GTR, token.GEQ:
		return compare(l, r, e.Op)
	default:
		return nil, fmt.Errorf("unsupported binary operator %v", e.Op)
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return float64(n), true
	}
	return 0, false
}

func bothInt(l, r any) (int64, int64, bool) {
	li, lok := l.(int64)
	ri, rok := r.(int64)
	if lok && rok {
		return li, ri, true
	}
	if lv, lok2 := l.(int); lok2 {
		if rv, rok2 := r.(int); rok2 {
			return int64(lv), int64(rv), true
		}
	}
	return 0, 0, false
}

func arith(l, r any, op token.Token) (any, error) {
	if li, ri, ok := bothInt(l, r); ok {
		switch op {
		case token.ADD:
			return li + ri, nil
		case token.SUB:
			return li - ri, nil
		case token.MUL:
			return li * ri, nil
		case token.QUO:
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li / ri, nil
		case token.REM:
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li % ri, nil
		}
	}
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("unsupported operand types for arithmetic: %T and %T", l, r)
	}
	switch op {
	case token.ADD:
		return lf + rf, nil
	case token.SUB:
		return lf - rf, nil
	case token.MUL:
		return lf * rf, nil
	case token.QUO:
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case token.REM:
		return nil, fmt.Errorf("modulo requires integer operands")
	}
	return nil, fmt.Errorf("unsupported arithmetic operator %v", op)
}

func compare(l, r any, op token.Token) (any, error) {
	if ls, ok := l.(string); ok {
		rs, ok2 := r.(string)
		if !ok2 {
			return nil, fmt.Errorf("cannot compare string with %T", r)
		}
		switch op {
		case token.LSS:
			return ls < rs, nil
		case token.LEQ:
			return ls <= rs, nil
		case token.GTR:
			return ls > rs, nil
		case token.GEQ:
			return ls >= rs, nil
		}
	}
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("unsupported operand types for comparison: %T and %T", l, r)
	}
	switch op {
	case token.LSS:
		return lf < rf, nil
	case token.LEQ:
		return lf <= rf, nil
	case token.GTR:
		return lf > rf, nil
	case token.GEQ:
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("unsupported comparison operator %v", op)
}

func equalValues(l, r any) bool {
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if lok && rok {
		return lf == rf
	}
	return fmt.Sprintf("%v", l) == fmt.Sprintf("%v", r) && fmt.Sprintf("%T", l) == fmt.Sprintf("%T", r)
}

func truthy(v any) bool {
	switch n := v.(type) {
	case nil:
		return false
	case bool:
		return n
	case int64:
		return n != 0
	case float64:
		return n != 0
	case string:
		return n != ""
	case []any:
		return len(n) != 0
	case map[string]any:
		return len(n) != 0
	default:
		return true
	}
}

func (ev *Evaluator) evalIndex(e *ast.IndexExpr) (any, error) {
	base, err := ev.eval(e.X)
	if err != nil {
		return nil, err
	}
	idx, err := ev.eval(e.Index)
	if err != nil {
		return nil, err
	}
	switch b := base.(type) {
	case []any:
		i, ok := idx.(int64)
		if !ok {
			return nil, fmt.Errorf("list index must be an int")
		}
		if i < 0 {
			i += int64(len(b))
		}
		if i < 0 || i >= int64(len(b)) {
			return nil, fmt.Errorf("list index out of range")
		}
		return b[i], nil
	case map[string]any:
		key := fmt.Sprintf("%v", idx)
		v, ok := b[key]
		if !ok {
			return nil, fmt.Errorf("key %q not found", key)
		}
		return v, nil
	case string:
		i, ok := idx.(int64)
		if !ok {
			return nil, fmt.Errorf("string index must be an int")
		}
		if i < 0 {
			i += int64(len(b))
		}
		if i < 0 || i >= int64(len(b)) {
			return nil, fmt.Errorf("string index out of range")
		}
		return string(b[i]), nil
	default:
		return nil, fmt.Errorf("cannot index %T", base)
	}
}

// evalSelector handles dotted attribute access like error.message or
// error.type — the shell's structured values ($error, discovery results)
// are map[string]any, so a.b is sugar for a["b"].
func (ev *Evaluator) evalSelector(e *ast.SelectorExpr) (any, error) {
	base, err := ev.eval(e.X)
	if err != nil {
		return nil, err
	}
	name := e.Sel.Name
	if kw := strings.TrimPrefix(name, keywordSelectorPrefix); kw != name && token.Lookup(kw).IsKeyword() {
		name = kw
	}
	m, ok := base.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot access attribute %q on %T", name, base)
	}
	v, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("key %q not found", name)
	}
	return v, nil
}

func (ev *Evaluator) evalSlice(e *ast.SliceExpr) (any, error) {
	base, err := ev.eval(e.X)
	if err != nil {
		return nil, err
	}
	seq, ok := base.([]any)
	if !ok {
		return nil, fmt.Errorf("cannot slice %T", base)
	}
	lo, hi := 0, len(seq)
	if e.Low != nil {
		v, err := ev.eval(e.Low)
		if err != nil {
			return nil, err
		}
		i, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("slice bound must be an int")
		}
		lo = int(i)
	}
	if e.High != nil {
		v, err := ev.eval(e.High)
		if err != nil {
			return nil, err
		}
		i, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("slice bound must be an int")
		}
		hi = int(i)
	}
	if lo < 0 || hi > len(seq) || lo > hi {
		return nil, fmt.Errorf("slice bounds out of range")
	}
	return append([]any{}, seq[lo:hi]...), nil
}

func (ev *Evaluator) evalCall(e *ast.CallExpr) (any, error) {
	fnIdent, ok := e.Fun.(*ast.Ident)
	if !ok {
		return nil, fmt.Errorf("only calls to builtin function names are allowed")
	}
	fn, ok := builtins[fnIdent.Name]
	if !ok {
		return nil, fmt.Errorf("name '%s' is not defined", fnIdent.Name)
	}
	args := make([]any, len(e.Args))
	for i, a := range e.Args {
		v, err := ev.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return fn(args)
}

// builtins is the whitelist of callables available to expressions; nothing
// outside this table is callable.
var builtins = map[string]func(args []any) (any, error){
	"int":      builtinInt,
	"float":    builtinFloat,
	"str":      builtinStr,
	"bool":     builtinBool,
	"list":     builtinList,
	"dict":     builtinDict,
	"tuple":    builtinList,
	"set":      builtinSet,
	"len":      builtinLen,
	"min":      builtinMin,
	"max":      builtinMax,
	"sum":      builtinSum,
	"sorted":   builtinSorted,
	"range":    builtinRange,
	"enumerate": builtinEnumerate,
	"zip":      builtinZip,
	"round":    builtinRound,
	"abs":      builtinAbs,
	"all":      builtinAll,
	"any":      builtinAny,
}

func requireArgs(args []any, n int, name string) error {
	if len(args) != n {
		return fmt.Errorf("%s() takes exactly %d argument(s)", name, n)
	}
	return nil
}

func builtinInt(args []any) (any, error) {
	if err := requireArgs(args, 1, "int"); err != nil {
		return nil, err
	}
	v, err := coerce.Convert(args[0], coerce.Int())
	if err != nil {
		return nil, err
	}
	return int64(v.(int)), nil
}

func builtinFloat(args []any) (any, error) {
	if err := requireArgs(args, 1, "float"); err != nil {
		return nil, err
	}
	return coerce.Convert(args[0], coerce.Float())
}

func builtinStr(args []any) (any, error) {
	if err := requireArgs(args, 1, "str"); err != nil {
		return nil, err
	}
	return coerce.Convert(args[0], coerce.String())
}

func builtinBool(args []any) (any, error) {
	if err := requireArgs(args, 1, "bool"); err != nil {
		return nil, err
	}
	return truthy(args[0]), nil
}

func builtinList(args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	if err := requireArgs(args, 1, "list"); err != nil {
		return nil, err
	}
	seq, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("list() argument must be a sequence")
	}
	return append([]any{}, seq...), nil
}

func builtinSet(args []any) (any, error) {
	v, err := builtinList(args)
	if err != nil {
		return nil, err
	}
	seq := v.([]any)
	seen := map[string]bool{}
	out := make([]any, 0, len(seq))
	for _, item := range seq {
		key := fmt.Sprintf("%v", item)
		if !seen[key] {
			seen[key] = true
			out = append(out, item)
		}
	}
	return out, nil
}

func builtinDict(args []any) (any, error) {
	if len(args) == 0 {
		return map[string]any{}, nil
	}
	if err := requireArgs(args, 1, "dict"); err != nil {
		return nil, err
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("dict() argument must be a mapping")
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func builtinLen(args []any) (any, error) {
	if err := requireArgs(args, 1, "len"); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case []any:
		return int64(len(v)), nil
	case map[string]any:
		return int64(len(v)), nil
	case string:
		return int64(len(v)), nil
	}
	return nil, fmt.Errorf("object of type %T has no len()", args[0])
}

func toFloatSlice(args []any) ([]float64, error) {
	var seq []any
	if len(args) == 1 {
		if s, ok := args[0].([]any); ok {
			seq = s
		} else {
			seq = args
		}
	} else {
		seq = args
	}
	out := make([]float64, len(seq))
	for i, v := range seq {
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("unsupported operand type %T", v)
		}
		out[i] = f
	}
	return out, nil
}

func builtinMin(args []any) (any, error) {
	fs, err := toFloatSlice(args)
	if err != nil || len(fs) == 0 {
		if err == nil {
			err = fmt.Errorf("min() arg is an empty sequence")
		}
		return nil, err
	}
	m := fs[0]
	for _, f := range fs[1:] {
		if f < m {
			m = f
		}
	}
	return floatOrInt(m, args), nil
}

func builtinMax(args []any) (any, error) {
	fs, err := toFloatSlice(args)
	if err != nil || len(fs) == 0 {
		if err == nil {
			err = fmt.Errorf("max() arg is an empty sequence")
		}
		return nil, err
	}
	m := fs[0]
	for _, f := range fs[1:] {
		if f > m {
			m = f
		}
	}
	return floatOrInt(m, args), nil
}

func builtinSum(args []any) (any, error) {
	fs, err := toFloatSlice(args)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, f := range fs {
		total += f
	}
	return floatOrInt(total, args), nil
}

// floatOrInt renders the result as int64 when every original element was
// integral, mirroring Python's int-preserving min/max/sum semantics.
func floatOrInt(f float64, originalArgs []any) any {
	var seq []any
	if len(originalArgs) == 1 {
		if s, ok := originalArgs[0].([]any); ok {
			seq = s
		} else {
			seq = originalArgs
		}
	} else {
		seq = originalArgs
	}
	allInt := true
	for _, v := range seq {
		switch v.(type) {
		case int64, int:
		default:
			allInt = false
		}
	}
	if allInt {
		return int64(f)
	}
	return f
}

func builtinSorted(args []any) (any, error) {
	if err := requireArgs(args, 1, "sorted"); err != nil {
		return nil, err
	}
	seq, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("sorted() argument must be a sequence")
	}
	out := append([]any{}, seq...)
	sort.SliceStable(out, func(i, j int) bool {
		fi, iok := asFloat(out[i])
		fj, jok := asFloat(out[j])
		if iok && jok {
			return fi < fj
		}
		return fmt.Sprintf("%v", out[i]) < fmt.Sprintf("%v", out[j])
	})
	return out, nil
}

func builtinRange(args []any) (any, error) {
	var start, stop, step int64 = 0, 0, 1
	toInt := func(v any) (int64, error) {
		f, ok := asFloat(v)
		if !ok {
			return 0, fmt.Errorf("range() arguments must be integers")
		}
		return int64(f), nil
	}
	switch len(args) {
	case 1:
		s, err := toInt(args[0])
		if err != nil {
			return nil, err
		}
		stop = s
	case 2:
		s, err := toInt(args[0])
		if err != nil {
			return nil, err
		}
		e, err := toInt(args[1])
		if err != nil {
			return nil, err
		}
		start, stop = s, e
	case 3:
		s, err := toInt(args[0])
		if err != nil {
			return nil, err
		}
		e, err := toInt(args[1])
		if err != nil {
			return nil, err
		}
		st, err := toInt(args[2])
		if err != nil {
			return nil, err
		}
		start, stop, step = s, e, st
	default:
		return nil, fmt.Errorf("range() expects 1 to 3 arguments")
	}
	if step == 0 {
		return nil, fmt.Errorf("range() step argument must not be zero")
	}
	var out []any
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func builtinEnumerate(args []any) (any, error) {
	if err := requireArgs(args, 1, "enumerate"); err != nil {
		return nil, err
	}
	seq, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("enumerate() argument must be a sequence")
	}
	out := make([]any, len(seq))
	for i, v := range seq {
		out[i] = []any{int64(i), v}
	}
	return out, nil
}

func builtinZip(args []any) (any, error) {
	seqs := make([][]any, len(args))
	minLen := -1
	for i, a := range args {
		seq, ok := a.([]any)
		if !ok {
			return nil, fmt.Errorf("zip() arguments must be sequences")
		}
		seqs[i] = seq
		if minLen == -1 || len(seq) < minLen {
			minLen = len(seq)
		}
	}
	if minLen < 0 {
		minLen = 0
	}
	out := make([]any, minLen)
	for i := 0; i < minLen; i++ {
		tuple := make([]any, len(seqs))
		for j, seq := range seqs {
			tuple[j] = seq[i]
		}
		out[i] = tuple
	}
	return out, nil
}

func builtinRound(args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("round() takes 1 or 2 arguments")
	}
	f, ok := asFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("round() argument must be a number")
	}
	ndigits := 0
	if len(args) == 2 {
		n, ok := args[1].(int64)
		if !ok {
			return nil, fmt.Errorf("round() second argument must be an int")
		}
		ndigits = int(n)
	}
	mult := 1.0
	for i := 0; i < ndigits; i++ {
		mult *= 10
	}
	for i := 0; i > ndigits; i-- {
		mult /= 10
	}
	rounded := roundHalfEven(f*mult) / mult
	if len(args) == 1 {
		return int64(rounded), nil
	}
	return rounded, nil
}

func roundHalfEven(f float64) float64 {
	floor := float64(int64(f))
	diff := f - floor
	switch {
	case diff < 0.5:
		return floor
	case diff > 0.5:
		return floor + 1
	default:
		if int64(floor)%2 == 0 {
			return floor
		}
		return floor + 1
	}
}

func builtinAbs(args []any) (any, error) {
	if err := requireArgs(args, 1, "abs"); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	}
	return nil, fmt.Errorf("abs() argument must be a number")
}

func builtinAll(args []any) (any, error) {
	if err := requireArgs(args, 1, "all"); err != nil {
		return nil, err
	}
	seq, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("all() argument must be a sequence")
	}
	for _, v := range seq {
		if !truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

func builtinAny(args []any) (any, error) {
	if err := requireArgs(args, 1, "any"); err != nil {
		return nil, err
	}
	seq, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("any() argument must be a sequence")
	}
	for _, v := range seq {
		if truthy(v) {
			return true, nil
		}
	}
	return false, nil
}
