package tabexport

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// TextResolver rewrites the text of a template cell. Returning the input
// unchanged leaves the cell alone.
type TextResolver interface {
	Resolve(text string) string
}

// ResolverFunc adapts a function to TextResolver.
type ResolverFunc func(text string) string

func (f ResolverFunc) Resolve(text string) string { return f(text) }

const (
	exprBegin = "${"
	exprEnd   = "}"
)

// ExprResolver substitutes ${expression} segments with their value
// evaluated against a fixed set of variables.
type ExprResolver struct {
	vars  map[string]any
	cache sync.Map // expression string → compiled *vm.Program
}

// NewExprResolver creates a resolver backed by expr-lang/expr.
func NewExprResolver(vars map[string]any) *ExprResolver {
	if vars == nil {
		vars = map[string]any{}
	}
	return &ExprResolver{vars: vars}
}

// Resolve replaces every expression segment of text. A segment that fails
// to compile or run is kept as written.
func (r *ExprResolver) Resolve(text string) string {
	if !strings.Contains(text, exprBegin) {
		return text
	}
	var b strings.Builder
	for _, seg := range ParseExpressions(text) {
		if !seg.IsExpression {
			b.WriteString(seg.Text)
			continue
		}
		v, err := r.Evaluate(seg.Text)
		if err != nil {
			b.WriteString(exprBegin + seg.Text + exprEnd)
			continue
		}
		b.WriteString(FormatValue(v))
	}
	return b.String()
}

// Evaluate runs a single expression against the resolver's variables.
func (r *ExprResolver) Evaluate(expression string) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	program, err := r.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	result, err := expr.Run(program, r.vars)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

func (r *ExprResolver) compile(expression string) (*vm.Program, error) {
	if cached, ok := r.cache.Load(expression); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(expression, expr.Env(r.vars), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	r.cache.Store(expression, program)
	return program, nil
}

// CheckExpression reports whether expression compiles, independent of any
// variables.
func CheckExpression(expression string) error {
	if _, err := expr.Compile(expression, expr.AllowUndefinedVariables()); err != nil {
		return fmt.Errorf("compile expression %q: %w", expression, err)
	}
	return nil
}

// ExpressionSegment is a part of a cell text: literal text or an expression
// without its delimiters.
type ExpressionSegment struct {
	IsExpression bool
	Text         string
}

// ParseExpressions splits text into literal and ${...} segments. Braces
// nested inside an expression are balanced; an unterminated ${ stays literal.
//
//	"Total: ${sum}" → [{false, "Total: "}, {true, "sum"}]
func ParseExpressions(text string) []ExpressionSegment {
	var segments []ExpressionSegment
	rest := text
	for {
		open := strings.Index(rest, exprBegin)
		if open < 0 {
			break
		}
		body := open + len(exprBegin)
		closing := matchingBrace(rest[body:])
		if closing < 0 {
			break
		}
		if open > 0 {
			segments = append(segments, ExpressionSegment{Text: rest[:open]})
		}
		segments = append(segments, ExpressionSegment{IsExpression: true, Text: rest[body : body+closing]})
		rest = rest[body+closing+len(exprEnd):]
	}
	if rest != "" {
		segments = append(segments, ExpressionSegment{Text: rest})
	}
	return segments
}

func matchingBrace(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}
