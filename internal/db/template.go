package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrPlaceholderMismatch is returned when a template's "?" count differs from
// its parameter count.
var ErrPlaceholderMismatch = errors.New("placeholder count does not match parameter count")

// Template is a SQL expression with positional "?" placeholders and the
// values bound to them, in order.
type Template struct {
	Expression string  `json:"sqlExpression"`
	Params     []Value `json:"params,omitempty"`
}

// NewTemplate builds a Template.
func NewTemplate(expr string, params ...Value) Template {
	return Template{Expression: expr, Params: params}
}

// Param is a value bound to a named parameter.
type Param struct {
	Name  string
	Value Value
}

// Statement is a translated Template: every "?" is replaced by @p0, @p1, ...
// and each value is bound to the matching name.
type Statement struct {
	Expression string
	Params     []Param
}

// Empty reports whether there is nothing to execute.
func (s Statement) Empty() bool { return s.Expression == "" }

// Args returns the parameters as database/sql named arguments.
func (s Statement) Args() []any {
	if len(s.Params) == 0 {
		return nil
	}
	args := make([]any, len(s.Params))
	for i, p := range s.Params {
		args[i] = sql.Named(p.Name, p.Value.driverValue())
	}
	return args
}

// ParamName returns the name bound to the i'th placeholder.
func ParamName(i int) string { return "p" + strconv.Itoa(i) }

// Translate rewrites t's positional placeholders into named parameters.
// A blank expression yields an empty Statement. Every "?" counts as a
// placeholder, including one inside a string literal; literal text is never
// escaped.
func Translate(t Template) (Statement, error) {
	if strings.TrimSpace(t.Expression) == "" {
		return Statement{}, nil
	}

	pieces := strings.Split(t.Expression, "?")
	holes := len(pieces) - 1
	if holes != len(t.Params) {
		return Statement{}, fmt.Errorf("%w: %d placeholders, %d parameters", ErrPlaceholderMismatch, holes, len(t.Params))
	}
	if holes == 0 {
		return Statement{Expression: t.Expression}, nil
	}

	var b strings.Builder
	b.Grow(len(t.Expression) + holes*4)
	params := make([]Param, holes)
	for i, piece := range pieces {
		b.WriteString(piece)
		if i == holes {
			break
		}
		name := ParamName(i)
		b.WriteByte('@')
		b.WriteString(name)
		params[i] = Param{Name: name, Value: t.Params[i]}
	}

	return Statement{Expression: b.String(), Params: params}, nil
}

// translateAll translates every template, dropping empty ones.
func translateAll(templates []Template) ([]Statement, error) {
	out := make([]Statement, 0, len(templates))
	for i, t := range templates {
		st, err := Translate(t)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		if st.Empty() {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}
