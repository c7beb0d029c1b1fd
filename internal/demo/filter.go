package demo

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
)

// predicate decides whether opportunity properties pass a filter.
type predicate func(props map[string]any) bool

func matchAll(map[string]any) bool { return true }

type cqlExpr struct {
	Op   string            `json:"op"`
	Args []json.RawMessage `json:"args"`
}

type cqlProperty struct {
	Property string `json:"property"`
}

func filterError(format string, args ...any) error {
	return &apperr.ConstraintsError{Detail: []model.FieldError{{
		Loc: []string{"body", "filter"},
		Msg: fmt.Sprintf(format, args...),
	}}}
}

// compileFilter turns a CQL2-JSON expression into a predicate. Only
// properties listed in allowed may be referenced; with no allowed list any
// property is accepted.
func compileFilter(raw json.RawMessage, allowed []string) (predicate, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return matchAll, nil
	}
	return compileExpr(raw, allowed)
}

func compileExpr(raw json.RawMessage, allowed []string) (predicate, error) {
	var e cqlExpr
	if err := json.Unmarshal(raw, &e); err != nil || e.Op == "" {
		return nil, filterError("expected an expression with an op")
	}

	switch e.Op {
	case "and", "or":
		if len(e.Args) == 0 {
			return nil, filterError("%s needs arguments", e.Op)
		}
		parts := make([]predicate, 0, len(e.Args))
		for _, a := range e.Args {
			p, err := compileExpr(a, allowed)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
		}
		if e.Op == "and" {
			return func(props map[string]any) bool {
				for _, p := range parts {
					if !p(props) {
						return false
					}
				}
				return true
			}, nil
		}
		return func(props map[string]any) bool {
			for _, p := range parts {
				if p(props) {
					return true
				}
			}
			return false
		}, nil

	case "not":
		if len(e.Args) != 1 {
			return nil, filterError("not takes one argument")
		}
		inner, err := compileExpr(e.Args[0], allowed)
		if err != nil {
			return nil, err
		}
		return func(props map[string]any) bool { return !inner(props) }, nil

	case "=", "<>", "<", "<=", ">", ">=":
		return compileComparison(e, allowed)
	}
	return nil, filterError("unsupported op %q", e.Op)
}

func compileComparison(e cqlExpr, allowed []string) (predicate, error) {
	if len(e.Args) != 2 {
		return nil, filterError("%s takes two arguments", e.Op)
	}
	var prop cqlProperty
	if err := json.Unmarshal(e.Args[0], &prop); err != nil || prop.Property == "" {
		return nil, filterError("%s: first argument must be a property", e.Op)
	}
	if len(allowed) > 0 && !slices.Contains(allowed, prop.Property) {
		return nil, filterError("property %q is not a constraint of this product", prop.Property)
	}
	var want float64
	if err := json.Unmarshal(e.Args[1], &want); err != nil {
		return nil, filterError("%s: second argument must be a number", e.Op)
	}

	op := e.Op
	name := prop.Property
	return func(props map[string]any) bool {
		got, ok := props[name].(float64)
		if !ok {
			return false
		}
		switch op {
		case "=":
			return got == want
		case "<>":
			return got != want
		case "<":
			return got < want
		case "<=":
			return got <= want
		case ">":
			return got > want
		}
		return got >= want
	}, nil
}
