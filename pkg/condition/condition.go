// Package condition evaluates the restricted boolean expressions recipe
// conditions may use. The environment is fixed and closed: the predicates
// file_exists, all_files_exist and file_is_newer, the combinators and, or and
// not, and the literals true, false and null. Nothing else resolves: no
// variables, no attribute access, no arbitrary code. Expression text can
// originate from template-interpolated, recipe-author-controlled strings, so
// the evaluator is a hand-written parser over this grammar rather than any
// general-purpose evaluation engine.
package condition

import (
	"fmt"
	"os"
)

// Evaluate parses and evaluates an expression to its boolean outcome. The
// null literal coerces to false at the top level; any other non-boolean
// result is an error.
func Evaluate(expr string) (bool, error) {
	n, err := parse(expr)
	if err != nil {
		return false, err
	}
	v, err := eval(n)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expression evaluated to %s, expected a boolean", describe(b))
	}
}

func eval(n node) (any, error) {
	switch v := n.(type) {
	case literalNode:
		return v.value, nil
	case stringNode:
		return v.value, nil
	case callNode:
		return evalCall(v)
	default:
		return nil, fmt.Errorf("unsupported expression node %T", n)
	}
}

func evalCall(c callNode) (any, error) {
	switch c.name {
	case "and":
		if len(c.args) == 0 {
			return nil, fmt.Errorf("and() requires at least one argument")
		}
		for _, arg := range c.args {
			b, err := evalBool(c.name, arg)
			if err != nil {
				return nil, err
			}
			if !b {
				return false, nil
			}
		}
		return true, nil

	case "or":
		if len(c.args) == 0 {
			return nil, fmt.Errorf("or() requires at least one argument")
		}
		for _, arg := range c.args {
			b, err := evalBool(c.name, arg)
			if err != nil {
				return nil, err
			}
			if b {
				return true, nil
			}
		}
		return false, nil

	case "not":
		if len(c.args) != 1 {
			return nil, fmt.Errorf("not() requires exactly one argument, got %d", len(c.args))
		}
		b, err := evalBool(c.name, c.args[0])
		if err != nil {
			return nil, err
		}
		return !b, nil

	case "file_exists":
		if len(c.args) != 1 {
			return nil, fmt.Errorf("file_exists() requires exactly one argument, got %d", len(c.args))
		}
		path, err := evalString(c.name, c.args[0])
		if err != nil {
			return nil, err
		}
		_, statErr := os.Stat(path)
		return statErr == nil, nil

	case "all_files_exist":
		if len(c.args) == 0 {
			return nil, fmt.Errorf("all_files_exist() requires at least one argument")
		}
		for _, arg := range c.args {
			path, err := evalString(c.name, arg)
			if err != nil {
				return nil, err
			}
			if _, statErr := os.Stat(path); statErr != nil {
				return false, nil
			}
		}
		return true, nil

	case "file_is_newer":
		if len(c.args) != 2 {
			return nil, fmt.Errorf("file_is_newer() requires exactly two arguments, got %d", len(c.args))
		}
		a, err := evalString(c.name, c.args[0])
		if err != nil {
			return nil, err
		}
		b, err := evalString(c.name, c.args[1])
		if err != nil {
			return nil, err
		}
		// Any filesystem error means "not newer".
		infoA, errA := os.Stat(a)
		infoB, errB := os.Stat(b)
		if errA != nil || errB != nil {
			return false, nil
		}
		return infoA.ModTime().After(infoB.ModTime()), nil

	default:
		return nil, fmt.Errorf("unknown function %q at position %d", c.name, c.pos)
	}
}

func evalBool(fn string, n node) (bool, error) {
	v, err := eval(n)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s() requires boolean arguments, got %s", fn, describe(v))
	}
	return b, nil
}

func evalString(fn string, n node) (string, error) {
	v, err := eval(n)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s() requires string arguments, got %s", fn, describe(v))
	}
	return s, nil
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
