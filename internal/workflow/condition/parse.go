package condition

import (
	"fmt"
	"regexp"
	"strings"
)

type Operator string

const (
	OpEquals       Operator = "equals"
	OpEq           Operator = "=="
	OpNotEq        Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// Comparison is a single parsed "<field> <op> <value>" condition.
type Comparison struct {
	Field    string
	Operator Operator
	Value    string
}

func (c Comparison) String() string {
	if c.Operator == OpEquals {
		return fmt.Sprintf("%s equals %s", c.Field, c.Value)
	}
	return fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value)
}

// Two-character operators come first in the alternation so ">=" is never read as ">".
var (
	equalsRe   = regexp.MustCompile(`(?i)^(\w+)\s+equals\s+(.+)$`)
	operatorRe = regexp.MustCompile(`^(\w+)\s*(>=|<=|>|<|==|!=)\s*(.+)$`)
)

type ParseError struct {
	Cond string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unable to parse condition %q", e.Cond)
}

// Parse reads cond using the "equals" keyword form first and the symbolic
// operator form second.
func Parse(cond string) (Comparison, error) {
	if m := equalsRe.FindStringSubmatch(cond); m != nil {
		return Comparison{Field: m[1], Operator: OpEquals, Value: strings.TrimSpace(m[2])}, nil
	}
	if m := operatorRe.FindStringSubmatch(cond); m != nil {
		return Comparison{Field: m[1], Operator: Operator(m[2]), Value: strings.TrimSpace(m[3])}, nil
	}
	return Comparison{}, &ParseError{Cond: cond}
}
