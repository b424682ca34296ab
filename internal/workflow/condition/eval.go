// Package condition implements the branch condition grammar: exactly one
// comparison per condition, either "<field> equals <value>" or
// "<field> <op> <value>" with op one of >=, <=, >, <, ==, !=.
package condition

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("field %q not found in context", e.Field)
}

// Eval parses cond and evaluates it against vars. A condition that cannot be
// parsed, or whose field is absent from vars, is false; the returned error
// says why and is informational only.
func Eval(cond string, vars map[string]any) (bool, error) {
	c, err := Parse(cond)
	if err != nil {
		return false, err
	}

	actual, ok := vars[c.Field]
	if !ok {
		return false, &MissingFieldError{Field: c.Field}
	}

	return Compare(c, actual)
}

type operands struct {
	Lhs    string  `expr:"lhs"`
	Rhs    string  `expr:"rhs"`
	LhsNum float64 `expr:"lnum"`
	RhsNum float64 `expr:"rnum"`
}

var programs = compilePrograms(map[Operator]string{
	OpEquals:       `lower(lhs) == lower(rhs)`,
	OpEq:           `lower(lhs) == lower(rhs)`,
	OpNotEq:        `lower(lhs) != lower(rhs)`,
	OpGreater:      `lnum > rnum`,
	OpLess:         `lnum < rnum`,
	OpGreaterEqual: `lnum >= rnum`,
	OpLessEqual:    `lnum <= rnum`,
})

func compilePrograms(sources map[Operator]string) map[Operator]*vm.Program {
	out := make(map[Operator]*vm.Program, len(sources))
	for op, src := range sources {
		p, err := expr.Compile(src, expr.Env(operands{}), expr.AsBool())
		if err != nil {
			panic(fmt.Sprintf("condition: compile %q: %v", src, err))
		}
		out[op] = p
	}
	return out
}

func numeric(op Operator) bool {
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return true
	}
	return false
}

// Compare applies c's operator to actual (the context value) and c.Value.
func Compare(c Comparison, actual any) (bool, error) {
	program, ok := programs[c.Operator]
	if !ok {
		return false, fmt.Errorf("unknown operator %q", c.Operator)
	}

	env := operands{Lhs: StringOf(actual), Rhs: c.Value}
	if numeric(c.Operator) {
		env.LhsNum = NumberOf(actual)
		env.RhsNum = NumberOf(c.Value)
		if math.IsNaN(env.LhsNum) || math.IsNaN(env.RhsNum) {
			return false, nil
		}
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate %s: %w", c, err)
	}
	b, _ := out.(bool)
	return b, nil
}

// StringOf renders a context scalar the way it is compared for equality.
func StringOf(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", x)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		// Exponents are written without zero padding: 1e-7, not 1e-07.
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NumberOf coerces a scalar to a float64. Blank strings are 0, booleans are
// 1 or 0 and anything that is not a number is NaN.
func NumberOf(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case json.Number:
		return parseNumber(string(x))
	case string:
		return parseNumber(x)
	default:
		return math.NaN()
	}
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if strings.ContainsAny(s, "_") || strings.Contains(strings.ToLower(s), "inf") || strings.Contains(strings.ToLower(s), "nan") {
		return math.NaN()
	}
	if len(s) > 2 && s[0] == '0' && strings.ContainsRune("xXoObB", rune(s[1])) {
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return f
}
