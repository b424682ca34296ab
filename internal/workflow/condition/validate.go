package condition

import "strings"

// Validate reports whether cond fits the grammar. Unparsable conditions are
// legal at run time (they evaluate to false), so callers treat this as a
// warning.
func Validate(cond string) error {
	if strings.TrimSpace(cond) == "" {
		return &ParseError{Cond: cond}
	}
	_, err := Parse(cond)
	return err
}
