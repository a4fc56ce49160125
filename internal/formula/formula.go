package formula

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ErrMalformedFormula is matched by every SyntaxError via errors.Is.
var ErrMalformedFormula = errors.New("malformed formula")

// SyntaxError describes why a formula could not be parsed.
type SyntaxError struct {
	Formula string // input as given
	Offset  int    // byte offset of the offending character
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("formula %q: offset %d: %s", e.Formula, e.Offset, e.Message)
}

// Is reports ErrMalformedFormula so callers need not know the concrete type.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrMalformedFormula
}

// Counts maps an element symbol to its atom count.
type Counts map[string]int

// Elements returns the element symbols in lexical order.
func (c Counts) Elements() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// merge adds every count in other, multiplied by m, into c. It reports false
// and leaves c partially updated when a product or sum exceeds math.MaxInt.
func (c Counts) merge(other Counts, m int) bool {
	for el, n := range other {
		if m != 0 && n > math.MaxInt/m {
			return false
		}
		sum, ok := addCount(c[el], n*m)
		if !ok {
			return false
		}
		c[el] = sum
	}
	return true
}

// addCount adds two non-negative counts, reporting false on overflow.
func addCount(a, b int) (int, bool) {
	if a > math.MaxInt-b {
		return 0, false
	}
	return a + b, true
}

// Parse converts a formula string into element counts.
//
// Grouped counts are multiplied by their group multiplier (default 1) and
// accumulated into the enclosing scope. Unbalanced brackets, stray digits,
// empty groups and any character outside [A-Za-z0-9()] are syntax errors.
func Parse(formula string) (Counts, error) {
	if formula == "" {
		return nil, &SyntaxError{Formula: formula, Message: "empty formula"}
	}

	stack := []Counts{{}}
	// opens records the offset of each unmatched '(' for error reporting.
	var opens []int

	i := 0
	for i < len(formula) {
		ch := formula[i]
		switch {
		case isUpper(ch):
			start := i
			i++
			for i < len(formula) && isLower(formula[i]) {
				i++
			}
			symbol := formula[start:i]

			count, next, err := readCount(formula, i)
			if err != nil {
				return nil, err
			}
			i = next
			scope := stack[len(stack)-1]
			sum, ok := addCount(scope[symbol], count)
			if !ok {
				return nil, &SyntaxError{Formula: formula, Offset: start, Message: "count out of range"}
			}
			scope[symbol] = sum

		case ch == '(':
			stack = append(stack, Counts{})
			opens = append(opens, i)
			i++

		case ch == ')':
			if len(stack) == 1 {
				return nil, &SyntaxError{Formula: formula, Offset: i, Message: "unmatched ')'"}
			}
			closeAt := i
			multiplier, next, err := readCount(formula, i+1)
			if err != nil {
				return nil, err
			}
			i = next

			top := stack[len(stack)-1]
			if len(top) == 0 {
				return nil, &SyntaxError{Formula: formula, Offset: closeAt, Message: "empty group"}
			}
			stack = stack[:len(stack)-1]
			opens = opens[:len(opens)-1]
			if !stack[len(stack)-1].merge(top, multiplier) {
				return nil, &SyntaxError{Formula: formula, Offset: closeAt, Message: "count out of range"}
			}

		case isDigit(ch):
			return nil, &SyntaxError{Formula: formula, Offset: i, Message: "count without a preceding element or group"}

		default:
			return nil, &SyntaxError{Formula: formula, Offset: i, Message: fmt.Sprintf("unexpected character %q", ch)}
		}
	}

	if len(stack) != 1 {
		return nil, &SyntaxError{Formula: formula, Offset: opens[len(opens)-1], Message: "unclosed '('"}
	}
	return stack[0], nil
}

// MustParse is Parse for formulas known to be valid, such as literals in tests
// and the bundled ingredient table. It panics on a syntax error.
func MustParse(formula string) Counts {
	c, err := Parse(formula)
	if err != nil {
		panic(err)
	}
	return c
}

// readCount reads an optional run of digits starting at i. An absent count is 1.
func readCount(formula string, i int) (count, next int, err error) {
	start := i
	for i < len(formula) && isDigit(formula[i]) {
		i++
	}
	if start == i {
		return 1, i, nil
	}
	n, convErr := strconv.Atoi(formula[start:i])
	if convErr != nil {
		return 0, i, &SyntaxError{Formula: formula, Offset: start, Message: "count out of range"}
	}
	return n, i, nil
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
