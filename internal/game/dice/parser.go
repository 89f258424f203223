package dice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expression is a parsed dice expression ready to be rolled.
//
// Invariant: Count >= 1 and Sides >= 2, or Count == 0 for a flat modifier.
type Expression struct {
	Raw         string
	Count       int
	Sides       int
	Modifier    int
	KeepHighest int
}

var exprPattern = regexp.MustCompile(`^(\d*)d(\d+)(?:kh(\d+))?([+-]\d+)?$`)

// Parse parses "d20", "1d20", "2d6+3", "4d8-2", "4d6kh3", or a bare integer
// such as "5" (a flat amount with no dice).
//
// Postcondition: returns a valid Expression or a descriptive error.
func Parse(expr string) (Expression, error) {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(expr), " ", ""))
	if s == "" {
		return Expression{}, fmt.Errorf("dice: empty expression")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return Expression{Raw: expr, Modifier: n}, nil
	}
	m := exprPattern.FindStringSubmatch(s)
	if m == nil {
		return Expression{}, fmt.Errorf("dice: cannot parse %q", expr)
	}
	e := Expression{Raw: expr, Count: 1}
	if m[1] != "" {
		e.Count, _ = strconv.Atoi(m[1])
		if e.Count < 1 {
			return Expression{}, fmt.Errorf("dice: die count in %q must be >= 1", expr)
		}
	}
	e.Sides, _ = strconv.Atoi(m[2])
	if e.Sides < 2 {
		return Expression{}, fmt.Errorf("dice: die sides in %q must be >= 2", expr)
	}
	if m[3] != "" {
		e.KeepHighest, _ = strconv.Atoi(m[3])
		if e.KeepHighest < 1 || e.KeepHighest >= e.Count {
			return Expression{}, fmt.Errorf("dice: kh value in %q must be > 0 and < count %d", expr, e.Count)
		}
	}
	if m[4] != "" {
		e.Modifier, _ = strconv.Atoi(m[4])
	}
	return e, nil
}

// MustParse parses expr and panics on error. Useful for package-level values.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// Mean returns the expected total of the expression. KeepHighest expressions
// are approximated as if every die were kept at its mean.
func (e Expression) Mean() float64 {
	kept := e.Count
	if e.KeepHighest > 0 {
		kept = e.KeepHighest
	}
	return float64(kept)*float64(e.Sides+1)/2 + float64(e.Modifier)
}

// Max returns the highest possible total.
func (e Expression) Max() int {
	kept := e.Count
	if e.KeepHighest > 0 {
		kept = e.KeepHighest
	}
	return kept*e.Sides + e.Modifier
}
