package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/stepc/internal/vartable"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Variable string
	Check    string // length, index, all, sum
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Variable, e.Check)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the table and returns
// the failure messages. Every assertion is evaluated; an empty result
// means all passed.
func EvaluateAssertions(table *vartable.Table, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		for _, err := range evaluateAssertion(table, a) {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(table *vartable.Table, a Assertion) []error {
	buf, err := table.Buffer(a.Variable)
	if err != nil {
		return []error{&AssertionError{
			Variable: a.Variable,
			Check:    "exists",
			Expected: "a bound buffer",
			Actual:   err.Error(),
		}}
	}
	xs := buf.Float64s()
	tol := a.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}

	var errs []error
	fail := func(check, expected, actual string) {
		errs = append(errs, &AssertionError{Variable: a.Variable, Check: check, Expected: expected, Actual: actual})
	}

	if a.Length != nil && len(xs) != *a.Length {
		fail("length", fmt.Sprint(*a.Length), fmt.Sprint(len(xs)))
	}
	if a.Index != nil {
		switch i := *a.Index; {
		case i >= len(xs):
			fail("index", fmt.Sprintf("[%d] ≈ %g", i, *a.Approx), fmt.Sprintf("index out of range (len %d)", len(xs)))
		case !within(xs[i], *a.Approx, tol):
			fail("index", fmt.Sprintf("[%d] ≈ %g ± %g", i, *a.Approx, tol), fmt.Sprintf("%g", xs[i]))
		}
	}
	if a.All != nil {
		for i, x := range xs {
			if !within(x, *a.All, tol) {
				fail("all", fmt.Sprintf("every element ≈ %g ± %g", *a.All, tol), fmt.Sprintf("[%d] = %g", i, x))
				break
			}
		}
	}
	if a.Sum != nil {
		var sum float64
		for _, x := range xs {
			sum += x
		}
		if !within(sum, *a.Sum, tol) {
			fail("sum", fmt.Sprintf("%g ± %g", *a.Sum, tol), fmt.Sprintf("%g", sum))
		}
	}
	return errs
}

func within(got, want, tol float64) bool {
	if math.IsNaN(got) || math.IsNaN(want) {
		return math.IsNaN(got) && math.IsNaN(want)
	}
	return math.Abs(got-want) <= tol
}
