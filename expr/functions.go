package expr

import (
	"fmt"
	"math"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// Variadic marks a function without an upper argument bound.
const Variadic = -1

// Function is an allow-listed callable.
type Function struct {
	Name    string
	MinArgs int
	MaxArgs int
	// Aggregate functions also accept a single list literal.
	Aggregate bool
	call      func(args []Number) (Number, error)
}

func (f *Function) accepts(n int) bool {
	return n >= f.MinArgs && (f.MaxArgs == Variadic || n <= f.MaxArgs)
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

var functions = map[string]*Function{}

func init() {
	for _, f := range []*Function{
		{Name: "sqrt", MinArgs: 1, MaxArgs: 1, call: sqrt},
		{Name: "sin", MinArgs: 1, MaxArgs: 1, call: float1(math.Sin)},
		{Name: "cos", MinArgs: 1, MaxArgs: 1, call: float1(math.Cos)},
		{Name: "tan", MinArgs: 1, MaxArgs: 1, call: float1(math.Tan)},
		{Name: "log", MinArgs: 1, MaxArgs: 2, call: logn},
		{Name: "log10", MinArgs: 1, MaxArgs: 1, call: log10},
		{Name: "exp", MinArgs: 1, MaxArgs: 1, call: float1(math.Exp)},
		{Name: "abs", MinArgs: 1, MaxArgs: 1, call: abs},
		{Name: "round", MinArgs: 1, MaxArgs: 2, call: round},
		{Name: "ceil", MinArgs: 1, MaxArgs: 1, call: intRounder(math.Ceil)},
		{Name: "floor", MinArgs: 1, MaxArgs: 1, call: intRounder(math.Floor)},
		{Name: "pow", MinArgs: 2, MaxArgs: 2, call: func(a []Number) (Number, error) { return power(a[0], a[1]) }},
		{Name: "min", MinArgs: 1, MaxArgs: Variadic, Aggregate: true, call: pick(func(a, b float64) bool { return a < b })},
		{Name: "max", MinArgs: 1, MaxArgs: Variadic, Aggregate: true, call: pick(func(a, b float64) bool { return a > b })},
		{Name: "sum", MinArgs: 0, MaxArgs: Variadic, Aggregate: true, call: sum},
	} {
		functions[f.Name] = f
	}
}

// Functions returns the names of the allow-listed functions, sorted.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Constants returns the names of the predefined constants, sorted.
func Constants() []string {
	names := make([]string, 0, len(constants))
	for name := range constants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mathErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf("math error: %s", fmt.Sprintf(format, args...)), protocol.ErrHandler)
}

func float1(fn func(float64) float64) func([]Number) (Number, error) {
	return func(a []Number) (Number, error) {
		return Float(fn(a[0].Value)), nil
	}
}

func sqrt(a []Number) (Number, error) {
	if a[0].Value < 0 {
		return Number{}, mathErrorf("square root of negative number")
	}
	return Float(math.Sqrt(a[0].Value)), nil
}

func logn(a []Number) (Number, error) {
	x := a[0].Value
	if x <= 0 {
		return Number{}, mathErrorf("logarithm of non-positive number")
	}
	if len(a) == 1 {
		return Float(math.Log(x)), nil
	}
	base := a[1].Value
	if base <= 0 {
		return Number{}, mathErrorf("logarithm base must be positive")
	}
	if base == 1 {
		return Number{}, errors.Wrap(protocol.ErrDivisionByZero, "logarithm base 1")
	}
	return Float(math.Log(x) / math.Log(base)), nil
}

func log10(a []Number) (Number, error) {
	if a[0].Value <= 0 {
		return Number{}, mathErrorf("logarithm of non-positive number")
	}
	return Float(math.Log10(a[0].Value)), nil
}

func abs(a []Number) (Number, error) {
	return Number{Value: math.Abs(a[0].Value), Integer: a[0].Integer}, nil
}

func intRounder(fn func(float64) float64) func([]Number) (Number, error) {
	return func(a []Number) (Number, error) {
		return Int(fn(a[0].Value)), nil
	}
}

// round rounds half to even. With a digits argument the result keeps the
// operand's integer flag.
func round(a []Number) (Number, error) {
	x := a[0]
	if len(a) == 1 {
		return Int(math.RoundToEven(x.Value)), nil
	}
	digits := a[1]
	if !digits.Integer {
		return Number{}, mathErrorf("round digits must be an integer")
	}
	if x.Integer && digits.Value >= 0 {
		return x, nil
	}
	var v float64
	if digits.Value < 0 {
		p := math.Pow(10, -digits.Value)
		v = math.RoundToEven(x.Value/p) * p
	} else {
		p := math.Pow(10, digits.Value)
		v = math.RoundToEven(x.Value*p) / p
	}
	if x.Integer {
		return Int(v), nil
	}
	return Float(v), nil
}

func pick(better func(a, b float64) bool) func([]Number) (Number, error) {
	return func(a []Number) (Number, error) {
		best := a[0]
		for _, n := range a[1:] {
			if better(n.Value, best.Value) {
				best = n
			}
		}
		return best, nil
	}
}

func sum(a []Number) (Number, error) {
	total := Int(0)
	for _, n := range a {
		total = combine(total.Value+n.Value, total, n)
	}
	return total, nil
}
