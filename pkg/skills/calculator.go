package skills

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/aretw0/parley/pkg/domain"
)

// Group and rule names the calculator depends on.
const (
	GroupFirst    = "first"
	GroupSecond   = "second"
	GroupOperator = "operator"
	RuleZeroDiv   = "zero_divide"
)

var (
	operatorWords = []struct {
		re *regexp.Regexp
		op string
	}{
		{regexp.MustCompile(`plus|addition|sum`), "+"},
		{regexp.MustCompile(`minus|subtraction`), "-"},
		{regexp.MustCompile(`divided|division`), "/"},
		{regexp.MustCompile(`times|multiplied|multiplication|product`), "*"},
	}
)

// ErrUnknownOperator is returned for an operator outside + - * /.
var ErrUnknownOperator = errors.New("unknown operator")

// Calculator resolves the arithmetic grammar by evaluating
// "first operator second" with an ECMAScript interpreter. Operands are
// parsed as decimals before they reach the interpreter.
type Calculator struct {
	logger *slog.Logger
}

var _ domain.Resolver = (*Calculator)(nil)

// CalculatorOption configures a Calculator.
type CalculatorOption func(*Calculator)

// WithCalculatorLogger sets the structured logger.
func WithCalculatorLogger(logger *slog.Logger) CalculatorOption {
	return func(c *Calculator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCalculator creates the arithmetic resolver.
func NewCalculator(opts ...CalculatorOption) *Calculator {
	c := &Calculator{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve implements domain.Resolver.
func (c *Calculator) Resolve(ctx context.Context, turn domain.Turn) (domain.Response, bool, error) {
	operator, err := turn.Result(GroupOperator)
	if err != nil {
		return domain.Response{}, false, err
	}
	first, err := turn.Result(GroupFirst)
	if err != nil {
		return domain.Response{}, false, err
	}
	second, err := turn.Result(GroupSecond)
	if err != nil {
		return domain.Response{}, false, err
	}

	op := NormalizeOperator(operator)
	a, err := parseOperand(first)
	if err != nil {
		return domain.Response{}, false, err
	}
	b, err := parseOperand(second)
	if err != nil {
		return domain.Response{}, false, err
	}

	if op == "/" && b == 0 {
		c.logger.Debug("division by zero", "first", a)
		resp, err := turn.RunRule(ctx, RuleZeroDiv)
		return resp, false, err
	}

	result, err := Compute(a, op, b)
	if err != nil {
		return domain.Response{}, false, err
	}
	c.logger.Debug("expression evaluated", "first", a, "operator", op, "second", b, "result", result)
	return domain.Speak(Spell(result)), true, nil
}

// parseOperand reads a captured number; a comma is a decimal separator.
func parseOperand(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(text), ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("operand %q: %w", text, err)
	}
	return v, nil
}

// NormalizeOperator maps operator words to the symbol they stand for.
func NormalizeOperator(word string) string {
	op := strings.TrimSpace(strings.ReplaceAll(strings.ToLower(word), "by", ""))
	for _, w := range operatorWords {
		op = w.re.ReplaceAllString(op, w.op)
	}
	return op
}

// Compute applies op to a and b.
func Compute(a float64, op string, b float64) (float64, error) {
	switch op {
	case "+", "-", "*", "/":
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
	vm := goja.New()
	if err := vm.Set("a", a); err != nil {
		return 0, err
	}
	if err := vm.Set("b", b); err != nil {
		return 0, err
	}
	v, err := vm.RunString("a" + op + "b")
	if err != nil {
		return 0, fmt.Errorf("evaluate %v %s %v: %w", a, op, b, err)
	}
	result := v.ToFloat()
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("evaluate %v %s %v: not a finite number", a, op, b)
	}
	return result, nil
}

// Spell rounds to two decimals and spells the decimal separator for
// speech output: 2.5 becomes "2 dot 5".
func Spell(v float64) string {
	v = math.Round(v*100) / 100
	return strings.ReplaceAll(strconv.FormatFloat(v, 'f', -1, 64), ".", " dot ")
}
