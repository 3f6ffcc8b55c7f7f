package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// turn is the domain.Turn handed to resolvers.
type turn struct {
	e *Engine
}

var _ domain.Turn = (*turn)(nil)

func (t *turn) Domain() string     { return t.e.Name() }
func (t *turn) Rule() *domain.Rule { return t.e.current }
func (t *turn) Query() string      { return t.e.query }

func (t *turn) Result(group string) (string, error) {
	if v, ok := t.e.result(group); ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrResultUnavailable, group)
}

func (t *turn) Results() []domain.Result { return t.e.Results() }

func (t *turn) Message() (domain.Variant, error) {
	gk, tokens := t.e.compositeKey()
	return t.e.current.Message(gk, tokens, t.e.strict, t.e.rnd)
}

func (t *turn) Substitute(text string) string {
	for _, r := range t.e.Results() {
		placeholder := "#" + r.Group.Name + "#"
		if !strings.Contains(text, placeholder) {
			continue
		}
		v, _ := t.e.result(r.Group.Name)
		text = strings.ReplaceAll(text, placeholder, v)
	}
	return text
}

func (t *turn) Default(ctx context.Context) (domain.Response, bool, error) {
	v, err := t.Message()
	if err != nil {
		return domain.Response{}, false, err
	}
	if v.IsPrequel() {
		resp, err := t.e.runRuleNamed(ctx, v.Next, t.e.fill(v.Preamble, v.Placeholders), 1)
		return resp, false, err
	}
	rule := t.e.current
	text := t.e.fill(v.Text, v.Placeholders)
	return domain.Speak(text).From(t.e.Name(), rule.Name()), true, nil
}

func (t *turn) RunRule(ctx context.Context, name string) (domain.Response, error) {
	return t.e.RunRule(ctx, name)
}
