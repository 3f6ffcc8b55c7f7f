package domain

import "context"

// Result is one captured slot value.
type Result struct {
	Rule  string `json:"rule"`
	Group Group  `json:"group"`
	Value string `json:"value"`
}

// Turn is the view of a resolved turn handed to a Resolver.
type Turn interface {
	// Domain names the engine resolving the turn.
	Domain() string
	// Rule is the rule that was current when the pending queue emptied.
	Rule() *Rule
	// Query is the last input fed to the engine.
	Query() string
	// Result returns the value captured for a group name by any rule of the
	// domain, or ErrResultUnavailable.
	Result(group string) (string, error)
	// Results lists every captured value in capture order.
	Results() []Result
	// Message selects the variant matching the current rule's results.
	Message() (Variant, error)
	// Substitute replaces #group# placeholders with captured values.
	Substitute(text string) string
	// Default performs the built-in resolution: prequel chaining or the
	// final message with placeholders filled in.
	Default(ctx context.Context) (Response, bool, error)
	// RunRule runs another rule of the same domain.
	RunRule(ctx context.Context, name string) (Response, error)
}

// Resolver post-processes a turn once every mandatory group is filled.
// The returned bool reports whether the turn is fully processed; false means
// another rule run is pending and the conversation continues.
type Resolver interface {
	Resolve(ctx context.Context, turn Turn) (Response, bool, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, turn Turn) (Response, bool, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, turn Turn) (Response, bool, error) {
	return f(ctx, turn)
}

// DefaultResolver applies the built-in resolution only.
var DefaultResolver Resolver = ResolverFunc(func(ctx context.Context, turn Turn) (Response, bool, error) {
	return turn.Default(ctx)
})
