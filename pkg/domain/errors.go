package domain

import (
	"errors"
	"fmt"
)

// ErrGrammarNotFound is returned when a grammar source is missing or unreadable.
var ErrGrammarNotFound = errors.New("grammar not found")

// ErrMalformedGrammar is returned when a grammar violates a structural rule.
var ErrMalformedGrammar = errors.New("malformed grammar")

// ErrRuleNotFound is returned when a rule is requested by a name the domain does not declare.
var ErrRuleNotFound = errors.New("rule not found")

// ErrEmptyMessageSet is returned when no message variant resolves for a composite key.
var ErrEmptyMessageSet = errors.New("empty message set")

// ErrResultUnavailable is returned when a slot value is read before it was captured.
var ErrResultUnavailable = errors.New("result unavailable")

// ErrNoActiveRule is returned when an engine is asked to answer before any rule was selected.
var ErrNoActiveRule = errors.New("no active rule")

// ErrUnknownDomain is returned when a domain name is not registered.
var ErrUnknownDomain = errors.New("unknown domain")

// ErrCommonDomain is returned when the common domain is unregistered or replaced.
var ErrCommonDomain = errors.New("common domain cannot be removed")

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// GrammarError describes a load-time violation. It unwraps to ErrMalformedGrammar.
type GrammarError struct {
	Grammar string
	Rule    string
	Reason  string
	Err     error
}

func (e *GrammarError) Error() string {
	msg := "malformed grammar"
	if e.Grammar != "" {
		msg += fmt.Sprintf(" %q", e.Grammar)
	}
	if e.Rule != "" {
		msg += fmt.Sprintf(", rule %q", e.Rule)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GrammarError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedGrammar, e.Err}
	}
	return []error{ErrMalformedGrammar}
}

// RuleNotFoundError names the missing rule. It unwraps to ErrRuleNotFound.
type RuleNotFoundError struct {
	Domain string
	Rule   string
}

func (e *RuleNotFoundError) Error() string {
	if e.Domain == "" {
		return fmt.Sprintf("rule not found: %q", e.Rule)
	}
	return fmt.Sprintf("rule not found: %q in domain %q", e.Rule, e.Domain)
}

func (e *RuleNotFoundError) Unwrap() error { return ErrRuleNotFound }
