package domain

import "strings"

// Ending tells the host whether more input is expected for the current turn.
type Ending string

const (
	// EndingPrompt means the engine is waiting for more slot values.
	EndingPrompt Ending = "prompt"
	// EndingSpeak means the turn is fully resolved.
	EndingSpeak Ending = "speak"
)

// Response is the outgoing payload of one turn. It is a value: every
// transition returns a new one.
type Response struct {
	Text   string `json:"text"`
	Ending Ending `json:"ending"`
	// Preamble is the fragment carried into a chained rule.
	Preamble string `json:"preamble,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Rule     string `json:"rule,omitempty"`
	// Quit is set by the quit sequence so hosts can end the session.
	Quit bool `json:"quit,omitempty"`
}

// Prompt builds a prompt-ending response.
func Prompt(text string) Response {
	return Response{Text: text, Ending: EndingPrompt}
}

// Speak builds a speak-ending response.
func Speak(text string) Response {
	return Response{Text: text, Ending: EndingSpeak}
}

// Expecting reports whether the host should collect another input for this turn.
func (r Response) Expecting() bool { return r.Ending == EndingPrompt }

// WithPreamble returns a copy carrying the given fragment.
func (r Response) WithPreamble(p string) Response {
	r.Preamble = p
	return r
}

// From returns a copy attributed to a domain and rule.
func (r Response) From(domain, rule string) Response {
	r.Domain = domain
	r.Rule = rule
	return r
}

// JoinText joins non-empty fragments with single spaces.
func JoinText(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
