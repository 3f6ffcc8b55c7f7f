package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/parley/internal/compiler"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/grammar"
	"github.com/stretchr/testify/require"
)

const commonSource = `
name: common
rules:
  - name: not_understood
    browsable: false
    regex: ".*"
    messages:
      - texts: ["Sorry, I did not understand."]
  - name: common_prompt
    browsable: false
    regex: "common_prompt"
    messages:
      - texts: ["What can I do for you?"]
  - name: leave_greeting
    browsable: false
    regex: "leave_greeting"
    messages:
      - texts: ["Goodbye."]
  - name: quit
    browsable: false
    regex: "bye|quit|exit"
    messages:
      - texts: ["Bye, see you soon."]
  - name: hello
    regex: "hi|hello"
    messages:
      - texts: ["Hello! @common_prompt"]
`

const arithmeticSource = `
name: arithmetic
rules:
  - name: ComputeExpression
    regex: "what is(?: (?<first%>\\d+))?(?: (?<operator%>plus|minus))?(?: (?<second%>\\d+))?"
    messages:
      - groups: [first, operator, second]
        texts: ["#first# #operator# #second#"]
  - name: first
    browsable: false
    regex: "(?<first%>\\d+)"
    prompt: ["First number?"]
    preamble: ["That is not a number."]
    messages:
      - texts: ["#first# #operator# #second#"]
  - name: operator
    browsable: false
    regex: "(?<operator%>plus|minus)"
    prompt: ["Which operation?"]
    preamble: ["I only know plus and minus."]
    messages:
      - texts: ["#first# #operator# #second#"]
  - name: second
    browsable: false
    regex: "(?<second%>\\d+)"
    prompt: ["Second number?"]
    messages:
      - texts: ["#first# #operator# #second#"]
`

const askNameSource = `
name: askname
rules:
  - name: introduce
    regex: "my name is (?<name%>\\w+)"
    messages:
      - groups: [name]
        texts: ["Nice to meet you, #name#."]
  - name: whoami
    regex: "what is my name"
    messages:
      - texts: ["I don't know your name yet. @name"]
  - name: name
    browsable: false
    regex: "(?:my name is |i am )?(?<name%>\\w+)"
    prompt: ["What is your name?"]
    messages:
      - groups: [name]
        variants:
          - tokens: [bob]
            texts: ["Bob! Long time no see."]
        texts: ["Nice to meet you, #name#."]
  - name: favourite
    regex: "what is your favou?rite (?:(?<colour§>colou?r)|(?<food§>food))"
    messages:
      - groups: [colour]
        variants:
          - tokens: [colour]
            texts: ["Blue."]
      - groups: [food]
        variants:
          - tokens: [food]
            texts: ["Pizza."]
`

// echoSource competes with arithmetic for "what is 1 plus 1".
const echoSource = `
name: echo
rules:
  - name: anything_math
    regex: "what is .+"
    messages:
      - texts: ["echo"]
`

func compile(t *testing.T, src string) *domain.Grammar {
	t.Helper()
	def, err := grammar.Parse([]byte(src))
	require.NoError(t, err)
	g, err := compiler.Load(def)
	require.NoError(t, err)
	return g
}

func newEngine(t *testing.T, src string, opts ...runtime.EngineOption) *runtime.Engine {
	t.Helper()
	e, err := runtime.NewEngine(compile(t, src), opts...)
	require.NoError(t, err)
	return e
}

func newOrchestrator(t *testing.T, domains ...string) *runtime.Orchestrator {
	t.Helper()
	o, err := runtime.NewOrchestrator(newEngine(t, commonSource))
	require.NoError(t, err)
	for _, src := range domains {
		require.NoError(t, o.Register(newEngine(t, src)))
	}
	return o
}

func say(t *testing.T, o *runtime.Orchestrator, query string) domain.Response {
	t.Helper()
	resp, err := o.Answer(context.Background(), query)
	require.NoError(t, err)
	return resp
}
