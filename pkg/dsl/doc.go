/*
Package dsl provides a fluent Go builder for grammar definitions.

It produces the same grammar.Definition that YAML or JSON sources decode to,
so a domain can be declared in code, compiled and registered without any file.

Example usage:

	b := dsl.New("weather").Describe("Tells the weather.")

	b.Rule("forecast").
		Regex(`weather(?: in (?<city%>[a-z]+))?`).
		On("city").Say("It is sunny in #city#.")

	b.Rule("city").
		Hidden().
		Regex(`(?<city%>[a-z]+)`).
		Prompt("Which city?").
		On("city").Say("It is sunny in #city#.")

	g, err := b.Compile()
	if err != nil {
		return err
	}
	return machine.Register(g, nil)
*/
package dsl
