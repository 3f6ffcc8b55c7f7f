/*
Package parley is a rule-based answering machine for building speech and chat
front-ends that fill slots over several turns.

Each domain is described by a grammar: named rules whose regular expressions
capture values into groups. When a browsable rule matches a user input, its
domain takes the conversation and asks follow-up questions until every
mandatory group has a value, then answers with a message chosen by which
groups were filled and what they contain.

# Concept

The Machine owns an ordered list of domains. The common domain is always
first and provides the fallback, greeting and quit sequences. While a domain
is waiting for a value, every input goes to it; otherwise each domain in turn
is asked to claim the input.

Grammar sources use a small marker language inside YAML or JSON:

	(?<city%>\w+)          mandatory group, asked for by the rule named "city"
	(?<colour§>colou?r)    substitute group, keys messages by name instead of value
	Hello! @common_prompt  speak "Hello!" then run rule common_prompt
	Nice to meet you, #name#.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/parley"
		"github.com/aretw0/parley/pkg/skills"
	)

	func main() {
		m, err := parley.New()
		if err != nil {
			log.Fatal(err)
		}

		g, err := skills.Grammar(skills.Arithmetic)
		if err != nil {
			log.Fatal(err)
		}
		if err := m.Register(g, skills.NewCalculator()); err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		for _, q := range []string{"what is 5", "plus", "3"} {
			resp, err := m.Answer(ctx, q)
			if err != nil {
				log.Print(err)
			}
			fmt.Println(resp.Text)
		}
	}
*/
package parley
