package parley_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/memory"
)

// ExampleNew_memory shows a machine loading a grammar from an in-memory
// loader and filling a slot over two turns.
func ExampleNew_memory() {
	loader := memory.NewLoader(map[string]string{
		"weather": `
name: weather
rules:
  - name: forecast
    regex: "what is the weather(?: in (?<city%>\\w+))?"
    messages:
      - groups: [city]
        texts: ["It is sunny in #city#."]
  - name: city
    browsable: false
    regex: "(?:in )?(?<city%>\\w+)"
    prompt: ["Which city?"]
    messages:
      - groups: [city]
        texts: ["It is sunny in #city#."]
`,
	})

	m, err := parley.New(parley.WithLoader(loader))
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	if err := m.LoadAll(ctx, nil); err != nil {
		log.Fatal(err)
	}

	for _, q := range []string{"What is the weather?", "in Lisbon"} {
		resp, err := m.Answer(ctx, q)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s (%s)\n", resp.Text, resp.Ending)
	}
	// Output:
	// Which city? (prompt)
	// It is sunny in Lisbon. (speak)
}
