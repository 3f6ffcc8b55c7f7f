package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/pkg/domain"
)

// PrintRules writes the domains of m in claim order with their rules.
func PrintRules(w io.Writer, m *parley.Machine) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tRULE\tBROWSABLE\tGROUPS")
	for _, name := range m.Domains() {
		g, ok := m.Grammar(name)
		if !ok {
			continue
		}
		for _, r := range g.Rules() {
			groups := make([]string, 0, len(r.Groups()))
			for _, grp := range r.Groups() {
				groups = append(groups, grp.String())
			}
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", name, r.Name(), r.Browsable(), strings.Join(groups, " "))
		}
	}
	return tw.Flush()
}

// PrintMermaid writes the rule flow of m as a Mermaid chart. A non-nil snap
// highlights the rules the stored conversation is waiting on.
func PrintMermaid(w io.Writer, m *parley.Machine, snap *domain.Snapshot) error {
	var grammars []*domain.Grammar
	for _, name := range m.Domains() {
		if g, ok := m.Grammar(name); ok {
			grammars = append(grammars, g)
		}
	}
	var overlay *graph.Overlay
	if snap != nil {
		overlay = graph.FromSnapshot(snap)
	}
	_, err := io.WriteString(w, graph.GenerateMermaid(grammars, overlay))
	return err
}
