// Package graph renders the rule flow of grammars as Mermaid flowcharts.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// Overlay contains conversation state to highlight on the chart.
type Overlay struct {
	// Active is the domain holding the conversation.
	Active string
	// Current maps each domain to the rule it is waiting on.
	Current map[string]string
}

// FromSnapshot builds the overlay of a stored conversation.
func FromSnapshot(snap *domain.Snapshot) *Overlay {
	o := &Overlay{Active: snap.Active, Current: make(map[string]string)}
	for _, e := range snap.Engines {
		if e.CurrentRule != "" {
			o.Current[e.Domain] = e.CurrentRule
		}
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart with one subgraph per grammar.
// Shapes:
// - Browsable rule: ([Stadium])
// - Hidden rule with a prompt: [/Parallelogram/]
// - Other hidden rule: [Rectangle]
// Mandatory groups draw a solid edge labelled with the group, chained
// messages a dotted one.
func GenerateMermaid(grammars []*domain.Grammar, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, g := range grammars {
		fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", nodeID(g.Name(), ""), g.Name())
		for _, r := range g.Rules() {
			opener, closer := "[", "]"
			switch {
			case r.Browsable():
				opener, closer = "([", "])"
			case r.HasPrompt():
				opener, closer = "[/", "/]"
			}
			fmt.Fprintf(&sb, "        %s%s\"%s\"%s\n", nodeID(g.Name(), r.Name()), opener, r.Name(), closer)
		}
		sb.WriteString("    end\n")

		for _, r := range g.Rules() {
			from := nodeID(g.Name(), r.Name())
			for _, grp := range r.Groups() {
				if grp.Mandatory() && g.HasRule(grp.Name) {
					fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", from, escape(grp.Name), nodeID(g.Name(), grp.Name))
				}
			}
			seen := make(map[string]bool)
			for _, v := range r.Variants() {
				if v.IsPrequel() && !seen[v.Next] {
					seen[v.Next] = true
					fmt.Fprintf(&sb, "    %s -.-> %s\n", from, chainTarget(g, v.Next))
				}
			}
		}
	}

	if overlay != nil && len(overlay.Current) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for contrast on both light and dark themes.
		sb.WriteString("    classDef waiting fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		for _, g := range grammars {
			rule, ok := overlay.Current[g.Name()]
			if !ok || !g.HasRule(rule) {
				continue
			}
			class := "waiting"
			if g.Name() == overlay.Active {
				class = "current"
			}
			fmt.Fprintf(&sb, "    class %s %s;\n", nodeID(g.Name(), rule), class)
		}
	}

	return sb.String()
}

// nodeID namespaces a rule by its grammar. An empty rule names the subgraph.
func nodeID(grammar, rule string) string {
	id := sanitizeMermaidID(grammar)
	if rule == "" {
		return "g_" + id
	}
	return id + "__" + sanitizeMermaidID(rule)
}

// chainTarget resolves a chained rule, falling back to the common grammar.
func chainTarget(g *domain.Grammar, rule string) string {
	if g.HasRule(rule) {
		return nodeID(g.Name(), rule)
	}
	return nodeID(domain.CommonDomain, rule)
}

func escape(s string) string { return strings.ReplaceAll(s, "\"", "'") }

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
