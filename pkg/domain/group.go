package domain

import (
	"slices"
	"strings"
)

// Group identifies one named capture group inside a rule's pattern.
// Two groups are the same only when name and both flags match.
type Group struct {
	Name string `json:"name"`
	// Optional groups may stay empty without scheduling a follow-up rule.
	Optional bool `json:"optional,omitempty"`
	// Substitute groups contribute their own name, not their captured value,
	// to the message lookup tokens.
	Substitute bool `json:"substitute,omitempty"`
}

// NewGroup returns a group with the given flags.
func NewGroup(name string, optional, substitute bool) Group {
	return Group{Name: name, Optional: optional, Substitute: substitute}
}

// Mandatory reports whether the group must be filled before a turn resolves.
func (g Group) Mandatory() bool { return !g.Optional }

func (g Group) String() string {
	var b strings.Builder
	b.WriteString(g.Name)
	if !g.Optional {
		b.WriteByte('%')
	}
	if g.Substitute {
		b.WriteString("§")
	}
	return b.String()
}

// NoKeyGroup is the only member of NoKey.
var NoKeyGroup = Group{Name: "no_key", Optional: true}

// NoKey is the fallback bucket used when no group-based distinction applies.
var NoKey = NewGroupKey(NoKeyGroup)

// GroupKey is an ordered collection of groups used as part of a message
// lookup key.
//
// Groups keeps the order the key was built with. Equality and ID ignore that
// order, so keys built from the same groups in different resolution orders
// select the same messages.
type GroupKey struct {
	groups []Group
	id     string
}

// NewGroupKey builds a key from groups. Duplicates are dropped.
func NewGroupKey(groups ...Group) GroupKey {
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	return GroupKey{groups: out, id: groupKeyID(out)}
}

func groupKeyID(groups []Group) string {
	parts := make([]string, len(groups))
	for i, g := range groups {
		parts[i] = g.String()
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}

// Groups returns the groups in the order the key was built with.
func (k GroupKey) Groups() []Group {
	return slices.Clone(k.groups)
}

// Len returns the number of groups in the key.
func (k GroupKey) Len() int { return len(k.groups) }

// ID returns the order-insensitive identity of the key.
func (k GroupKey) ID() string { return k.id }

// Equal reports whether both keys hold the same set of groups.
func (k GroupKey) Equal(other GroupKey) bool { return k.id == other.id }

// IsNoKey reports whether k is the NoKey fallback.
func (k GroupKey) IsNoKey() bool { return k.Equal(NoKey) }

// Contains reports whether g is part of the key.
func (k GroupKey) Contains(g Group) bool { return slices.Contains(k.groups, g) }

func (k GroupKey) String() string {
	parts := make([]string, len(k.groups))
	for i, g := range k.groups {
		parts[i] = g.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}
