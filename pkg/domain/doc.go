/*
Package domain contains the core models of the slot-filling engine.

It is kept free of I/O and persistence. Grammars arrive here already compiled:
marker syntax such as mandatory or substitute group flags, message chaining and
placeholders is handled by the grammar loader, and this package only sees the
structured result.

# Key Entities

  - Group: a named capture site of a rule's pattern.
  - GroupKey: the set of groups that produced values, used to select messages.
  - Rule: one grammar production with prompts, preambles and message variants.
  - Grammar: the ordered rules of one domain.
  - Response: the immutable outgoing payload of a turn.
  - Resolver: the post-processing capability a domain may customise.
*/
package domain
