package loam

// GrammarMetadata is the frontmatter of a grammar document. Rules are kept
// raw and decoded with mapstructure so unknown keys can be rejected.
type GrammarMetadata struct {
	ID          string `json:"id" mapstructure:"id"`
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description" mapstructure:"description"`
	Rules       []any  `json:"rules" mapstructure:"rules"`
}
