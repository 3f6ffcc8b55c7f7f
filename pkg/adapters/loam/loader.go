package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/grammar"
	"github.com/mitchellh/mapstructure"
)

// Loader adapts a Loam repository to the GrammarLoader interface. A grammar
// is one document: frontmatter (or a whole .json/.yaml file) holds the rules,
// a markdown body becomes the description.
type Loader struct {
	Repo *loam.TypedRepository[GrammarMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[GrammarMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// GetGrammar retrieves a document and re-encodes it as a YAML grammar source.
func (l *Loader) GetGrammar(name string) ([]byte, error) {
	ctx := context.Background()

	doc, err := l.Repo.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrGrammarNotFound, name, err)
	}

	def, err := l.buildDefinition(doc.ID, doc.Data, doc.Content)
	if err != nil {
		return nil, err
	}

	data, err := grammar.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal grammar %s: %w", name, err)
	}
	return data, nil
}

func (l *Loader) buildDefinition(docID string, meta GrammarMetadata, content string) (*grammar.Definition, error) {
	def := &grammar.Definition{
		Name:        meta.Name,
		Description: meta.Description,
	}
	if def.Name == "" {
		rawID := meta.ID
		if rawID == "" {
			rawID = docID
		}
		def.Name = trimExtension(rawID)
	}
	if def.Description == "" {
		def.Description = strings.TrimSpace(content)
	}

	rules, err := decodeRules(meta.Rules)
	if err != nil {
		return nil, &domain.GrammarError{Grammar: def.Name, Reason: "cannot decode rules", Err: err}
	}
	def.Rules = rules
	return def, nil
}

func decodeRules(raw []any) ([]grammar.RuleDefinition, error) {
	var rules []grammar.RuleDefinition
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &rules,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return rules, nil
}

// ListGrammars lists all documents of the repository as grammar names.
func (l *Loader) ListGrammars() ([]string, error) {
	ctx := context.Background()
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	ids := make([]string, 0, len(docs))

	for _, doc := range docs {
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)

		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: grammar '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch implements ports.Watchable.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- trimExtension(evt.ID):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
