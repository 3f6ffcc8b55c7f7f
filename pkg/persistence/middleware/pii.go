package middleware

import (
	"context"
	"regexp"
	"slices"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Mask replaces every masked value.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the captured values of
// groups whose names match the patterns. A masked session resumes with
// Mask in place of the value.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := compile(patternStrings)
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	// Clone so the machine keeps the real values in memory.
	cloned := *snap
	cloned.Engines = make([]domain.EngineState, len(snap.Engines))
	for i, e := range snap.Engines {
		e.Results = slices.Clone(e.Results)
		for j, r := range e.Results {
			if matchAny(m.patterns, r.Group.Name) {
				e.Results[j].Value = Mask
			}
		}
		cloned.Engines[i] = e
	}
	return m.next.Save(ctx, sessionID, &cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

type redactionMiddleware struct {
	next     ports.TranscriptStore
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware creates a middleware that replaces every match of
// the patterns in recorded queries and answers.
func NewRedactionMiddleware(patternStrings []string) TranscriptMiddleware {
	patterns := compile(patternStrings)
	return func(next ports.TranscriptStore) ports.TranscriptStore {
		return &redactionMiddleware{next: next, patterns: patterns}
	}
}

func (m *redactionMiddleware) Append(ctx context.Context, ex domain.Exchange) error {
	ex.Query = redact(ex.Query, m.patterns)
	ex.Text = redact(ex.Text, m.patterns)
	return m.next.Append(ctx, ex)
}

func (m *redactionMiddleware) Transcript(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	return m.next.Transcript(ctx, sessionID)
}

func (m *redactionMiddleware) Forget(ctx context.Context, sessionID string) error {
	return m.next.Forget(ctx, sessionID)
}

// Helpers

func compile(patternStrings []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return patterns
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func redact(s string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}
