package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/mohae/deepcopy"
)

const maskedValue = "***"

type piiMiddleware struct {
	next     ports.HistoryStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the values of settings and
// entity attributes whose keys match any of the patterns. Masking applies to
// the live document and to every history snapshot.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.HistoryStore) ports.HistoryStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, documentID string, record *domain.DocumentRecord) error {
	// The caller keeps using its record; mask a copy.
	cloned := deepcopy.Copy(record).(*domain.DocumentRecord)

	if cloned.Live != nil {
		m.maskDocument(cloned.Live)
	}
	for _, node := range cloned.History.Nodes {
		m.maskDocument(&node.Payload)
	}

	return m.next.Save(ctx, documentID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	return m.next.Load(ctx, documentID)
}

func (m *piiMiddleware) Delete(ctx context.Context, documentID string) error {
	return m.next.Delete(ctx, documentID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) maskDocument(doc *domain.Document) {
	m.maskMap(doc.Settings)
	for _, group := range [][]domain.Entity{
		doc.Characters, doc.World, doc.Knowledge, doc.Plot, doc.Timeline, doc.Charts, doc.Outline,
	} {
		for i := range group {
			m.maskMap(group[i].Attributes)
		}
	}
}

func (m *piiMiddleware) maskMap(values map[string]string) {
	for k := range values {
		for _, p := range m.patterns {
			if p.MatchString(k) {
				values[k] = maskedValue
				break
			}
		}
	}
}
