package search

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
)

// CatalogSearcher is a remote full-text index over the platform catalog.
// *Meili implements it.
type CatalogSearcher interface {
	Healthy() bool
	SearchIDs(query string, limit int) ([]string, error)
	IndexCatalog(catalog []integration.Descriptor) error
}

// Service tries the remote catalog index first and falls back to the local
// fuzzy index. Custom integrations are always matched locally.
type Service struct {
	remote   CatalogSearcher
	pipeline Pipeline
	log      logrus.FieldLogger
}

// NewService creates a search service. remote may be nil if Meilisearch is
// not configured.
func NewService(remote CatalogSearcher, pipeline Pipeline, log logrus.FieldLogger) *Service {
	return &Service{remote: remote, pipeline: pipeline, log: log.WithField("component", "search")}
}

// Visible returns the entries of list matching state.
func (s *Service) Visible(list []integration.Reconciled, state State, currentUserID string) []integration.Reconciled {
	local := NewIndex(list)
	if s.remote == nil || !s.remote.Healthy() || strings.TrimSpace(state.Query) == "" {
		return s.pipeline.Apply(list, local, state, currentUserID)
	}

	ids, err := s.remote.SearchIDs(state.Query, len(list))
	if err != nil {
		s.log.WithError(err).Warn("remote search failed, using local index")
		return s.pipeline.Apply(list, local, state, currentUserID)
	}
	return s.pipeline.Apply(list, remoteMatcher{ids: ids, list: list, local: local}, state, currentUserID)
}

// IndexCatalog pushes the platform catalog to the remote index (fire-and-forget).
func (s *Service) IndexCatalog(catalog []integration.Descriptor) {
	if s.remote == nil || !s.remote.Healthy() {
		return
	}
	go func() {
		if err := s.remote.IndexCatalog(catalog); err != nil {
			s.log.WithError(err).Warn("index catalog")
		}
	}()
}

// remoteMatcher ranks platform entries in the order the remote index
// returned them and appends local hits for custom entries.
type remoteMatcher struct {
	ids   []string
	list  []integration.Reconciled
	local *Index
}

func (m remoteMatcher) Search(query string) []Hit {
	byID := make(map[string]integration.Reconciled, len(m.list))
	for _, item := range m.list {
		byID[item.ID] = item
	}

	hits := make([]Hit, 0, len(m.ids))
	seen := make(map[string]struct{}, len(m.ids))
	for rank, id := range m.ids {
		item, ok := byID[id]
		if !ok || item.Source == integration.SourceCustom {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		hits = append(hits, Hit{Item: item, Score: float64(rank+1) / float64(len(m.ids)+1)})
	}
	for _, hit := range m.local.Search(query) {
		if hit.Item.Source != integration.SourceCustom {
			continue
		}
		hits = append(hits, hit)
	}
	return hits
}
