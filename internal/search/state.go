package search

import (
	"strings"
	"sync"

	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
	"github.com/theexperiencecompany/gaia-sub002/internal/reconcile"
)

// StateStore keeps browse state per scope (usually a user id).
type StateStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]State)}
}

func (s *StateStore) Get(scope string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[scope]
	if !ok {
		return State{Category: integration.CategoryAll}
	}
	return state
}

func (s *StateStore) Set(scope string, state State) {
	if strings.TrimSpace(state.Category) == "" {
		state.Category = integration.CategoryAll
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[scope] = state
}

func (s *StateStore) SetQuery(scope, query string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.getLocked(scope)
	state.Query = query
	s.states[scope] = state
	return state
}

func (s *StateStore) SetCategory(scope, category string) State {
	if strings.TrimSpace(category) == "" {
		category = integration.CategoryAll
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.getLocked(scope)
	state.Category = category
	s.states[scope] = state
	return state
}

func (s *StateStore) Reset(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, scope)
}

func (s *StateStore) getLocked(scope string) State {
	state, ok := s.states[scope]
	if !ok {
		return State{Category: integration.CategoryAll}
	}
	return state
}

// CategoryOption is one entry of the category picker.
type CategoryOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// SelectVisible returns the integrations to show for state.
func SelectVisible(list []integration.Reconciled, idx *Index, state State, currentUserID string, pipeline Pipeline) []integration.Reconciled {
	if idx == nil {
		idx = NewIndex(list)
	}
	return pipeline.Apply(list, idx, state, currentUserID)
}

// SelectCategoryOptions returns "all" followed by the categories present in
// list, each with its label and entry count.
func SelectCategoryOptions(list []integration.Reconciled, currentUserID string) []CategoryOption {
	categories := reconcile.Categories(list, currentUserID)
	options := make([]CategoryOption, 0, len(categories)+1)
	options = append(options, CategoryOption{
		Value: integration.CategoryAll,
		Label: integration.CategoryLabel(integration.CategoryAll),
		Count: len(list),
	})
	for _, category := range categories {
		count := len(FilterByCategory(list, category, currentUserID))
		options = append(options, CategoryOption{
			Value: category,
			Label: integration.CategoryLabel(category),
			Count: count,
		})
	}
	return options
}
