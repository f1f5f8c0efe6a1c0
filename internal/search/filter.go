package search

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
)

// State is the user's current browse state.
type State struct {
	Query    string `json:"query"`
	Category string `json:"category"`
}

// Pipeline applies the category filter and then the text query.
//
// With StrictCategory unset, a query that produces any fuzzy hit returns
// those hits regardless of the active category; only the substring fallback
// honours the category. StrictCategory restricts both paths.
type Pipeline struct {
	StrictCategory bool
}

// DefaultPipeline restricts fuzzy hits to the selected category.
var DefaultPipeline = Pipeline{StrictCategory: true}

// FilterByCategory keeps the entries belonging to category. "all" and the
// empty string keep everything; created_by_you keeps what currentUserID
// created, across every real category.
func FilterByCategory(list []integration.Reconciled, category, currentUserID string) []integration.Reconciled {
	category = strings.TrimSpace(category)
	if category == "" || category == integration.CategoryAll {
		return list
	}
	out := make([]integration.Reconciled, 0, len(list))
	for _, item := range list {
		if matchesCategory(item, category, currentUserID) {
			out = append(out, item)
		}
	}
	return out
}

func matchesCategory(item integration.Reconciled, category, currentUserID string) bool {
	if category == integration.CategoryCreatedByYou {
		return currentUserID != "" && item.CreatedBy == currentUserID
	}
	if item.Category == "" {
		return category == integration.CategoryOther
	}
	return item.Category == category
}

// SubstringMatch is the plain case-insensitive match over name, description
// and id used when the fuzzy index finds nothing.
func SubstringMatch(list []integration.Reconciled, query string) []integration.Reconciled {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))
	if needle == "" {
		return list
	}
	out := make([]integration.Reconciled, 0)
	for _, item := range list {
		for _, haystack := range []string{item.Name, item.Description, item.ID} {
			if strings.Contains(fold.String(haystack), needle) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// Matcher produces ranked fuzzy hits for a query. *Index is the local
// implementation.
type Matcher interface {
	Search(query string) []Hit
}

// Apply runs the pipeline. The matcher must cover the same entries as list.
func (p Pipeline) Apply(list []integration.Reconciled, matcher Matcher, state State, currentUserID string) []integration.Reconciled {
	filtered := FilterByCategory(list, state.Category, currentUserID)
	query := strings.TrimSpace(state.Query)
	if query == "" {
		return filtered
	}

	hits := matcher.Search(query)
	if p.StrictCategory {
		hits = restrictHits(hits, state.Category, currentUserID)
	}
	if len(hits) == 0 {
		return SubstringMatch(filtered, query)
	}

	out := make([]integration.Reconciled, 0, len(hits))
	for _, hit := range hits {
		out = append(out, hit.Item)
	}
	return out
}

func restrictHits(hits []Hit, category, currentUserID string) []Hit {
	category = strings.TrimSpace(category)
	if category == "" || category == integration.CategoryAll {
		return hits
	}
	out := hits[:0:0]
	for _, hit := range hits {
		if matchesCategory(hit.Item, category, currentUserID) {
			out = append(out, hit)
		}
	}
	return out
}
