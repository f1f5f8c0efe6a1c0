package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
)

func TestStateStoreDefaults(t *testing.T) {
	store := NewStateStore()
	assert.Equal(t, State{Category: integration.CategoryAll}, store.Get("u1"))
}

func TestStateStoreUpdates(t *testing.T) {
	store := NewStateStore()

	state := store.SetCategory("u1", "communication")
	assert.Equal(t, "communication", state.Category)

	state = store.SetQuery("u1", "slack")
	assert.Equal(t, State{Query: "slack", Category: "communication"}, state)
	assert.Equal(t, state, store.Get("u1"))
	assert.Equal(t, State{Category: integration.CategoryAll}, store.Get("u2"))

	state = store.SetCategory("u1", " ")
	assert.Equal(t, integration.CategoryAll, state.Category)

	store.Set("u1", State{Query: "x"})
	assert.Equal(t, State{Query: "x", Category: integration.CategoryAll}, store.Get("u1"))

	store.Reset("u1")
	assert.Equal(t, State{Category: integration.CategoryAll}, store.Get("u1"))
}

func TestSelectVisibleBuildsIndex(t *testing.T) {
	list := fixture()
	got := SelectVisible(list, nil, State{Query: "notion"}, "", DefaultPipeline)
	require.NotEmpty(t, got)
	assert.Equal(t, "notion", got[0].ID)
}

func TestSelectCategoryOptions(t *testing.T) {
	options := SelectCategoryOptions(fixture(), "u1")

	values := make([]string, 0, len(options))
	counts := map[string]int{}
	for _, option := range options {
		values = append(values, option.Value)
		counts[option.Value] = option.Count
	}
	assert.Equal(t, []string{
		integration.CategoryAll,
		integration.CategoryCreatedByYou,
		"productivity",
		"communication",
		"developer",
		"storage",
		"custom",
		integration.CategoryOther,
	}, values)
	assert.Equal(t, 7, counts[integration.CategoryAll])
	assert.Equal(t, 1, counts[integration.CategoryCreatedByYou])
	assert.Equal(t, 2, counts["communication"])
	assert.Equal(t, 1, counts[integration.CategoryOther])
	assert.Equal(t, "Created by You", options[1].Label)
}
