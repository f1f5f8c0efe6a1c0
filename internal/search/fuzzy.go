package search

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
)

const (
	// DefaultThreshold is the highest normalised edit distance still
	// accepted as a match: 0 is exact, 1 matches nothing.
	DefaultThreshold = 0.4

	// epsilon stands in for a perfect key score so that the weighted
	// product keeps ranking exact matches on heavier keys first.
	epsilon = 1e-9
)

// Field is one searchable attribute and its relative weight.
type Field struct {
	Name   string
	Weight float64
	Value  func(integration.Reconciled) string
}

// DefaultFields weights name over description over id over category.
var DefaultFields = []Field{
	{Name: "name", Weight: 2.0, Value: func(r integration.Reconciled) string { return r.Name }},
	{Name: "description", Weight: 1.0, Value: func(r integration.Reconciled) string { return r.Description }},
	{Name: "id", Weight: 0.5, Value: func(r integration.Reconciled) string { return r.ID }},
	{Name: "category", Weight: 0.3, Value: func(r integration.Reconciled) string { return r.Category }},
}

type indexedField struct {
	text []rune
	norm float64
}

type indexedItem struct {
	position int
	fields   []indexedField
}

// Index is a typo-tolerant matcher over a reconciled list. A query matches a
// field when it is close to any part of the field's text, wherever that part
// starts. Build one per list.
type Index struct {
	items     []integration.Reconciled
	entries   []indexedItem
	fields    []Field
	weights   []float64
	threshold float64
}

// Hit is one fuzzy match. Lower scores are better.
type Hit struct {
	Item  integration.Reconciled
	Score float64
}

// NewIndex builds an index with the default fields and threshold.
func NewIndex(list []integration.Reconciled) *Index {
	return NewIndexWithFields(list, DefaultFields, DefaultThreshold)
}

func NewIndexWithFields(list []integration.Reconciled, fields []Field, threshold float64) *Index {
	idx := &Index{
		items:     list,
		fields:    fields,
		threshold: threshold,
	}

	total := 0.0
	for _, field := range fields {
		total += field.Weight
	}
	idx.weights = make([]float64, len(fields))
	for i, field := range fields {
		if total > 0 {
			idx.weights[i] = field.Weight / total
		}
	}

	idx.entries = make([]indexedItem, len(list))
	for i, item := range list {
		entry := indexedItem{position: i, fields: make([]indexedField, len(fields))}
		for j, field := range fields {
			tokens := tokenize(field.Value(item))
			entry.fields[j] = indexedField{text: joinTokens(tokens), norm: fieldNorm(len(tokens))}
		}
		idx.entries[i] = entry
	}
	return idx
}

// Len returns the number of indexed integrations.
func (idx *Index) Len() int {
	return len(idx.items)
}

// Search returns the matching integrations, best first. Ties keep list order.
func (idx *Index) Search(query string) []Hit {
	pattern := joinTokens(tokenize(query))
	if len(pattern) == 0 {
		return nil
	}

	var hits []Hit
	for _, entry := range idx.entries {
		matched := false
		total := 1.0
		for j, field := range entry.fields {
			score, ok := idx.scoreField(pattern, field.text)
			if !ok {
				continue
			}
			matched = true
			if score == 0 {
				score = epsilon
			}
			total *= math.Pow(score, idx.weights[j]*field.norm)
		}
		if matched {
			hits = append(hits, Hit{Item: idx.items[entry.position], Score: total})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score < hits[j].Score
	})
	return hits
}

// scoreField is the fewest edits turning the pattern into some substring of
// text, divided by the pattern length.
func (idx *Index) scoreField(pattern, text []rune) (float64, bool) {
	if len(text) == 0 {
		return 1, false
	}
	score := float64(substringDistance(pattern, text)) / float64(len(pattern))
	if score > 1 {
		score = 1
	}
	return score, score <= idx.threshold
}

// tokenize case-folds value and splits it into words. A Caser is stateful,
// so each call gets its own.
func tokenize(value string) [][]rune {
	folded := cases.Fold().String(value)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([][]rune, 0, len(words))
	for _, word := range words {
		tokens = append(tokens, []rune(word))
	}
	return tokens
}

// fieldNorm damps matches in long fields, rounded to three decimals.
func fieldNorm(tokens int) float64 {
	if tokens == 0 {
		return 1
	}
	return math.Round(1000/math.Sqrt(float64(tokens))) / 1000
}

func joinTokens(tokens [][]rune) []rune {
	var out []rune
	for i, token := range tokens {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, token...)
	}
	return out
}

// substringDistance is the edit distance between pattern and its best
// matching substring of text. Skipping text before or after the match is
// free.
func substringDistance(pattern, text []rune) int {
	if len(pattern) == 0 {
		return 0
	}
	prev := make([]int, len(text)+1)
	curr := make([]int, len(text)+1)
	for i := 1; i <= len(pattern); i++ {
		curr[0] = i
		for j := 1; j <= len(text); j++ {
			cost := 1
			if pattern[i-1] == text[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	best := prev[0]
	for _, d := range prev[1:] {
		if d < best {
			best = d
		}
	}
	return best
}
