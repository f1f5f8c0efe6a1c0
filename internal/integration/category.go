package integration

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	CategoryAll          = "all"
	CategoryCreatedByYou = "created_by_you"
	CategoryOther        = "other"
)

// CategoryOrder is the fixed display order for known categories. Categories
// not listed here sort after these, alphabetically.
var CategoryOrder = []string{
	"productivity",
	"communication",
	"developer",
	"development",
	"storage",
	"crm",
	"marketing",
	"analytics",
	"ecommerce",
	"finance",
	"social",
	"search",
	"database",
	"ai",
	"custom",
	CategoryOther,
}

var categoryLabels = map[string]string{
	CategoryAll:          "All",
	CategoryCreatedByYou: "Created by You",
	CategoryOther:        "Other",
	"productivity":       "Productivity",
	"communication":      "Communication",
	"developer":          "Developer Tools",
	"development":        "Development",
	"storage":            "Storage",
	"crm":                "CRM",
	"marketing":          "Marketing",
	"analytics":          "Analytics",
	"ecommerce":          "E-commerce",
	"finance":            "Finance",
	"social":             "Social",
	"search":             "Search",
	"database":           "Databases",
	"ai":                 "AI",
	"custom":             "Custom",
}

// CategoryLabel returns the display label for a category value.
func CategoryLabel(category string) string {
	key := strings.ToLower(strings.TrimSpace(category))
	if key == "" {
		return categoryLabels[CategoryAll]
	}
	if label, ok := categoryLabels[key]; ok {
		return label
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	if len(words) == 0 {
		return categoryLabels[CategoryOther]
	}
	words[0] = capitalizeFirst(words[0])
	return strings.Join(words, " ")
}

// CategoryRank gives the position of category in CategoryOrder, or
// len(CategoryOrder) for unknown categories.
func CategoryRank(category string) int {
	for i, known := range CategoryOrder {
		if known == category {
			return i
		}
	}
	return len(CategoryOrder)
}

func capitalizeFirst(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}
