package rewards

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"quizzies/internal/models"
)

var wordCatalog = []models.Word{
	{Text: "APPLE", Category: "Fruit"},
	{Text: "BALL", Category: "Toys"},
	{Text: "SUN", Category: "Nature"},
	{Text: "RABBIT", Category: "Animals"},
	{Text: "CHICKEN", Category: "Animals"},
	{Text: "WATERFALL", Category: "Nature"},
	{Text: "BICYCLE", Category: "Toys"},
	{Text: "COOKIE", Category: "Food"},
	{Text: "COW", Category: "Animals"},
	{Text: "SHEEP", Category: "Animals"},
	{Text: "CIRCLE", Category: "Shapes"},
	{Text: "SQUARE", Category: "Shapes"},
	{Text: "TRIANGLE", Category: "Shapes"},
	{Text: "STAR", Category: "Shapes"},
	{Text: "PENTAGON", Category: "Shapes"},
	{Text: "RECTANGLE", Category: "Shapes"},
	{Text: "ORANGE", Category: "Fruit"},
	{Text: "BLUE", Category: "Colors"},
	{Text: "GREEN", Category: "Colors"},
	{Text: "RED", Category: "Colors"},
	{Text: "PURPLE", Category: "Colors"},
	{Text: "CUPCAKE", Category: "Food"},
	{Text: "SAMOSAS", Category: "Food"},
	{Text: "PINEAPPLE", Category: "Fruit"},
	{Text: "AVOCADO", Category: "Fruit"},
	{Text: "WATERMELON", Category: "Fruit"},
	{Text: "BURGER", Category: "Food"},
	{Text: "DOUGHNUT", Category: "Food"},
}

// wordSource adapts a word list to fuzzy.Source
type wordSource []models.Word

func (s wordSource) Len() int            { return len(s) }
func (s wordSource) String(i int) string { return s[i].Text }

// Words returns the spelling words, optionally limited to one category
func Words(category string) []models.Word {
	if category == "" {
		return append([]models.Word(nil), wordCatalog...)
	}
	var out []models.Word
	for _, w := range wordCatalog {
		if strings.EqualFold(w.Category, category) {
			out = append(out, w)
		}
	}
	return out
}

// Categories lists the word categories in alphabetical order
func Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range wordCatalog {
		if _, ok := seen[w.Category]; !ok {
			seen[w.Category] = struct{}{}
			out = append(out, w.Category)
		}
	}
	sort.Strings(out)
	return out
}

// IsCatalogWord reports whether word is one of the spelling words
func IsCatalogWord(word string) bool {
	word = NormalizeWord(word)
	for _, w := range wordCatalog {
		if w.Text == word {
			return true
		}
	}
	return false
}

// NextWord returns the first word of category, in catalog order, that the
// snapshot has not learned yet
func NextWord(snapshot *models.Progress, category string) (models.Word, bool) {
	for _, w := range Words(category) {
		if !snapshot.HasLearned(w.Text) {
			return w, true
		}
	}
	return models.Word{}, false
}

// SearchWords fuzzy matches query against the catalog, best match first
func SearchWords(query string, limit int) []models.Word {
	query = NormalizeWord(query)
	if query == "" {
		return nil
	}
	matches := fuzzy.FindFrom(query, wordSource(wordCatalog))
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]models.Word, len(matches))
	for i, m := range matches {
		out[i] = wordCatalog[m.Index]
	}
	return out
}
