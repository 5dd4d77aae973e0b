package rewards

import (
	"fmt"
	"testing"

	"quizzies/internal/models"
)

func TestWordsByCategory(t *testing.T) {
	tests := []struct {
		category string
		want     int
	}{
		{"", 28},
		{"Shapes", 6},
		{"shapes", 6},
		{"Colors", 4},
		{"Dinosaurs", 0},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			if got := len(Words(tt.category)); got != tt.want {
				t.Errorf("len(Words(%q)) = %d, want %d", tt.category, got, tt.want)
			}
		})
	}
}

func TestCategories(t *testing.T) {
	got := fmt.Sprint(Categories())
	want := "[Animals Colors Food Fruit Nature Shapes Toys]"
	if got != want {
		t.Errorf("Categories() = %s, want %s", got, want)
	}
}

func TestNextWord(t *testing.T) {
	p := &models.Progress{LearnedWords: []string{"BLUE", "GREEN"}}
	w, ok := NextWord(p, "Colors")
	if !ok || w.Text != "RED" {
		t.Errorf("NextWord() = %v, %v, want RED", w, ok)
	}

	p.LearnedWords = append(p.LearnedWords, "RED", "PURPLE")
	if _, ok := NextWord(p, "Colors"); ok {
		t.Error("NextWord() should report false when every word is learned")
	}
}

func TestSearchWords(t *testing.T) {
	got := SearchWords("pnapl", 5)
	if len(got) == 0 || got[0].Text != "PINEAPPLE" {
		t.Errorf("SearchWords(pnapl) = %v, want PINEAPPLE first", got)
	}
	if got := SearchWords("  ", 5); got != nil {
		t.Errorf("SearchWords(blank) = %v, want nil", got)
	}
	if got := SearchWords("E", 3); len(got) != 3 {
		t.Errorf("SearchWords(E, 3) returned %d words, want 3", len(got))
	}
}

func TestIsCatalogWord(t *testing.T) {
	if !IsCatalogWord(" apple") {
		t.Error("apple should be a catalog word")
	}
	if IsCatalogWord("CAT") {
		t.Error("CAT is not in the catalog")
	}
}
