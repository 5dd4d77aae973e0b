package service

import (
	"context"
	"errors"
	"testing"
)

func TestWordServiceNext(t *testing.T) {
	progress, _, _ := newTestService(t)
	words := NewWordService(progress)
	ctx := context.Background()

	first, ok, err := words.Next(ctx, "1", "Fruit")
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v, %v", first, ok, err)
	}

	if _, err := words.Answer(ctx, "1", first.Text); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	second, ok, err := words.Next(ctx, "1", "Fruit")
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v, %v", second, ok, err)
	}
	if second.Text == first.Text {
		t.Errorf("Next() returned learned word %s again", first.Text)
	}

	if _, ok, _ := words.Next(ctx, "1", "Spaceships"); ok {
		t.Error("Next() for unknown category should report no word")
	}
}

func TestWordServiceAnswerRejectsUnknownWords(t *testing.T) {
	progress, store, _ := newTestService(t)
	words := NewWordService(progress)
	ctx := context.Background()

	if _, err := words.Answer(ctx, "1", "XYZZY"); !errors.Is(err, ErrUnknownWord) {
		t.Errorf("Answer() error = %v, want ErrUnknownWord", err)
	}
	if p, _ := store.Get(ctx, "1"); p != nil {
		t.Error("unknown word created a ledger")
	}
}

func TestWordServiceCatalog(t *testing.T) {
	words := NewWordService(nil)
	if len(words.Categories()) == 0 {
		t.Fatal("Categories() is empty")
	}
	for _, c := range words.Categories() {
		if len(words.Words(c)) == 0 {
			t.Errorf("category %s has no words", c)
		}
	}
	found := false
	for _, w := range words.Search("aple", 0) {
		if w.Text == "APPLE" {
			found = true
		}
	}
	if !found {
		t.Error("Search(aple) did not match APPLE")
	}
}
