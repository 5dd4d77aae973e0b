package service

import (
	"context"
	"errors"

	"quizzies/internal/models"
	"quizzies/internal/rewards"
)

// ErrUnknownWord is returned for answers outside the spelling catalog
var ErrUnknownWord = errors.New("word is not in the spelling catalog")

// WordService serves the spelling word catalog against a player's ledger
type WordService struct {
	progress *ProgressService
}

// NewWordService creates a new word service
func NewWordService(progress *ProgressService) *WordService {
	return &WordService{progress: progress}
}

// Categories lists the word categories
func (s *WordService) Categories() []string {
	return rewards.Categories()
}

// Words lists the catalog, optionally for one category
func (s *WordService) Words(category string) []models.Word {
	return rewards.Words(category)
}

// Search fuzzy matches query against the catalog
func (s *WordService) Search(query string, limit int) []models.Word {
	return rewards.SearchWords(query, limit)
}

// Next picks the next word of category the player has not learned yet.
// ok is false once the category is exhausted.
func (s *WordService) Next(ctx context.Context, userID, category string) (word models.Word, ok bool, err error) {
	snapshot, err := s.progress.Get(ctx, userID)
	if err != nil {
		return models.Word{}, false, err
	}
	if snapshot == nil {
		snapshot = &models.Progress{UserID: userID}
	}
	word, ok = rewards.NextWord(snapshot, category)
	return word, ok, nil
}

// Answer records a correctly spelled catalog word
func (s *WordService) Answer(ctx context.Context, userID, word string) (*models.Progress, error) {
	if !rewards.IsCatalogWord(word) {
		return nil, ErrUnknownWord
	}
	return s.progress.AnswerWord(ctx, userID, word)
}
