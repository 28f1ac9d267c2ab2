// Package progress provides database operations for per-student deck
// progress and the injection audit trail.
package progress

import (
	"time"

	"gorm.io/gorm"

	"github.com/ankilms/deckbridge/internal/entities"
)

// Repository handles all progress database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new progress repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertCardsLearned records how many cards a student has learned in a
// deck, creating the progress row on first sight.
func (r *Repository) UpsertCardsLearned(studentKey string, deckID uint, cardsLearned int) error {
	var progress entities.DeckProgress
	result := r.db.Where("student_key = ? AND deck_id = ?", studentKey, deckID).First(&progress)

	now := time.Now()
	if result.Error == gorm.ErrRecordNotFound {
		progress = entities.DeckProgress{
			StudentKey:   studentKey,
			DeckID:       deckID,
			CardsLearned: cardsLearned,
			LastSync:     now,
		}
		return r.db.Create(&progress).Error
	} else if result.Error != nil {
		return result.Error
	}

	progress.CardsLearned = cardsLearned
	progress.LastSync = now
	return r.db.Save(&progress).Error
}

// GetProgress retrieves a student's progress for one deck.
func (r *Repository) GetProgress(studentKey string, deckID uint) (*entities.DeckProgress, error) {
	var progress entities.DeckProgress
	err := r.db.Where("student_key = ? AND deck_id = ?", studentKey, deckID).First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// RecordInjection persists one per-student injection outcome.
func (r *Repository) RecordInjection(result entities.InjectionResult, deckTitle string) error {
	record := entities.InjectionRecord{
		StudentKey:    result.StudentKey,
		DeckTitle:     deckTitle,
		Status:        result.Status,
		Message:       result.Message,
		CardsImported: result.CardsImported,
		MediaCopied:   result.MediaCopied,
	}
	return r.db.Create(&record).Error
}

// ListInjections returns a student's injection history, newest first.
func (r *Repository) ListInjections(studentKey string, limit int) ([]entities.InjectionRecord, error) {
	var records []entities.InjectionRecord
	err := r.db.Where("student_key = ?", studentKey).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
