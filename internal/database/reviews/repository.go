// Package reviews provides database operations for the mirrored Anki
// review log and its daily rollups.
package reviews

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ankilms/deckbridge/internal/entities"
)

// Repository handles all review-mirror database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new reviews repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// HighWaterMark returns the largest revlog id already mirrored for the
// student, or 0 when nothing has been mirrored yet.
func (r *Repository) HighWaterMark(studentKey string) (int64, error) {
	var mark int64
	err := r.db.Model(&entities.ReviewEntry{}).
		Where("student_key = ?", studentKey).
		Select("COALESCE(MAX(revlog_id), 0)").
		Scan(&mark).Error
	if err != nil {
		return 0, err
	}
	return mark, nil
}

// AddEntries inserts mirrored review entries, silently skipping rows
// that were already mirrored (same student + revlog id).
func (r *Repository) AddEntries(entries []entities.ReviewEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&entries).Error
}

// RollupDaily folds new review entries into the per-day stats rows.
// Review kinds: 0=Learning, 2=Relearning; button 1 is "Again".
func (r *Repository) RollupDaily(studentKey string, entries []entities.ReviewEntry) error {
	type bucket struct {
		reviewed  int
		timeMs    int64
		learned   int
		relearned int
		again     int
	}

	days := make(map[time.Time]*bucket)
	for _, entry := range entries {
		// The revlog id is the review timestamp in milliseconds.
		day := time.UnixMilli(entry.RevlogID).Truncate(24 * time.Hour)
		b, ok := days[day]
		if !ok {
			b = &bucket{}
			days[day] = b
		}

		b.reviewed++
		b.timeMs += entry.TakenMillis
		switch entry.ReviewKind {
		case 0:
			b.learned++
		case 2:
			b.relearned++
		}
		if entry.ButtonChosen == 1 {
			b.again++
		}
	}

	for day, b := range days {
		var stats entities.DailyStats
		result := r.db.Where("student_key = ? AND date = ?", studentKey, day).First(&stats)
		if result.Error == gorm.ErrRecordNotFound {
			stats = entities.DailyStats{
				StudentKey:       studentKey,
				Date:             day,
				CardsReviewed:    b.reviewed,
				TimeSpentSeconds: int(b.timeMs / 1000),
				CardsLearned:     b.learned,
				CardsRelearned:   b.relearned,
				AgainCount:       b.again,
			}
			if err := r.db.Create(&stats).Error; err != nil {
				return err
			}
			continue
		} else if result.Error != nil {
			return result.Error
		}

		stats.CardsReviewed += b.reviewed
		stats.TimeSpentSeconds += int(b.timeMs / 1000)
		stats.CardsLearned += b.learned
		stats.CardsRelearned += b.relearned
		stats.AgainCount += b.again
		if err := r.db.Save(&stats).Error; err != nil {
			return err
		}
	}

	return nil
}

// GetDailyStats returns a student's rollups for the last n days,
// oldest first.
func (r *Repository) GetDailyStats(studentKey string, days int) ([]entities.DailyStats, error) {
	since := time.Now().Truncate(24 * time.Hour).AddDate(0, 0, -days)

	var stats []entities.DailyStats
	err := r.db.Where("student_key = ? AND date >= ?", studentKey, since).
		Order("date ASC").
		Find(&stats).Error
	return stats, err
}
