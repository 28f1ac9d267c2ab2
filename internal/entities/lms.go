package entities

import (
	"time"
)

type InjectionStatus string

const (
	InjectionStatusImported     InjectionStatus = "imported"
	InjectionStatusNotYetSynced InjectionStatus = "not_yet_synced"
	InjectionStatusFailed       InjectionStatus = "failed"
)

// InjectionResult is the per-student outcome of one deck injection.
// It is returned to the caller and persisted as an InjectionRecord.
type InjectionResult struct {
	StudentKey    string
	Status        InjectionStatus
	Message       string
	CardsImported int
	MediaCopied   int
}

func (r InjectionResult) Success() bool {
	return r.Status == InjectionStatusImported
}

// RegisteredDeck is a deck known to the LMS. Titles are the join key
// between LMS decks and deck names inside student collections, so they
// are unique.
type RegisteredDeck struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"uniqueIndex;size:255" json:"title"`
	Version   int       `json:"version"`
	BlobID    string    `gorm:"size:256" json:"blob_id,omitempty"` // blob store id of the .apkg
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeckProgress tracks how far a student has gotten through a deck.
type DeckProgress struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	StudentKey   string         `gorm:"uniqueIndex:idx_progress_student_deck;size:255" json:"student_key"`
	DeckID       uint           `gorm:"uniqueIndex:idx_progress_student_deck" json:"deck_id"`
	Deck         RegisteredDeck `gorm:"foreignKey:DeckID" json:"deck,omitempty"`
	CardsLearned int            `json:"cards_learned"`
	LastSync     time.Time      `json:"last_sync"`
}

// ReviewEntry mirrors one revlog row from a student's collection into
// the LMS datastore for reporting. RevlogID is the Anki-side row id
// (a millisecond timestamp) and the per-student high-water mark.
type ReviewEntry struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	StudentKey   string `gorm:"uniqueIndex:idx_review_student_revlog;size:255" json:"student_key"`
	RevlogID     int64  `gorm:"uniqueIndex:idx_review_student_revlog" json:"revlog_id"`
	CardID       int64  `json:"card_id"`
	USN          int64  `json:"usn"`
	ButtonChosen int    `json:"button_chosen"` // 1=Again 2=Hard 3=Good 4=Easy
	Interval     int64  `json:"interval"`
	LastInterval int64  `json:"last_interval"`
	EaseFactor   int64  `json:"ease_factor"`
	TakenMillis  int64  `json:"taken_millis"`
	ReviewKind   int    `json:"review_kind"` // 0=Learning 1=Review 2=Relearning 3=Filtered 4=Manual
}

// DailyStats is a per-student per-day rollup of mirrored reviews.
type DailyStats struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	StudentKey       string    `gorm:"uniqueIndex:idx_daily_student_date;size:255" json:"student_key"`
	Date             time.Time `gorm:"uniqueIndex:idx_daily_student_date" json:"date"`
	CardsReviewed    int       `json:"cards_reviewed"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	CardsLearned     int       `json:"cards_learned"`
	CardsRelearned   int       `json:"cards_relearned"`
	AgainCount       int       `json:"again_count"`
}

// InjectionRecord is the persisted audit trail of injection outcomes.
type InjectionRecord struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	StudentKey    string          `gorm:"index;size:255" json:"student_key"`
	DeckTitle     string          `gorm:"size:255" json:"deck_title"`
	Status        InjectionStatus `gorm:"size:32" json:"status"`
	Message       string          `gorm:"size:1024" json:"message"`
	CardsImported int             `json:"cards_imported"`
	MediaCopied   int             `json:"media_copied"`
	CreatedAt     time.Time       `json:"created_at"`
}
