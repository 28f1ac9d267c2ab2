// Package analytics mirrors review history from students' live Anki
// collections into the LMS datastore for reporting.
//
// The sync server may be writing a collection at any moment, so reads
// use SQLite URI mode with read-only + immutable flags: the reader
// never takes a lock and never blocks (or is blocked by) the
// authoritative writer. This whole path is best-effort telemetry — any
// failure is logged and reported as zero new entries, never raised.
package analytics

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ankilms/deckbridge/internal/collection"
	"github.com/ankilms/deckbridge/internal/config"
	"github.com/ankilms/deckbridge/internal/database"
	"github.com/ankilms/deckbridge/internal/database/progress"
	"github.com/ankilms/deckbridge/internal/database/reviews"
	"github.com/ankilms/deckbridge/internal/entities"
)

// DefaultBatchSize caps how many revlog rows one sync call mirrors,
// bounding memory and how long the snapshot stays open.
const DefaultBatchSize = 10000

// SQLite limits the number of bound variables per statement; card id
// lookups are chunked below that.
const cardChunkSize = 900

// Reader mirrors new revlog entries for one student at a time.
type Reader struct {
	dataRoot  string
	batchSize int

	store        *database.Database
	reviewsRepo  *reviews.Repository
	progressRepo *progress.Repository
}

// NewReader creates a revlog reader over the sync server's data root.
// batchSize <= 0 falls back to DefaultBatchSize.
func NewReader(dataRoot string, batchSize int, store *database.Database) *Reader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Reader{
		dataRoot:     dataRoot,
		batchSize:    batchSize,
		store:        store,
		reviewsRepo:  reviews.NewRepository(store.DB),
		progressRepo: progress.NewRepository(store.DB),
	}
}

// SyncNewReviews mirrors revlog rows beyond the student's high-water
// mark into the datastore, keeping only reviews belonging to decks the
// LMS knows about. Returns the number of entries mirrored; every
// failure degrades to 0.
func (r *Reader) SyncNewReviews(studentKey string) int {
	collectionPath := config.CollectionPath(r.dataRoot, studentKey)
	if _, err := os.Stat(collectionPath); os.IsNotExist(err) {
		log.Printf("Collection not found for %s, skipping revlog sync", studentKey)
		return 0
	}

	mark, err := r.reviewsRepo.HighWaterMark(studentKey)
	if err != nil {
		log.Printf("Could not read revlog high-water mark for %s: %v", studentKey, err)
		return 0
	}

	db, err := sql.Open("sqlite3", "file:"+collectionPath+"?mode=ro&immutable=1")
	if err != nil {
		log.Printf("Could not open collection for %s: %v", studentKey, err)
		return 0
	}
	defer db.Close()

	allowedDecks, deckNames, err := r.allowedDecks(db)
	if err != nil {
		log.Printf("Could not resolve decks for %s: %v", studentKey, err)
		return 0
	}
	if len(allowedDecks) == 0 {
		log.Printf("No registered decks found in collection for %s", studentKey)
		return 0
	}

	rows, err := readRevlogBatch(db, mark, r.batchSize)
	if err != nil {
		log.Printf("Could not read revlog for %s: %v", studentKey, err)
		return 0
	}
	if len(rows) == 0 {
		return 0
	}

	cardDecks, err := cardDeckMap(db, rows)
	if err != nil {
		log.Printf("Could not map cards to decks for %s: %v", studentKey, err)
		return 0
	}

	var entries []entities.ReviewEntry
	touchedDecks := make(map[int64]bool)
	filtered := 0
	for _, row := range rows {
		deckID, ok := cardDecks[row.CardID]
		if !ok || !allowedDecks[deckID] {
			filtered++
			continue
		}
		touchedDecks[deckID] = true
		entries = append(entries, entities.ReviewEntry{
			StudentKey:   studentKey,
			RevlogID:     row.ID,
			CardID:       row.CardID,
			USN:          row.USN,
			ButtonChosen: int(row.ButtonChosen),
			Interval:     row.Interval,
			LastInterval: row.LastInterval,
			EaseFactor:   row.EaseFactor,
			TakenMillis:  row.TakenMillis,
			ReviewKind:   int(row.ReviewKind),
		})
	}

	if filtered > 0 {
		log.Printf("Filtered out %d reviews from unregistered decks for %s", filtered, studentKey)
	}
	if len(entries) == 0 {
		return 0
	}

	if err := r.reviewsRepo.AddEntries(entries); err != nil {
		log.Printf("Could not store mirrored reviews for %s: %v", studentKey, err)
		return 0
	}
	if err := r.reviewsRepo.RollupDaily(studentKey, entries); err != nil {
		log.Printf("Could not roll up daily stats for %s: %v", studentKey, err)
	}

	r.updateProgress(db, studentKey, touchedDecks, deckNames)

	log.Printf("Mirrored %d revlog entries for %s", len(entries), studentKey)
	return len(entries)
}

// allowedDecks intersects the collection's decks with the LMS deck
// registry by title. Matching is exact: a student who renamed an
// assigned deck drops out of telemetry rather than leaking personal
// deck activity in.
func (r *Reader) allowedDecks(db *sql.DB) (map[int64]bool, map[int64]string, error) {
	registered, err := r.store.DeckTitles()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list registered decks: %w", err)
	}

	deckNames, err := collection.DeckNames(db)
	if err != nil {
		return nil, nil, err
	}

	allowed := make(map[int64]bool)
	for deckID, name := range deckNames {
		if registered[name] {
			allowed[deckID] = true
		}
	}
	return allowed, deckNames, nil
}

func readRevlogBatch(db *sql.DB, afterID int64, limit int) ([]entities.RevlogRow, error) {
	rows, err := db.Query(`
		SELECT id, cid, usn, ease, ivl, lastIvl, factor, time, type
		FROM revlog
		WHERE id > ?
		ORDER BY id
		LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query revlog: %w", err)
	}
	defer rows.Close()

	var batch []entities.RevlogRow
	for rows.Next() {
		var row entities.RevlogRow
		err := rows.Scan(
			&row.ID,
			&row.CardID,
			&row.USN,
			&row.ButtonChosen,
			&row.Interval,
			&row.LastInterval,
			&row.EaseFactor,
			&row.TakenMillis,
			&row.ReviewKind,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revlog row: %w", err)
		}
		batch = append(batch, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revlog rows: %w", err)
	}

	return batch, nil
}

// cardDeckMap resolves each reviewed card to its deck id, querying in
// chunks to stay under SQLite's bound-variable limit.
func cardDeckMap(db *sql.DB, batch []entities.RevlogRow) (map[int64]int64, error) {
	seen := make(map[int64]bool, len(batch))
	var cardIDs []int64
	for _, row := range batch {
		if !seen[row.CardID] {
			seen[row.CardID] = true
			cardIDs = append(cardIDs, row.CardID)
		}
	}

	result := make(map[int64]int64, len(cardIDs))
	for start := 0; start < len(cardIDs); start += cardChunkSize {
		end := start + cardChunkSize
		if end > len(cardIDs) {
			end = len(cardIDs)
		}
		chunk := cardIDs[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := db.Query("SELECT id, did FROM cards WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query card decks: %w", err)
		}
		for rows.Next() {
			var cardID, deckID int64
			if err := rows.Scan(&cardID, &deckID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan card deck row: %w", err)
			}
			result[cardID] = deckID
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating card deck rows: %w", err)
		}
		rows.Close()
	}

	return result, nil
}

// updateProgress recomputes cards learned per touched deck from the
// live collection (queue > 0 means the card has entered learning) and
// upserts the student's progress rows. Best effort, like everything in
// this package.
func (r *Reader) updateProgress(db *sql.DB, studentKey string, touchedDecks map[int64]bool, deckNames map[int64]string) {
	for deckID := range touchedDecks {
		title := deckNames[deckID]
		lmsDeck, err := r.store.GetDeckByTitle(title)
		if err != nil {
			continue
		}

		var learned int
		err = db.QueryRow("SELECT COUNT(*) FROM cards WHERE did = ? AND queue > 0", deckID).Scan(&learned)
		if err != nil {
			log.Printf("Could not count learned cards for deck %s: %v", title, err)
			continue
		}

		if err := r.progressRepo.UpsertCardsLearned(studentKey, lmsDeck.ID, learned); err != nil {
			log.Printf("Could not update progress for deck %s: %v", title, err)
			continue
		}
		log.Printf("Updated progress for %s on deck %s: %d cards learned", studentKey, title, learned)
	}
}
