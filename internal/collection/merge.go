package collection

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ankilms/deckbridge/internal/entities"
)

// MergeError wraps whatever went wrong during the transactional merge.
// When it is returned the transaction was rolled back, so the target
// collection is exactly as it was before the call.
type MergeError struct {
	Phase string
	Err   error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge failed during %s phase: %v", e.Phase, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// Merge imports notetypes, decks, notes and cards from the package's
// source database into the student's target collection, remapping ids
// so they never collide with existing rows and suppressing duplicates
// (notes by guid, cards by note+ordinal).
//
// Everything runs inside one transaction against the target and
// commits exactly once at the end. The final pass resets the
// change-sequence marker (usn) to -1 on cards, notes and the col row
// and bumps the collection's modification time; that sentinel is the
// only signal the sync server uses to push new content to the
// student's devices, so skipping it would make the imported cards
// silently invisible.
//
// Returns the number of cards actually inserted.
func Merge(targetPath, sourcePath string) (int, error) {
	source, err := sql.Open("sqlite3", sourcePath+"?mode=ro")
	if err != nil {
		return 0, &MergeError{Phase: "open", Err: fmt.Errorf("failed to open source database: %w", err)}
	}
	defer source.Close()

	target, err := sql.Open("sqlite3", targetPath)
	if err != nil {
		return 0, &MergeError{Phase: "open", Err: fmt.Errorf("failed to open target database: %w", err)}
	}
	defer target.Close()

	tx, err := target.Begin()
	if err != nil {
		return 0, &MergeError{Phase: "begin", Err: err}
	}
	// Rollback is a no-op once the transaction has been committed.
	defer tx.Rollback()

	notetypeIDs, err := mergeNotetypes(source, tx)
	if err != nil {
		return 0, &MergeError{Phase: "notetypes", Err: err}
	}

	deckIDs, err := mergeDecks(source, tx)
	if err != nil {
		return 0, &MergeError{Phase: "decks", Err: err}
	}

	noteIDs, err := mergeNotes(source, tx, notetypeIDs)
	if err != nil {
		return 0, &MergeError{Phase: "notes", Err: err}
	}

	imported, err := mergeCards(source, tx, noteIDs, deckIDs)
	if err != nil {
		return 0, &MergeError{Phase: "cards", Err: err}
	}

	if err := markForSync(tx); err != nil {
		return 0, &MergeError{Phase: "sync-trigger", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &MergeError{Phase: "commit", Err: err}
	}

	log.Printf("Merged %s into %s: %d cards imported", sourcePath, targetPath, imported)
	return imported, nil
}

// mergeNotetypes merges the source's notetype descriptors into the
// target by name. Descriptors are opaque JSON; only id, name and usn
// are touched. Returns the source id to target id mapping.
func mergeNotetypes(source *sql.DB, tx *sql.Tx) (map[int64]int64, error) {
	targetModels, err := readColBlob(tx, "models")
	if err != nil {
		return nil, err
	}
	sourceModels, err := readColBlob(source, "models")
	if err != nil {
		return nil, err
	}

	byName := make(map[string]int64, len(targetModels))
	for _, id := range sortedBlobIDs(targetModels) {
		byName[blobName(targetModels[jsonID(id).String()])] = id
	}

	maxID := maxBlobID(targetModels)
	idMap := make(map[int64]int64, len(sourceModels))

	for _, sourceID := range sortedBlobIDs(sourceModels) {
		raw := sourceModels[jsonID(sourceID).String()]

		if existingID, ok := byName[blobName(raw)]; ok {
			idMap[sourceID] = existingID
			continue
		}

		if sourceID > maxID {
			maxID = sourceID
		}
		maxID++
		newID := maxID

		raw["id"] = jsonID(newID)
		raw["usn"] = jsonID(entities.UsnPending)
		targetModels[jsonID(newID).String()] = raw
		byName[blobName(raw)] = newID
		idMap[sourceID] = newID
	}

	encoded, err := encodeBlobMap(targetModels)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notetypes: %w", err)
	}
	if _, err := tx.Exec("UPDATE col SET models = ?", encoded); err != nil {
		return nil, fmt.Errorf("failed to write notetypes: %w", err)
	}

	return idMap, nil
}

// mergeDecks merges decks by name. New deck ids are wall-clock epoch
// milliseconds rather than max+1, to stay clear of the deck-id
// numbering scheme the rest of the ecosystem uses; a floor at the
// current maximum keeps a lagging clock from colliding. Deck id 1 is
// the reserved default deck and always maps to itself.
func mergeDecks(source *sql.DB, tx *sql.Tx) (map[int64]int64, error) {
	targetDecks, err := readColBlob(tx, "decks")
	if err != nil {
		return nil, err
	}
	sourceDecks, err := readColBlob(source, "decks")
	if err != nil {
		return nil, err
	}

	byName := make(map[string]int64, len(targetDecks))
	for _, id := range sortedBlobIDs(targetDecks) {
		byName[blobName(targetDecks[jsonID(id).String()])] = id
	}

	nextID := time.Now().UnixMilli()
	if max := maxBlobID(targetDecks); nextID <= max {
		nextID = max
	}

	idMap := make(map[int64]int64, len(sourceDecks))

	for _, sourceID := range sortedBlobIDs(sourceDecks) {
		if sourceID == entities.DefaultDeckID {
			idMap[sourceID] = entities.DefaultDeckID
			continue
		}

		raw := sourceDecks[jsonID(sourceID).String()]

		if existingID, ok := byName[blobName(raw)]; ok {
			idMap[sourceID] = existingID
			// Refresh the sentinel so a rename/update of the matched
			// deck is still visible to sync.
			targetDecks[jsonID(existingID).String()]["usn"] = jsonID(entities.UsnPending)
			continue
		}

		nextID++
		newID := nextID

		raw["id"] = jsonID(newID)
		raw["usn"] = jsonID(entities.UsnPending)
		targetDecks[jsonID(newID).String()] = raw
		byName[blobName(raw)] = newID
		idMap[sourceID] = newID
	}

	encoded, err := encodeBlobMap(targetDecks)
	if err != nil {
		return nil, fmt.Errorf("failed to encode decks: %w", err)
	}
	if _, err := tx.Exec("UPDATE col SET decks = ?", encoded); err != nil {
		return nil, fmt.Errorf("failed to write decks: %w", err)
	}

	return idMap, nil
}

// mergeNotes inserts the source's notes with ids shifted past the
// target's current maximum. A source note whose guid already exists in
// the target is not inserted; its id still maps to the existing target
// note so the card pass can reattach to it. The target's content wins
// on such a conflict.
func mergeNotes(source *sql.DB, tx *sql.Tx, notetypeIDs map[int64]int64) (map[int64]int64, error) {
	notes, err := readNotes(source)
	if err != nil {
		return nil, err
	}

	maxNoteID, err := maxRowID(tx, "notes")
	if err != nil {
		return nil, err
	}
	offset := maxNoteID + 1

	idMap := make(map[int64]int64, len(notes))

	for _, note := range notes {
		var existingID int64
		err := tx.QueryRow("SELECT id FROM notes WHERE guid = ?", note.GUID).Scan(&existingID)
		switch {
		case err == nil:
			idMap[note.ID] = existingID
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("failed to look up note guid %s: %w", note.GUID, err)
		}

		newID := note.ID + offset
		notetypeID, ok := notetypeIDs[note.NotetypeID]
		if !ok {
			notetypeID = note.NotetypeID
		}

		_, err = tx.Exec(`
			INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			newID, note.GUID, notetypeID, note.Mod, entities.UsnPending,
			note.Tags, note.Fields, note.SortField, note.Checksum, note.Flags, note.Data,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert note %d: %w", note.ID, err)
		}

		idMap[note.ID] = newID
	}

	return idMap, nil
}

// mergeCards inserts the source's cards with remapped note/deck ids
// and shifted card ids, skipping any card whose (note id, ordinal)
// pair already exists in the target. Returns the number inserted.
func mergeCards(source *sql.DB, tx *sql.Tx, noteIDs, deckIDs map[int64]int64) (int, error) {
	cards, err := readCards(source)
	if err != nil {
		return 0, err
	}

	maxCardID, err := maxRowID(tx, "cards")
	if err != nil {
		return 0, err
	}
	offset := maxCardID + 1

	imported := 0
	for _, card := range cards {
		noteID, ok := noteIDs[card.NoteID]
		if !ok {
			noteID = card.NoteID
		}
		deckID, ok := deckIDs[card.DeckID]
		if !ok {
			deckID = card.DeckID
		}

		var existingID int64
		err := tx.QueryRow("SELECT id FROM cards WHERE nid = ? AND ord = ?", noteID, card.Ord).Scan(&existingID)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return 0, fmt.Errorf("failed to look up card (%d, %d): %w", noteID, card.Ord, err)
		}

		_, err = tx.Exec(`
			INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl,
			                   factor, reps, lapses, left, odue, odid, flags, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			card.ID+offset, noteID, deckID, card.Ord, card.Mod, entities.UsnPending,
			card.Type, card.Queue, card.Due, card.Interval, card.Factor, card.Reps,
			card.Lapses, card.Left, card.OriginalDue, card.OriginalDeckID, card.Flags, card.Data,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert card %d: %w", card.ID, err)
		}

		imported++
	}

	return imported, nil
}

// markForSync resets the change-sequence marker on every acknowledged
// card and note and flags the col row itself, bumping its modification
// timestamp. This is the sync server's contract for detecting new
// content.
func markForSync(tx *sql.Tx) error {
	if _, err := tx.Exec("UPDATE cards SET usn = ? WHERE usn >= 0", entities.UsnPending); err != nil {
		return fmt.Errorf("failed to reset card usn: %w", err)
	}
	if _, err := tx.Exec("UPDATE notes SET usn = ? WHERE usn >= 0", entities.UsnPending); err != nil {
		return fmt.Errorf("failed to reset note usn: %w", err)
	}
	if _, err := tx.Exec("UPDATE col SET usn = ?, mod = ?", entities.UsnPending, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to flag collection for sync: %w", err)
	}
	return nil
}
