package collection

import (
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankilms/deckbridge/internal/collection/collectiontest"
	"github.com/ankilms/deckbridge/internal/entities"
)

// buildSourcePackage creates a source collection with one notetype, one
// deck and three note/card pairs, mimicking what a small .apkg deck
// looks like after extraction.
func buildSourcePackage(t *testing.T, path, deckName string) {
	t.Helper()

	src, err := collectiontest.Create(path)
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.AddNotetype(1000, "Basic"))
	require.NoError(t, src.AddDeck(1700000000000, deckName))

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, src.AddNote(entities.Note{
			ID:         i,
			GUID:       deckName + "-guid-" + string(rune('a'+i-1)),
			NotetypeID: 1000,
			Mod:        1700000000,
			USN:        0,
			Fields:     "front" + entities.FieldSeparator + "back",
			SortField:  "front",
		}))
		require.NoError(t, src.AddCard(entities.Card{
			ID:     i,
			NoteID: i,
			DeckID: 1700000000000,
			Ord:    0,
			USN:    0,
			Queue:  0,
			Due:    i,
			Factor: 2500,
		}))
	}
}

func newTargetCollection(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "collection.anki2")
	target, err := collectiontest.Create(path)
	require.NoError(t, err)
	require.NoError(t, target.Close())
	return path
}

func readDecksBlob(t *testing.T, path string) map[string]map[string]any {
	t.Helper()
	return readBlobColumn(t, path, "decks")
}

func readModelsBlob(t *testing.T, path string) map[string]map[string]any {
	t.Helper()
	return readBlobColumn(t, path, "models")
}

func readBlobColumn(t *testing.T, path, column string) map[string]map[string]any {
	t.Helper()

	db, err := sql.Open("sqlite3", path+"?mode=ro")
	require.NoError(t, err)
	defer db.Close()

	var raw string
	require.NoError(t, db.QueryRow("SELECT "+column+" FROM col").Scan(&raw))

	var blob map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &blob))
	return blob
}

func TestMerge_ImportsFreshDeck(t *testing.T) {
	sourcePath := filepath.Join(t.TempDir(), "source.anki21")
	buildSourcePackage(t, sourcePath, "Demo")
	targetPath := newTargetCollection(t)

	imported, err := Merge(targetPath, sourcePath)
	require.NoError(t, err)
	assert.Equal(t, 3, imported)

	target, err := collectiontest.Open(targetPath)
	require.NoError(t, err)
	defer target.Close()

	notes, err := target.Count("notes")
	require.NoError(t, err)
	assert.Equal(t, 3, notes)

	cards, err := target.Count("cards")
	require.NoError(t, err)
	assert.Equal(t, 3, cards)

	deckNames := []string{}
	for _, raw := range readDecksBlob(t, targetPath) {
		deckNames = append(deckNames, raw["name"].(string))
	}
	assert.ElementsMatch(t, []string{"Default", "Demo"}, deckNames)

	models := readModelsBlob(t, targetPath)
	require.Len(t, models, 1)
	for _, raw := range models {
		assert.Equal(t, "Basic", raw["name"])
	}
}

func TestMerge_SecondRunImportsNothing(t *testing.T) {
	sourcePath := filepath.Join(t.TempDir(), "source.anki21")
	buildSourcePackage(t, sourcePath, "Demo")
	targetPath := newTargetCollection(t)

	imported, err := Merge(targetPath, sourcePath)
	require.NoError(t, err)
	require.Equal(t, 3, imported)

	imported, err = Merge(targetPath, sourcePath)
	require.NoError(t, err)
	assert.Equal(t, 0, imported)

	target, err := collectiontest.Open(targetPath)
	require.NoError(t, err)
	defer target.Close()

	notes, err := target.Count("notes")
	require.NoError(t, err)
	assert.Equal(t, 3, notes)

	cards, err := target.Count("cards")
	require.NoError(t, err)
	assert.Equal(t, 3, cards)

	decks := readDecksBlob(t, targetPath)
	assert.Len(t, decks, 2)
}

func TestMerge_DuplicateGuidKeepsTargetContent(t *testing.T) {
	sourcePath := filepath.Join(t.TempDir(), "source.anki21")
	buildSourcePackage(t, sourcePath, "Demo")
	targetPath := newTargetCollection(t)

	existing, err := collectiontest.Open(targetPath)
	require.NoError(t, err)
	require.NoError(t, existing.AddNotetype(50, "Basic"))
	require.NoError(t, existing.AddNote(entities.Note{
		ID:         500,
		GUID:       "Demo-guid-a",
		NotetypeID: 50,
		Fields:     "edited front" + entities.FieldSeparator + "edited back",
	}))
	require.NoError(t, existing.AddCard(entities.Card{
		ID:     500,
		NoteID: 500,
		DeckID: 1,
		Ord:    0,
	}))
	require.NoError(t, existing.Close())

	imported, err := Merge(targetPath, sourcePath)
	require.NoError(t, err)
	assert.Equal(t, 2, imported, "card of the duplicated note must be skipped")

	db, err := sql.Open("sqlite3", targetPath+"?mode=ro")
	require.NoError(t, err)
	defer db.Close()

	var fields string
	require.NoError(t, db.QueryRow("SELECT flds FROM notes WHERE guid = ?", "Demo-guid-a").Scan(&fields))
	assert.Equal(t, "edited front"+entities.FieldSeparator+"edited back", fields,
		"the student's edited note must survive a re-injection")

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM notes WHERE guid = ?", "Demo-guid-a").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMerge_OverlappingIDsAreRemapped(t *testing.T) {
	sourcePath := filepath.Join(t.TempDir(), "source.anki21")
	buildSourcePackage(t, sourcePath, "Demo")
	targetPath := newTargetCollection(t)

	existing, err := collectiontest.Open(targetPath)
	require.NoError(t, err)
	require.NoError(t, existing.AddNotetype(50, "Cloze"))
	// Same row ids as the source, different identity.
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, existing.AddNote(entities.Note{
			ID:         i,
			GUID:       "target-guid-" + string(rune('a'+i-1)),
			NotetypeID: 50,
			Fields:     "existing",
		}))
		require.NoError(t, existing.AddCard(entities.Card{
			ID:     i,
			NoteID: i,
			DeckID: 1,
			Ord:    0,
		}))
	}
	require.NoError(t, existing.Close())

	imported, err := Merge(targetPath, sourcePath)
	require.NoError(t, err)
	assert.Equal(t, 3, imported)

	db, err := sql.Open("sqlite3", targetPath+"?mode=ro")
	require.NoError(t, err)
	defer db.Close()

	var notes, cards int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM notes").Scan(&notes))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM cards").Scan(&cards))
	assert.Equal(t, 6, notes)
	assert.Equal(t, 6, cards)

	// Every card must point at a note that exists.
	var orphans int
	require.NoError(t, db.QueryRow(`
		SELECT COUNT(*) FROM cards
		WHERE nid NOT IN (SELECT id FROM notes)`).Scan(&orphans))
	assert.Equal(t, 0, orphans)

	// Every card must point at a deck present in the decks blob.
	decks := readDecksBlob(t, targetPath)
	rows, err := db.Query("SELECT DISTINCT did FROM cards")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var did int64
		require.NoError(t, rows.Scan(&did))
		_, ok := decks[jsonID(did).String()]
		assert.True(t, ok, "card references unknown deck %d", did)
	}
	require.NoError(t, rows.Err())
}

func TestMerge_FlagsEverythingForSync(t *testing.T) {
	sourcePath := filepath.Join(t.TempDir(), "source.anki21")
	buildSourcePackage(t, sourcePath, "Demo")
	targetPath := newTargetCollection(t)

	existing, err := collectiontest.Open(targetPath)
	require.NoError(t, err)
	require.NoError(t, existing.AddNotetype(50, "Cloze"))
	require.NoError(t, existing.AddNote(entities.Note{
		ID: 900, GUID: "acked", NotetypeID: 50, USN: 7, Fields: "x",
	}))
	require.NoError(t, existing.AddCard(entities.Card{
		ID: 900, NoteID: 900, DeckID: 1, USN: 7,
	}))
	require.NoError(t, existing.Close())

	_, err = Merge(targetPath, sourcePath)
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", targetPath+"?mode=ro")
	require.NoError(t, err)
	defer db.Close()

	var pending int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM notes WHERE usn != ?", entities.UsnPending).Scan(&pending))
	assert.Equal(t, 0, pending, "every note must carry the pending sentinel")

	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM cards WHERE usn != ?", entities.UsnPending).Scan(&pending))
	assert.Equal(t, 0, pending, "every card must carry the pending sentinel")

	var colUSN, colMod int64
	require.NoError(t, db.QueryRow("SELECT usn, mod FROM col").Scan(&colUSN, &colMod))
	assert.Equal(t, int64(entities.UsnPending), colUSN)
	assert.Greater(t, colMod, int64(0), "collection mod time must be bumped")
}

func TestMerge_DefaultDeckIsNeverDuplicated(t *testing.T) {
	sourcePath := filepath.Join(t.TempDir(), "source.anki21")
	src, err := collectiontest.Create(sourcePath)
	require.NoError(t, err)
	require.NoError(t, src.AddNotetype(1000, "Basic"))
	require.NoError(t, src.AddNote(entities.Note{
		ID: 1, GUID: "default-note", NotetypeID: 1000, Fields: "x",
	}))
	// Card parked in the source's default deck.
	require.NoError(t, src.AddCard(entities.Card{
		ID: 1, NoteID: 1, DeckID: entities.DefaultDeckID,
	}))
	require.NoError(t, src.Close())

	targetPath := newTargetCollection(t)

	imported, err := Merge(targetPath, sourcePath)
	require.NoError(t, err)
	require.Equal(t, 1, imported)

	decks := readDecksBlob(t, targetPath)
	assert.Len(t, decks, 1, "merging a source default deck must not add a second deck")
	_, hasDefault := decks["1"]
	assert.True(t, hasDefault)

	db, err := sql.Open("sqlite3", targetPath+"?mode=ro")
	require.NoError(t, err)
	defer db.Close()

	var did int64
	require.NoError(t, db.QueryRow("SELECT did FROM cards").Scan(&did))
	assert.Equal(t, int64(entities.DefaultDeckID), did)
}

func TestMerge_MatchingDeckNameReusesTargetDeck(t *testing.T) {
	sourcePath := filepath.Join(t.TempDir(), "source.anki21")
	buildSourcePackage(t, sourcePath, "Demo")
	targetPath := newTargetCollection(t)

	existing, err := collectiontest.Open(targetPath)
	require.NoError(t, err)
	require.NoError(t, existing.AddDeck(4242, "Demo"))
	require.NoError(t, existing.Close())

	_, err = Merge(targetPath, sourcePath)
	require.NoError(t, err)

	decks := readDecksBlob(t, targetPath)
	assert.Len(t, decks, 2, "existing deck must be matched by name, not cloned")

	db, err := sql.Open("sqlite3", targetPath+"?mode=ro")
	require.NoError(t, err)
	defer db.Close()

	var distinct int64
	require.NoError(t, db.QueryRow("SELECT COUNT(DISTINCT did) FROM cards").Scan(&distinct))
	assert.Equal(t, int64(1), distinct)

	var did int64
	require.NoError(t, db.QueryRow("SELECT DISTINCT did FROM cards").Scan(&did))
	assert.Equal(t, int64(4242), did)
}

func TestMerge_FailureLeavesTargetUntouched(t *testing.T) {
	sourcePath := filepath.Join(t.TempDir(), "source.anki21")
	buildSourcePackage(t, sourcePath, "Demo")

	// Break the source after the note phase would have run.
	src, err := collectiontest.Open(sourcePath)
	require.NoError(t, err)
	_, err = src.DB().Exec("DROP TABLE cards")
	require.NoError(t, err)
	require.NoError(t, src.Close())

	targetPath := newTargetCollection(t)

	existing, err := collectiontest.Open(targetPath)
	require.NoError(t, err)
	require.NoError(t, existing.AddNotetype(50, "Cloze"))
	require.NoError(t, existing.AddNote(entities.Note{
		ID: 1, GUID: "pre-existing", NotetypeID: 50, USN: 3, Fields: "x",
	}))
	require.NoError(t, existing.Close())

	_, err = Merge(targetPath, sourcePath)
	require.Error(t, err)

	var mergeErr *MergeError
	require.True(t, errors.As(err, &mergeErr))
	assert.Equal(t, "cards", mergeErr.Phase)

	db, err := sql.Open("sqlite3", targetPath+"?mode=ro")
	require.NoError(t, err)
	defer db.Close()

	var notes int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM notes").Scan(&notes))
	assert.Equal(t, 1, notes, "rolled back merge must not leave partial notes behind")

	var usn int64
	require.NoError(t, db.QueryRow("SELECT usn FROM notes").Scan(&usn))
	assert.Equal(t, int64(3), usn, "rolled back merge must not flip usn markers")

	decks := readDecksBlob(t, targetPath)
	assert.Len(t, decks, 1, "rolled back merge must not register the new deck")
}

func TestMerge_NotetypeIDCollisionGetsFreshID(t *testing.T) {
	sourcePath := filepath.Join(t.TempDir(), "source.anki21")
	src, err := collectiontest.Create(sourcePath)
	require.NoError(t, err)
	require.NoError(t, src.AddNotetype(1000, "Basic"))
	require.NoError(t, src.Close())

	targetPath := newTargetCollection(t)
	existing, err := collectiontest.Open(targetPath)
	require.NoError(t, err)
	// Same id, different name: must not be overwritten.
	require.NoError(t, existing.AddNotetype(1000, "Cloze"))
	require.NoError(t, existing.Close())

	_, err = Merge(targetPath, sourcePath)
	require.NoError(t, err)

	models := readModelsBlob(t, targetPath)
	require.Len(t, models, 2)

	names := map[string]bool{}
	for _, raw := range models {
		names[raw["name"].(string)] = true
	}
	assert.True(t, names["Basic"])
	assert.True(t, names["Cloze"])
}
