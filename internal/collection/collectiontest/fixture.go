// Package collectiontest builds minimal Anki collection databases for
// tests: the col/notes/cards/revlog tables plus the JSON deck and
// notetype blobs, with only the columns the merge and analytics code
// touch populated meaningfully.
package collectiontest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ankilms/deckbridge/internal/entities"
)

const schema = `
CREATE TABLE col (
	id     integer PRIMARY KEY,
	crt    integer NOT NULL,
	mod    integer NOT NULL,
	scm    integer NOT NULL,
	ver    integer NOT NULL,
	dty    integer NOT NULL,
	usn    integer NOT NULL,
	ls     integer NOT NULL,
	conf   text NOT NULL,
	models text NOT NULL,
	decks  text NOT NULL,
	dconf  text NOT NULL,
	tags   text NOT NULL
);
CREATE TABLE notes (
	id    integer PRIMARY KEY,
	guid  text NOT NULL,
	mid   integer NOT NULL,
	mod   integer NOT NULL,
	usn   integer NOT NULL,
	tags  text NOT NULL,
	flds  text NOT NULL,
	sfld  integer NOT NULL,
	csum  integer NOT NULL,
	flags integer NOT NULL,
	data  text NOT NULL
);
CREATE TABLE cards (
	id     integer PRIMARY KEY,
	nid    integer NOT NULL,
	did    integer NOT NULL,
	ord    integer NOT NULL,
	mod    integer NOT NULL,
	usn    integer NOT NULL,
	type   integer NOT NULL,
	queue  integer NOT NULL,
	due    integer NOT NULL,
	ivl    integer NOT NULL,
	factor integer NOT NULL,
	reps   integer NOT NULL,
	lapses integer NOT NULL,
	left   integer NOT NULL,
	odue   integer NOT NULL,
	odid   integer NOT NULL,
	flags  integer NOT NULL,
	data   text NOT NULL
);
CREATE TABLE revlog (
	id      integer PRIMARY KEY,
	cid     integer NOT NULL,
	usn     integer NOT NULL,
	ease    integer NOT NULL,
	ivl     integer NOT NULL,
	lastIvl integer NOT NULL,
	factor  integer NOT NULL,
	time    integer NOT NULL,
	type    integer NOT NULL
);
`

// Collection is a writable fixture database on disk.
type Collection struct {
	Path string
	db   *sql.DB
}

// Create initializes a fresh collection at path with empty notetypes
// and only the reserved default deck (id 1).
func Create(path string) (*Collection, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create fixture schema: %w", err)
	}

	defaultDecks := map[string]map[string]any{
		"1": {"id": 1, "name": "Default", "usn": 0},
	}
	decksJSON, _ := json.Marshal(defaultDecks)

	_, err = db.Exec(`
		INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		VALUES (1, 0, 0, 0, 11, 0, 0, 0, '{}', '{}', ?, '{}', '{}')`,
		string(decksJSON),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed col row: %w", err)
	}

	return &Collection{Path: path, db: db}, nil
}

// Open attaches to an existing fixture for inspection.
func Open(path string) (*Collection, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return &Collection{Path: path, db: db}, nil
}

func (c *Collection) Close() error {
	return c.db.Close()
}

func (c *Collection) DB() *sql.DB {
	return c.db
}

// AddNotetype registers a notetype descriptor in the col.models blob.
func (c *Collection) AddNotetype(id int64, name string) error {
	return c.addBlobEntry("models", id, name)
}

// AddDeck registers a deck descriptor in the col.decks blob.
func (c *Collection) AddDeck(id int64, name string) error {
	return c.addBlobEntry("decks", id, name)
}

func (c *Collection) addBlobEntry(column string, id int64, name string) error {
	var raw string
	if err := c.db.QueryRow("SELECT " + column + " FROM col").Scan(&raw); err != nil {
		return err
	}

	var blob map[string]map[string]any
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return err
	}
	blob[strconv.FormatInt(id, 10)] = map[string]any{"id": id, "name": name, "usn": 0}

	encoded, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	_, err = c.db.Exec("UPDATE col SET "+column+" = ?", string(encoded))
	return err
}

func (c *Collection) AddNote(n entities.Note) error {
	_, err := c.db.Exec(`
		INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.GUID, n.NotetypeID, n.Mod, n.USN,
		n.Tags, n.Fields, n.SortField, n.Checksum, n.Flags, n.Data,
	)
	return err
}

func (c *Collection) AddCard(card entities.Card) error {
	_, err := c.db.Exec(`
		INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl,
		                   factor, reps, lapses, left, odue, odid, flags, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		card.ID, card.NoteID, card.DeckID, card.Ord, card.Mod, card.USN,
		card.Type, card.Queue, card.Due, card.Interval, card.Factor, card.Reps,
		card.Lapses, card.Left, card.OriginalDue, card.OriginalDeckID, card.Flags, card.Data,
	)
	return err
}

func (c *Collection) AddReview(r entities.RevlogRow) error {
	_, err := c.db.Exec(`
		INSERT INTO revlog (id, cid, usn, ease, ivl, lastIvl, factor, time, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CardID, r.USN, r.ButtonChosen, r.Interval, r.LastInterval,
		r.EaseFactor, r.TakenMillis, r.ReviewKind,
	)
	return err
}

// Count returns the number of rows in the given table.
func (c *Collection) Count(table string) (int, error) {
	var n int
	err := c.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	return n, err
}
