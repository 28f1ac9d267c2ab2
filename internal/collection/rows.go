package collection

import (
	"database/sql"
	"fmt"

	"github.com/ankilms/deckbridge/internal/entities"
)

// readNotes loads every note row into a value struct. Field content is
// never interpreted here; the raw flds string travels through the
// merge untouched.
func readNotes(db *sql.DB) ([]entities.Note, error) {
	rows, err := db.Query(`
		SELECT id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data
		FROM notes
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []entities.Note
	for rows.Next() {
		var n entities.Note
		var tags, fields, sortField, data sql.NullString

		err := rows.Scan(
			&n.ID,
			&n.GUID,
			&n.NotetypeID,
			&n.Mod,
			&n.USN,
			&tags,
			&fields,
			&sortField,
			&n.Checksum,
			&n.Flags,
			&data,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}

		n.Tags = tags.String
		n.Fields = fields.String
		n.SortField = sortField.String
		n.Data = data.String

		notes = append(notes, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating note rows: %w", err)
	}

	return notes, nil
}

// readCards loads every card row. Scheduling state is opaque and
// copied value-for-value.
func readCards(db *sql.DB) ([]entities.Card, error) {
	rows, err := db.Query(`
		SELECT id, nid, did, ord, mod, usn, type, queue, due, ivl,
		       factor, reps, lapses, left, odue, odid, flags, data
		FROM cards
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []entities.Card
	for rows.Next() {
		var c entities.Card
		var data sql.NullString

		err := rows.Scan(
			&c.ID,
			&c.NoteID,
			&c.DeckID,
			&c.Ord,
			&c.Mod,
			&c.USN,
			&c.Type,
			&c.Queue,
			&c.Due,
			&c.Interval,
			&c.Factor,
			&c.Reps,
			&c.Lapses,
			&c.Left,
			&c.OriginalDue,
			&c.OriginalDeckID,
			&c.Flags,
			&data,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}

		c.Data = data.String

		cards = append(cards, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating card rows: %w", err)
	}

	return cards, nil
}

// maxRowID returns the largest id in the given table, or 0 when empty.
func maxRowID(tx *sql.Tx, table string) (int64, error) {
	var max sql.NullInt64
	// table is one of the fixed identifiers "notes" / "cards".
	if err := tx.QueryRow("SELECT MAX(id) FROM " + table).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to read max %s id: %w", table, err)
	}
	return max.Int64, nil
}
