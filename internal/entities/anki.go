package entities

// UsnPending is the change-sequence sentinel the sync server looks for.
// Rows carrying it are treated as "not yet acknowledged, must sync".
const UsnPending = -1

// DefaultDeckID is the reserved deck every collection ships with.
// It is never remapped or duplicated during a merge.
const DefaultDeckID = 1

// FieldSeparator joins a note's field values inside the flds column.
const FieldSeparator = "\x1f"

// Notetype is a card schema ("model") stored as a JSON blob inside the
// collection's col table. Only ID, Name and USN are ever interpreted;
// Raw preserves the rest of the descriptor verbatim.
type Notetype struct {
	ID   int64
	Name string
	Raw  map[string]any
}

// Deck is a named grouping of cards, stored the same way as notetypes.
type Deck struct {
	ID   int64
	Name string
	Raw  map[string]any
}

// Note is one row of the notes table. Fields holds all field values
// joined by FieldSeparator and is copied verbatim; GUID is the
// cross-collection identity used for duplicate suppression.
type Note struct {
	ID         int64
	GUID       string
	NotetypeID int64
	Mod        int64
	USN        int64
	Tags       string
	Fields     string
	SortField  string
	Checksum   int64
	Flags      int64
	Data       string
}

// Card is one row of the cards table. Scheduling state (queue, type,
// due, interval, factor, reps, lapses, ...) is opaque to the merge and
// copied value-for-value.
type Card struct {
	ID             int64
	NoteID         int64
	DeckID         int64
	Ord            int64
	Mod            int64
	USN            int64
	Type           int64
	Queue          int64
	Due            int64
	Interval       int64
	Factor         int64
	Reps           int64
	Lapses         int64
	Left           int64
	OriginalDue    int64
	OriginalDeckID int64
	Flags          int64
	Data           string
}

// RevlogRow is one review-log row read from a student's live
// collection. The row id doubles as the review timestamp in
// milliseconds, which is why it is monotonically increasing and usable
// as a high-water mark.
type RevlogRow struct {
	ID           int64
	CardID       int64
	USN          int64
	ButtonChosen int64
	Interval     int64
	LastInterval int64
	EaseFactor   int64
	TakenMillis  int64
	ReviewKind   int64
}

// MediaManifest maps archive-relative numeric filenames ("0", "1", ...)
// to the real media filenames they must be restored under.
type MediaManifest map[string]string
