package collection

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Notetype and deck descriptors live as JSON objects inside the col
// table, keyed by stringified id. The merge only ever touches the id,
// name and usn sub-fields; everything else must round-trip verbatim,
// which is why decoding keeps numbers as json.Number instead of
// float64.

type blobMap map[string]map[string]any

func decodeBlobMap(raw string) (blobMap, error) {
	if raw == "" {
		return blobMap{}, nil
	}
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()

	var m blobMap
	if err := decoder.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		m = blobMap{}
	}
	return m, nil
}

func encodeBlobMap(m blobMap) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func blobName(raw map[string]any) string {
	name, _ := raw["name"].(string)
	return name
}

func jsonID(id int64) json.Number {
	return json.Number(strconv.FormatInt(id, 10))
}

// maxBlobID returns the largest numeric key in the map, or 0.
func maxBlobID(m blobMap) int64 {
	var max int64
	for key := range m {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		if id > max {
			max = id
		}
	}
	return max
}

// sortedBlobIDs returns the map's numeric keys ascending, so merge
// passes process descriptors in a deterministic order.
func sortedBlobIDs(m blobMap) []int64 {
	ids := make([]int64, 0, len(m))
	for key := range m {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type colQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func readColBlob(q colQuerier, column string) (blobMap, error) {
	var raw sql.NullString
	// column is one of the fixed identifiers "models" / "decks".
	if err := q.QueryRow("SELECT " + column + " FROM col LIMIT 1").Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to read col.%s: %w", column, err)
	}
	m, err := decodeBlobMap(raw.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse col.%s: %w", column, err)
	}
	return m, nil
}

// DeckNames reads the deck id to deck name mapping from a collection.
// Used by the analytics reader to resolve reviewed cards back to deck
// titles.
func DeckNames(db *sql.DB) (map[int64]string, error) {
	decks, err := readColBlob(db, "decks")
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(decks))
	for key, raw := range decks {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		names[id] = blobName(raw)
	}
	return names, nil
}
