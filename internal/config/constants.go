package config

import "path/filepath"

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the LMS datastore
	DefaultDatabasePath = "./deckbridge.db"

	// DefaultAnkiDataPath is where the sync server keeps per-student
	// collection directories
	DefaultAnkiDataPath = "/anki_data"
)

// Per-student layout inside the sync server's data directory
const (
	// CollectionFileName is the collection database inside a student's
	// data directory
	CollectionFileName = "collection.anki2"

	// MediaDirName is the media directory next to the collection
	MediaDirName = "collection.media"
)

// CollectionPath returns the path to a student's collection database.
// The student key (an email-equivalent stable string) doubles as the
// directory name, matching the sync server's layout.
func CollectionPath(dataRoot, studentKey string) string {
	return filepath.Join(dataRoot, studentKey, CollectionFileName)
}

// MediaDir returns the path to a student's media directory.
func MediaDir(dataRoot, studentKey string) string {
	return filepath.Join(dataRoot, studentKey, MediaDirName)
}
