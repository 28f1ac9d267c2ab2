// Package media restores a package's media payloads into a student's
// collection.media directory. The .apkg format stores media under
// numeric filenames at the archive root plus a manifest mapping them
// to real names; copying must use the real names or the client reports
// missing media even though the files exist.
package media

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ankilms/deckbridge/internal/entities"
)

// Sync copies every manifest entry that exists in extractDir into
// mediaDir under its real filename. Missing or uncopyable files are
// logged and skipped; a media problem never fails an injection.
// Returns the number of files copied.
func Sync(extractDir string, manifest entities.MediaManifest, mediaDir string) (int, error) {
	if len(manifest) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create media directory %s: %w", mediaDir, err)
	}

	copied := 0
	for numericName, realName := range manifest {
		sourcePath := filepath.Join(extractDir, numericName)
		if _, err := os.Stat(sourcePath); os.IsNotExist(err) {
			log.Printf("Media payload %s (%s) missing from package, skipping", numericName, realName)
			continue
		}

		if err := copyFile(sourcePath, filepath.Join(mediaDir, realName)); err != nil {
			log.Printf("Failed to copy media %s: %v", realName, err)
			continue
		}
		copied++
	}

	log.Printf("Copied %d/%d media files to %s", copied, len(manifest), mediaDir)
	return copied, nil
}

// MarkCollectionDirty flags the collection's change-sequence marker so
// the sync protocol picks up media changes on the next sync.
func MarkCollectionDirty(collectionPath string) error {
	db, err := sql.Open("sqlite3", collectionPath)
	if err != nil {
		return fmt.Errorf("failed to open collection: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec("UPDATE col SET usn = ?", entities.UsnPending); err != nil {
		return fmt.Errorf("failed to flag collection media for sync: %w", err)
	}
	return nil
}

// MirrorToWebDir copies media into a web-servable directory for in-app
// preview. This is a best-effort side channel: every failure is logged
// and swallowed. Files already present and at least as new as the
// source are left alone. Returns the number of files mirrored.
func MirrorToWebDir(mediaDir, webDir string) int {
	if webDir == "" {
		return 0
	}
	if err := os.MkdirAll(webDir, 0o755); err != nil {
		log.Printf("Failed to create web media directory %s: %v", webDir, err)
		return 0
	}

	entries, err := os.ReadDir(mediaDir)
	if err != nil {
		log.Printf("Failed to read media directory %s: %v", mediaDir, err)
		return 0
	}

	mirrored := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		sourcePath := filepath.Join(mediaDir, entry.Name())
		destPath := filepath.Join(webDir, entry.Name())

		sourceInfo, err := entry.Info()
		if err != nil {
			continue
		}
		if destInfo, err := os.Stat(destPath); err == nil && !destInfo.ModTime().Before(sourceInfo.ModTime()) {
			continue
		}

		if err := copyFile(sourcePath, destPath); err != nil {
			log.Printf("Failed to mirror media %s: %v", entry.Name(), err)
			continue
		}
		mirrored++
	}

	if mirrored > 0 {
		log.Printf("Mirrored %d media files to %s", mirrored, webDir)
	}
	return mirrored
}

func copyFile(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
