// Package injector sequences package extraction, collection merge and
// media restore per student, isolating per-student failures so one bad
// collection never aborts a batch.
package injector

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ankilms/deckbridge/internal/apkg"
	"github.com/ankilms/deckbridge/internal/collection"
	"github.com/ankilms/deckbridge/internal/config"
	"github.com/ankilms/deckbridge/internal/database"
	"github.com/ankilms/deckbridge/internal/database/progress"
	"github.com/ankilms/deckbridge/internal/entities"
	"github.com/ankilms/deckbridge/internal/locks"
	"github.com/ankilms/deckbridge/internal/media"
)

// studentFacingFailure is what students see when a merge fails; the
// operator-facing detail goes to the log. A failed merge leaves the
// collection untouched, so retrying on the next sync is safe.
const studentFacingFailure = "could not update this deck; will retry on next sync"

// Config carries everything the orchestrator needs. It is passed in
// explicitly at construction time; nothing here reads ambient global
// state.
type Config struct {
	// DataRoot is the sync server's data directory with per-student
	// collection directories.
	DataRoot string

	// WebMediaRoot enables best-effort mirroring of student media into
	// a web-servable tree when non-empty.
	WebMediaRoot string

	// Locks serializes writers per student. A shared instance must be
	// used by every injector touching the same data root.
	Locks *locks.Keyed

	// Store persists injection audit records when non-nil.
	Store *database.Database
}

type Injector struct {
	cfg          Config
	locks        *locks.Keyed
	progressRepo *progress.Repository
}

func New(cfg Config) *Injector {
	if cfg.Locks == nil {
		cfg.Locks = locks.New()
	}

	inj := &Injector{cfg: cfg, locks: cfg.Locks}
	if cfg.Store != nil {
		inj.progressRepo = progress.NewRepository(cfg.Store.DB)
	}
	return inj
}

// StudentHasCollection reports whether the student has completed at
// least one normal sync, i.e. a collection file exists to merge into.
func (i *Injector) StudentHasCollection(studentKey string) bool {
	_, err := os.Stat(config.CollectionPath(i.cfg.DataRoot, studentKey))
	return err == nil
}

// InjectPackage injects one .apkg payload into every listed student's
// collection. The archive is extracted once; merge and media restore
// run per student under that student's advisory lock. Package-level
// problems (bad zip, missing database) fail the whole call; everything
// past extraction is collected per student.
func (i *Injector) InjectPackage(deckTitle string, content []byte, studentKeys []string) ([]entities.InjectionResult, error) {
	pkg, err := apkg.Open(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open package for deck %q: %w", deckTitle, err)
	}
	defer pkg.Cleanup()

	results := make([]entities.InjectionResult, 0, len(studentKeys))
	for _, studentKey := range studentKeys {
		result := i.injectStudent(pkg, studentKey)
		results = append(results, result)

		log.Printf("Deck injection %q for %s: %s - %s", deckTitle, studentKey, result.Status, result.Message)
		if i.progressRepo != nil {
			if err := i.progressRepo.RecordInjection(result, deckTitle); err != nil {
				log.Printf("Failed to record injection outcome for %s: %v", studentKey, err)
			}
		}
	}

	return results, nil
}

// InjectStudent injects an already-opened package into one student's
// collection.
func (i *Injector) injectStudent(pkg *apkg.Package, studentKey string) entities.InjectionResult {
	result := entities.InjectionResult{StudentKey: studentKey}

	if !i.StudentHasCollection(studentKey) {
		result.Status = entities.InjectionStatusNotYetSynced
		result.Message = fmt.Sprintf("student %s has not synced yet", studentKey)
		return result
	}

	// Exclusive per-student lock for the whole merge + media window:
	// a concurrent writer would compute the same id offset and collide.
	release := i.locks.Acquire(studentKey)
	defer release()

	collectionPath := config.CollectionPath(i.cfg.DataRoot, studentKey)

	imported, err := collection.Merge(collectionPath, pkg.SourceDBPath)
	if err != nil {
		log.Printf("Merge failed for %s: %v", studentKey, err)
		result.Status = entities.InjectionStatusFailed
		result.Message = studentFacingFailure
		return result
	}
	result.CardsImported = imported

	mediaDir := config.MediaDir(i.cfg.DataRoot, studentKey)
	copied, err := media.Sync(pkg.ExtractDir, pkg.Manifest, mediaDir)
	if err != nil {
		// Media problems never fail an injection; the cards are in.
		log.Printf("Media sync failed for %s: %v", studentKey, err)
	}
	result.MediaCopied = copied

	if copied > 0 {
		if err := media.MarkCollectionDirty(collectionPath); err != nil {
			log.Printf("Failed to flag media changes for %s: %v", studentKey, err)
		}
	}

	if i.cfg.WebMediaRoot != "" {
		webDir := filepath.Join(i.cfg.WebMediaRoot, "students", studentKey, config.MediaDirName)
		media.MirrorToWebDir(mediaDir, webDir)
	}

	result.Status = entities.InjectionStatusImported
	result.Message = fmt.Sprintf("imported %d cards, %d media files", imported, copied)
	return result
}
