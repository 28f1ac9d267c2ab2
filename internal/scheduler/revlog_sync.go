// Package scheduler runs the periodic revlog mirror over every
// student the sync server knows about.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/ankilms/deckbridge/internal/analytics"
	"github.com/ankilms/deckbridge/internal/config"
)

// RevlogSyncScheduler manages periodic mirroring of review history.
type RevlogSyncScheduler struct {
	dataRoot string
	schedule string
	reader   *analytics.Reader

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	isSyncing  bool
	cancelFunc context.CancelFunc
}

// NewRevlogSyncScheduler creates a new scheduler instance
func NewRevlogSyncScheduler(dataRoot, schedule string, reader *analytics.Reader) *RevlogSyncScheduler {
	return &RevlogSyncScheduler{
		dataRoot: dataRoot,
		schedule: schedule,
		reader:   reader,
		cron:     cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler
func (s *RevlogSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.runSync()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule revlog sync with '%s': %w", s.schedule, err)
	}
	s.entryID = entryID

	_, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Revlog sync scheduler: started with schedule '%s'", s.schedule)
	return nil
}

// Stop halts the scheduler
func (s *RevlogSyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	s.cron.Remove(s.entryID)
	s.cron.Stop()
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning = false

	log.Printf("Revlog sync scheduler: stopped")
}

// TriggerSync runs a sync pass immediately, outside the schedule.
func (s *RevlogSyncScheduler) TriggerSync() {
	s.runSync()
}

// runSync mirrors reviews for every student with a collection on disk.
// Overlapping runs are suppressed: a slow pass simply makes the next
// tick a no-op.
func (s *RevlogSyncScheduler) runSync() {
	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		log.Printf("Revlog sync already in progress, skipping this run")
		return
	}
	s.isSyncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	students, err := s.listStudents()
	if err != nil {
		log.Printf("Revlog sync: failed to list students: %v", err)
		return
	}

	total := 0
	for _, studentKey := range students {
		total += s.reader.SyncNewReviews(studentKey)
	}
	log.Printf("Revlog sync pass complete: %d students, %d new entries", len(students), total)
}

// listStudents walks the sync server's data root; every directory with
// a collection inside is a student who has synced at least once.
func (s *RevlogSyncScheduler) listStudents() ([]string, error) {
	entries, err := os.ReadDir(s.dataRoot)
	if err != nil {
		return nil, err
	}

	var students []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(config.CollectionPath(s.dataRoot, entry.Name())); err == nil {
			students = append(students, entry.Name())
		}
	}
	return students, nil
}
