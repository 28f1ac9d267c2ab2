package tasks

import (
	"context"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/ankilms/deckbridge/internal/analytics"
)

// SyncRevlogTask mirrors one student's new review history into the
// datastore.
type SyncRevlogTask struct {
	StudentKey string `json:"student_key"`
}

// Config returns the queue configuration for revlog sync tasks. A
// single attempt is enough: the reader swallows failures by design and
// the next scheduled run picks up from the same high-water mark.
func (t SyncRevlogTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_revlog",
		MaxAttempts: 1,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: true,
		},
	}
}

// SyncRevlogProcessor creates a processor function for SyncRevlogTask.
func SyncRevlogProcessor(reader *analytics.Reader) backlite.QueueProcessor[SyncRevlogTask] {
	return func(ctx context.Context, task SyncRevlogTask) error {
		count := reader.SyncNewReviews(task.StudentKey)
		if count > 0 {
			log.Printf("[TASK] Mirrored %d reviews for %s", count, task.StudentKey)
		}
		return nil
	}
}

// NewSyncRevlogQueue creates a backlite queue for revlog sync tasks.
func NewSyncRevlogQueue(reader *analytics.Reader) backlite.Queue {
	return backlite.NewQueue(SyncRevlogProcessor(reader))
}
