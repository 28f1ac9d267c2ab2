package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/ankilms/deckbridge/internal/injector"
	"github.com/ankilms/deckbridge/internal/storage"
)

// InjectDeckTask injects one stored deck package into a batch of
// student collections off the request path.
type InjectDeckTask struct {
	DeckTitle   string   `json:"deck_title"`
	BlobID      string   `json:"blob_id"`
	StudentKeys []string `json:"student_keys"`
}

// Config returns the queue configuration for deck injection tasks.
// Injections are retry-safe: a failed merge never commits, and
// re-merging an already-injected deck is suppressed by guid/ordinal
// dedup.
func (t InjectDeckTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "inject_deck",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     5 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// InjectDeckProcessor creates a processor function for InjectDeckTask.
func InjectDeckProcessor(blobs storage.Client, inj *injector.Injector, downloadTimeout time.Duration) backlite.QueueProcessor[InjectDeckTask] {
	return func(ctx context.Context, task InjectDeckTask) error {
		if downloadTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, downloadTimeout)
			defer cancel()
		}

		content, err := storage.DownloadAll(ctx, blobs, task.BlobID)
		if err != nil {
			return fmt.Errorf("fetch deck %q: %w", task.DeckTitle, err)
		}

		results, err := inj.InjectPackage(task.DeckTitle, content, task.StudentKeys)
		if err != nil {
			return fmt.Errorf("inject deck %q: %w", task.DeckTitle, err)
		}

		succeeded := 0
		for _, result := range results {
			if result.Success() {
				succeeded++
			}
		}
		log.Printf("[TASK] Injected deck %q: %d/%d students succeeded",
			task.DeckTitle, succeeded, len(results))

		return nil
	}
}

// NewInjectDeckQueue creates a backlite queue for deck injection tasks.
func NewInjectDeckQueue(blobs storage.Client, inj *injector.Injector, downloadTimeout time.Duration) backlite.Queue {
	return backlite.NewQueue(InjectDeckProcessor(blobs, inj, downloadTimeout))
}
