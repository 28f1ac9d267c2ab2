package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/ankilms/deckbridge/internal/analytics"
	"github.com/ankilms/deckbridge/internal/config"
	"github.com/ankilms/deckbridge/internal/database"
	"github.com/ankilms/deckbridge/internal/scheduler"
)

// RevlogSyncCommand mirrors review history from student collections
// into the LMS datastore.
type RevlogSyncCommand struct {
	Student   string
	DataRoot  string
	DBPath    string
	BatchSize int
}

// NewRevlogSyncCommand creates a new RevlogSyncCommand
func NewRevlogSyncCommand() *RevlogSyncCommand {
	return &RevlogSyncCommand{}
}

// ParseFlags parses command line flags
func (cmd *RevlogSyncCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("revlog-sync", flag.ExitOnError)

	fs.StringVar(&cmd.Student, "student", "", "Student key to sync (default: all students)")
	fs.StringVar(&cmd.DataRoot, "data-root", config.DefaultAnkiDataPath, "Sync server data directory")
	fs.StringVar(&cmd.DBPath, "db", config.DefaultDatabasePath, "Path to the LMS datastore")
	fs.IntVar(&cmd.BatchSize, "batch-size", analytics.DefaultBatchSize, "Max revlog rows per student")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s revlog-sync [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Mirror new Anki review history into the LMS datastore.\n")
		fmt.Fprintf(os.Stderr, "Reads collections in non-blocking snapshot mode; safe to run\n")
		fmt.Fprintf(os.Stderr, "while the sync server is active.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

// Run executes the revlog-sync command
func (cmd *RevlogSyncCommand) Run() error {
	db, err := database.NewDatabase(cmd.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	reader := analytics.NewReader(cmd.DataRoot, cmd.BatchSize, db)

	if cmd.Student != "" {
		count := reader.SyncNewReviews(cmd.Student)
		fmt.Printf("Mirrored %d new review entries for %s\n", count, cmd.Student)
		return nil
	}

	revlogScheduler := scheduler.NewRevlogSyncScheduler(cmd.DataRoot, "", reader)
	revlogScheduler.TriggerSync()
	return nil
}
