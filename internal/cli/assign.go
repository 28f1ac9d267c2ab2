package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ankilms/deckbridge/internal/config"
	"github.com/ankilms/deckbridge/internal/database"
	"github.com/ankilms/deckbridge/internal/storage/providers/localfs"
	"github.com/ankilms/deckbridge/internal/tasks"
)

// AssignCommand uploads a deck package to the blob store, registers it
// with the LMS, and enqueues a background injection for the listed
// students.
type AssignCommand struct {
	ApkgPath  string
	DeckTitle string
	Students  string
	BlobDir   string
	DBPath    string
}

// NewAssignCommand creates a new AssignCommand
func NewAssignCommand() *AssignCommand {
	return &AssignCommand{}
}

// ParseFlags parses command line flags
func (cmd *AssignCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("assign", flag.ExitOnError)

	fs.StringVar(&cmd.ApkgPath, "apkg", "", "Path to the .apkg file to assign (required)")
	fs.StringVar(&cmd.DeckTitle, "deck", "", "Deck title to register (required)")
	fs.StringVar(&cmd.Students, "students", "", "Comma-separated student keys (required)")
	fs.StringVar(&cmd.BlobDir, "blob-dir", "./blobs", "Local blob store directory")
	fs.StringVar(&cmd.DBPath, "db", config.DefaultDatabasePath, "Path to the LMS datastore")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s assign [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Store a deck package, register it, and queue its injection.\n")
		fmt.Fprintf(os.Stderr, "A running worker (the default command) processes the queue.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.ApkgPath == "" {
		return fmt.Errorf("-apkg is required")
	}
	if cmd.DeckTitle == "" {
		return fmt.Errorf("-deck is required")
	}
	if cmd.Students == "" {
		return fmt.Errorf("-students is required")
	}

	return nil
}

// Run executes the assign command
func (cmd *AssignCommand) Run() error {
	db, err := database.NewDatabase(cmd.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	blobs, err := localfs.NewClient(cmd.BlobDir)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	file, err := os.Open(cmd.ApkgPath)
	if err != nil {
		return fmt.Errorf("failed to open package: %w", err)
	}
	defer file.Close()

	ctx := context.Background()
	blobID := filepath.Base(cmd.ApkgPath)
	if err := blobs.Upload(ctx, blobID, file); err != nil {
		return fmt.Errorf("failed to store package: %w", err)
	}

	deck, err := db.RegisterDeck(cmd.DeckTitle, blobID)
	if err != nil {
		return fmt.Errorf("failed to register deck: %w", err)
	}
	fmt.Printf("Registered deck %q (version %d, blob %s)\n", deck.Title, deck.Version, blobID)

	taskClient, err := tasks.NewClient(cmd.DBPath, tasks.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to open task queue: %w", err)
	}
	defer taskClient.Close()

	students := splitStudents(cmd.Students)
	task := tasks.InjectDeckTask{
		DeckTitle:   deck.Title,
		BlobID:      blobID,
		StudentKeys: students,
	}
	if _, err := taskClient.Add(task).Ctx(ctx).Save(); err != nil {
		return fmt.Errorf("failed to enqueue injection: %w", err)
	}

	fmt.Printf("Queued injection of %q for %d students\n", deck.Title, len(students))
	return nil
}
