package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ankilms/deckbridge/internal/config"
	"github.com/ankilms/deckbridge/internal/database"
	"github.com/ankilms/deckbridge/internal/entities"
	"github.com/ankilms/deckbridge/internal/injector"
)

// InjectCommand injects a local .apkg file into student collections
// synchronously.
type InjectCommand struct {
	ApkgPath  string
	DeckTitle string
	Students  string
	DataRoot  string
	DBPath    string
	WebMedia  string
}

// NewInjectCommand creates a new InjectCommand
func NewInjectCommand() *InjectCommand {
	return &InjectCommand{}
}

// ParseFlags parses command line flags
func (cmd *InjectCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("inject", flag.ExitOnError)

	fs.StringVar(&cmd.ApkgPath, "apkg", "", "Path to the .apkg file to inject (required)")
	fs.StringVar(&cmd.DeckTitle, "deck", "", "Deck title for logging and audit records")
	fs.StringVar(&cmd.Students, "students", "", "Comma-separated student keys (required)")
	fs.StringVar(&cmd.DataRoot, "data-root", config.DefaultAnkiDataPath, "Sync server data directory")
	fs.StringVar(&cmd.DBPath, "db", config.DefaultDatabasePath, "Path to the LMS datastore")
	fs.StringVar(&cmd.WebMedia, "web-media", "", "Web-servable media mirror root (optional)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s inject [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Inject an Anki deck package into student collections.\n\n")
		fmt.Fprintf(os.Stderr, "This command:\n")
		fmt.Fprintf(os.Stderr, "  1. Extracts the .apkg archive once\n")
		fmt.Fprintf(os.Stderr, "  2. Merges notes/cards/decks into each student's collection\n")
		fmt.Fprintf(os.Stderr, "  3. Restores media files and flags the collections for sync\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s inject -apkg ./demo.apkg -deck Demo -students alice@example.com\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s inject -apkg ./demo.apkg -students alice@example.com,bob@example.com\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.ApkgPath == "" {
		return fmt.Errorf("-apkg is required")
	}
	if cmd.Students == "" {
		return fmt.Errorf("-students is required")
	}
	if cmd.DeckTitle == "" {
		cmd.DeckTitle = cmd.ApkgPath
	}

	return nil
}

// Run executes the inject command
func (cmd *InjectCommand) Run() error {
	content, err := os.ReadFile(cmd.ApkgPath)
	if err != nil {
		return fmt.Errorf("failed to read package: %w", err)
	}

	db, err := database.NewDatabase(cmd.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	inj := injector.New(injector.Config{
		DataRoot:     cmd.DataRoot,
		WebMediaRoot: cmd.WebMedia,
		Store:        db,
	})

	students := splitStudents(cmd.Students)
	results, err := inj.InjectPackage(cmd.DeckTitle, content, students)
	if err != nil {
		return err
	}

	succeeded := 0
	for _, result := range results {
		marker := "FAIL"
		if result.Success() {
			marker = "OK"
			succeeded++
		} else if result.Status == entities.InjectionStatusNotYetSynced {
			marker = "SKIP"
		}
		fmt.Printf("  [%s] %s: %s\n", marker, result.StudentKey, result.Message)
	}
	fmt.Printf("Injected %q into %d/%d student collections\n", cmd.DeckTitle, succeeded, len(results))

	return nil
}

func splitStudents(raw string) []string {
	var students []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			students = append(students, trimmed)
		}
	}
	return students
}
