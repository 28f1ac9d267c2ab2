package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/ankilms/deckbridge/internal/syncusers"
)

// SyncUserCommand manages users in the sync server's credential file.
type SyncUserCommand struct {
	Action   string
	Email    string
	Password string
	EnvFile  string
}

// NewSyncUserCommand creates a new SyncUserCommand
func NewSyncUserCommand() *SyncUserCommand {
	return &SyncUserCommand{}
}

// ParseFlags parses command line flags
func (cmd *SyncUserCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sync-user", flag.ExitOnError)

	fs.StringVar(&cmd.Action, "action", "list", "One of: add, passwd, delete, list")
	fs.StringVar(&cmd.Email, "email", "", "User email (required for add/passwd/delete)")
	fs.StringVar(&cmd.Password, "password", "", "Password (required for add/passwd)")
	fs.StringVar(&cmd.EnvFile, "env-file", "/app/sync_users.env", "Sync server credential file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sync-user [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Manage Anki sync server users.\n")
		fmt.Fprintf(os.Stderr, "Restart the sync server afterwards so it reloads the file.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	switch cmd.Action {
	case "add", "passwd":
		if cmd.Email == "" || cmd.Password == "" {
			return fmt.Errorf("-email and -password are required for %s", cmd.Action)
		}
	case "delete":
		if cmd.Email == "" {
			return fmt.Errorf("-email is required for delete")
		}
	case "list":
	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}

	return nil
}

// Run executes the sync-user command
func (cmd *SyncUserCommand) Run() error {
	directory := syncusers.NewDirectory(cmd.EnvFile, nil)

	switch cmd.Action {
	case "add":
		return directory.CreateUser(cmd.Email, cmd.Password)
	case "passwd":
		return directory.ChangePassword(cmd.Email, cmd.Password)
	case "delete":
		return directory.DeleteUser(cmd.Email)
	case "list":
		emails, err := directory.ListUsers()
		if err != nil {
			return err
		}
		for _, email := range emails {
			fmt.Println(email)
		}
		return nil
	}

	return nil
}
