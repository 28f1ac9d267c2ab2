// Package syncusers manages the credential file the Anki sync server
// loads its users from: numbered SYNC_USER{n}=email:password lines in
// an env file. The sync server only re-reads the file on restart, so
// callers supply a restart hook; process or container control itself
// stays outside this package.
package syncusers

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var ErrUserNotFound = errors.New("sync user not found")

const userKeyPrefix = "SYNC_USER"

var fileHeader = []string{
	"# Anki Sync Server Users",
	"# Format: SYNC_USER{n}=email:password",
	"# Auto-managed by LMS - DO NOT EDIT MANUALLY",
	"",
}

// RestartFunc is invoked after every file change so the sync server
// picks the new credentials up. A nil hook means the operator restarts
// manually.
type RestartFunc func() error

// Directory is the narrow user-provisioning interface over the env
// file. All mutations are serialized internally.
type Directory struct {
	envFile string
	restart RestartFunc

	mu sync.Mutex
}

func NewDirectory(envFile string, restart RestartFunc) *Directory {
	return &Directory{envFile: envFile, restart: restart}
}

// CreateUser adds a user. Creating an existing user is a no-op so
// provisioning is retry-safe.
func (d *Directory) CreateUser(email, password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	users, err := d.readUsers()
	if err != nil {
		return err
	}

	for _, cred := range users {
		if strings.HasPrefix(cred, email+":") {
			log.Printf("Sync user %s already exists", email)
			return nil
		}
	}

	next := 1
	for users[userKey(next)] != "" {
		next++
	}
	users[userKey(next)] = email + ":" + password

	if err := d.writeUsers(users); err != nil {
		return err
	}

	log.Printf("Created sync user: %s", email)
	return d.notifyRestart(email)
}

// ChangePassword updates a user's password, creating the user if it
// does not exist yet.
func (d *Directory) ChangePassword(email, newPassword string) error {
	d.mu.Lock()
	users, err := d.readUsers()
	if err != nil {
		d.mu.Unlock()
		return err
	}

	found := false
	for key, cred := range users {
		if strings.HasPrefix(cred, email+":") {
			users[key] = email + ":" + newPassword
			found = true
			break
		}
	}

	if !found {
		d.mu.Unlock()
		return d.CreateUser(email, newPassword)
	}

	if err := d.writeUsers(users); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	log.Printf("Changed password for sync user: %s", email)
	return d.notifyRestart(email)
}

// DeleteUser removes a user from the file. The student's collection
// directory is left alone; only credentials are withdrawn.
func (d *Directory) DeleteUser(email string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	users, err := d.readUsers()
	if err != nil {
		return err
	}

	found := false
	for key, cred := range users {
		if strings.HasPrefix(cred, email+":") {
			delete(users, key)
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}

	if err := d.writeUsers(users); err != nil {
		return err
	}

	log.Printf("Deleted sync user: %s", email)
	return d.notifyRestart(email)
}

// ListUsers returns the registered emails, sorted.
func (d *Directory) ListUsers() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	users, err := d.readUsers()
	if err != nil {
		return nil, err
	}

	emails := make([]string, 0, len(users))
	for _, cred := range users {
		email, _, ok := strings.Cut(cred, ":")
		if ok {
			emails = append(emails, email)
		}
	}
	sort.Strings(emails)
	return emails, nil
}

func (d *Directory) readUsers() (map[string]string, error) {
	file, err := os.Open(d.envFile)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to open sync users file: %w", err)
	}
	defer file.Close()

	users := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, userKeyPrefix) {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		users[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync users file: %w", err)
	}

	return users, nil
}

// writeUsers rewrites the whole file atomically, users sorted by
// number.
func (d *Directory) writeUsers(users map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(d.envFile), 0o755); err != nil {
		return fmt.Errorf("failed to create sync users directory: %w", err)
	}

	keys := make([]string, 0, len(users))
	for key := range users {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return userNumber(keys[i]) < userNumber(keys[j])
	})

	var builder strings.Builder
	for _, line := range fileHeader {
		builder.WriteString(line + "\n")
	}
	for _, key := range keys {
		builder.WriteString(key + "=" + users[key] + "\n")
	}

	tmpPath := d.envFile + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(builder.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write sync users file: %w", err)
	}
	return os.Rename(tmpPath, d.envFile)
}

func (d *Directory) notifyRestart(email string) error {
	if d.restart == nil {
		return nil
	}
	if err := d.restart(); err != nil {
		// The user lands in the file either way; the server just will
		// not see them until the next restart.
		log.Printf("Sync server restart failed, user %s may not be active yet: %v", email, err)
	}
	return nil
}

func userKey(n int) string {
	return userKeyPrefix + strconv.Itoa(n)
}

func userNumber(key string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(key, userKeyPrefix))
	return n
}
