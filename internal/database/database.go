package database

import (
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ankilms/deckbridge/internal/entities"
)

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate all entities
	err = db.AutoMigrate(
		&entities.RegisteredDeck{},
		&entities.DeckProgress{},
		&entities.ReviewEntry{},
		&entities.DailyStats{},
		&entities.InjectionRecord{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return &Database{DB: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RegisterDeck creates a deck registry entry, or bumps the version and
// blob id of an existing one with the same title.
func (d *Database) RegisterDeck(title, blobID string) (*entities.RegisteredDeck, error) {
	var deck entities.RegisteredDeck
	result := d.DB.Where("title = ?", title).First(&deck)
	if result.Error == gorm.ErrRecordNotFound {
		deck = entities.RegisteredDeck{Title: title, Version: 1, BlobID: blobID}
		if err := d.DB.Create(&deck).Error; err != nil {
			return nil, err
		}
		return &deck, nil
	} else if result.Error != nil {
		return nil, result.Error
	}

	deck.Version++
	deck.BlobID = blobID
	if err := d.DB.Save(&deck).Error; err != nil {
		return nil, err
	}
	return &deck, nil
}

func (d *Database) GetDeckByTitle(title string) (*entities.RegisteredDeck, error) {
	var deck entities.RegisteredDeck
	err := d.DB.Where("title = ?", title).First(&deck).Error
	if err != nil {
		return nil, err
	}
	return &deck, nil
}

func (d *Database) GetAllDecks() ([]entities.RegisteredDeck, error) {
	var decks []entities.RegisteredDeck
	err := d.DB.Find(&decks).Error
	return decks, err
}

// DeckTitles returns the set of registered deck titles. The analytics
// reader uses it to filter out reviews from personal, non-assigned
// decks.
func (d *Database) DeckTitles() (map[string]bool, error) {
	var titles []string
	if err := d.DB.Model(&entities.RegisteredDeck{}).Pluck("title", &titles).Error; err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(titles))
	for _, title := range titles {
		set[title] = true
	}
	return set, nil
}
