package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/feedinbox/feedinbox/models"
	"github.com/feedinbox/feedinbox/utils"
)

// Error returned by AddEntry when the entry references a feed that doesn't exist
var ErrFeedNotFound = errors.New("feed_not_found")

// Store is the sole owner of the feeds and entries tables
// All operations serialize on an internal mutex so that a background refresh
// and a foreground read never interleave a partial multi-row write
type Store struct {
	db  *sqlx.DB
	log *log.Entry
	mtx sync.Mutex
}

// Open creates the Store, ensuring the folder for the database file exists
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("empty database path")
	}

	dbPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	err = utils.EnsureFolder(filepath.Dir(dbPath))
	if err != nil {
		return nil, fmt.Errorf("could not create the folder for the database: %w", err)
	}

	db, err := sqlx.Open("sqlite3", "file:"+dbPath+"?cache=shared")
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:  db,
		log: log.WithField("component", "store"),
	}
	return s, nil
}

// Close releases the underlying connection
func (s *Store) Close() error {
	return s.db.Close()
}

// AddFeed inserts a feed if its URL is not already present; adding a URL that
// exists is a no-op. An empty title defaults to the URL.
func (s *Store) AddFeed(url string, title string) error {
	if url == "" {
		return errors.New("empty feed URL")
	}
	if title == "" {
		title = url
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO feeds (feed_url, feed_title, feed_added_at, feed_last_modified, feed_etag) VALUES (?, ?, ?, ?, ?)",
		url, title, time.Now().UTC(), time.Time{}, "",
	)
	if err != nil {
		s.log.Error("Error querying the database: ", err)
		return err
	}
	return nil
}

// RemoveFeed deletes a feed and all of its entries as a single transaction
// If no feed has this URL, this is a no-op
func (s *Store) RemoveFeed(url string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		s.log.Error("Error starting a transaction: ", err)
		return err
	}
	defer tx.Rollback()

	var feedID int64
	err = tx.Get(&feedID, "SELECT feed_id FROM feeds WHERE feed_url = ?", url)
	if err != nil {
		if err == sql.ErrNoRows {
			// Nothing to remove
			return nil
		}
		s.log.Error("Error querying the database: ", err)
		return err
	}

	_, err = tx.Exec("DELETE FROM entries WHERE feed_id = ?", feedID)
	if err != nil {
		s.log.Error("Error querying the database: ", err)
		return err
	}
	_, err = tx.Exec("DELETE FROM feeds WHERE feed_id = ?", feedID)
	if err != nil {
		s.log.Error("Error querying the database: ", err)
		return err
	}

	err = tx.Commit()
	if err != nil {
		s.log.Error("Error while committing the transaction: ", err)
		return err
	}

	s.log.Infof("Removed feed %s (ID %d)", url, feedID)
	return nil
}

// ListFeeds returns all feeds in insertion order
func (s *Store) ListFeeds() ([]models.Feed, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	rows := []models.Feed{}
	err := s.db.Select(&rows, "SELECT * FROM feeds ORDER BY feed_id ASC")
	if err != nil {
		s.log.Error("Error querying the database: ", err)
		return nil, err
	}
	return rows, nil
}

// ListFeedsByRecency returns all feeds, most recently added first
// This is a presentation sort; insertion order is the store's only guarantee
func (s *Store) ListFeedsByRecency() ([]models.Feed, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	rows := []models.Feed{}
	err := s.db.Select(&rows, "SELECT * FROM feeds ORDER BY feed_added_at DESC, feed_id DESC")
	if err != nil {
		s.log.Error("Error querying the database: ", err)
		return nil, err
	}
	return rows, nil
}

// GetFeedByURL returns a feed from its URL, or nil if it's not present
func (s *Store) GetFeedByURL(url string) (*models.Feed, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	feed := &models.Feed{}
	err := s.db.Get(feed, "SELECT * FROM feeds WHERE feed_url = ?", url)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		s.log.Error("Error querying the database: ", err)
		return nil, err
	}
	return feed, nil
}

// UpdateFeedFetched persists the feed details that a refresh may have changed:
// the title (backfilled from the parsed feed) and the conditional-request state
func (s *Store) UpdateFeedFetched(feed *models.Feed) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	_, err := s.db.Exec(
		"UPDATE feeds SET feed_title = ?, feed_last_modified = ?, feed_etag = ? WHERE feed_id = ?",
		feed.Title, feed.LastModified, feed.ETag, feed.ID,
	)
	if err != nil {
		s.log.Error("Error querying the database: ", err)
		return err
	}
	return nil
}

// AddEntry inserts the entry only if no entry with its ID exists yet; an
// existing entry is never overwritten, including its read flag. Returns
// whether a row was inserted.
// Returns ErrFeedNotFound if the entry references a feed that doesn't exist.
func (s *Store) AddEntry(entry *models.Entry) (bool, error) {
	if entry == nil || entry.ID == "" {
		return false, errors.New("empty entry ID")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		s.log.Error("Error starting a transaction: ", err)
		return false, err
	}
	defer tx.Rollback()

	// Enforce referential integrity at insert time
	var feedID int64
	err = tx.Get(&feedID, "SELECT feed_id FROM feeds WHERE feed_id = ?", entry.FeedID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, ErrFeedNotFound
		}
		s.log.Error("Error querying the database: ", err)
		return false, err
	}

	res, err := tx.Exec(
		`INSERT OR IGNORE INTO entries
			(entry_id, feed_id, entry_title, entry_link, entry_published, entry_read, entry_audio_url, entry_audio_duration, entry_image_url)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		entry.ID, entry.FeedID, entry.Title, entry.Link, entry.Published, entry.AudioURL, entry.AudioDuration, entry.ImageURL,
	)
	if err != nil {
		s.log.Error("Error querying the database: ", err)
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		s.log.Error("Error getting the number of affected rows: ", err)
		return false, err
	}

	err = tx.Commit()
	if err != nil {
		s.log.Error("Error while committing the transaction: ", err)
		return false, err
	}

	return inserted > 0, nil
}

// EntryExists returns whether an entry with this ID is already stored
func (s *Store) EntryExists(id string) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var found string
	err := s.db.Get(&found, "SELECT entry_id FROM entries WHERE entry_id = ? LIMIT 1", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		s.log.Error("Error querying the database: ", err)
		return false, err
	}
	return true, nil
}

// ListUnreadEntries returns all unread entries joined with the owning feed's
// URL, most recently published first. Entries whose publication date could
// not be parsed carry the zero sentinel and sort last.
func (s *Store) ListUnreadEntries() ([]models.UnreadEntry, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	rows := []models.UnreadEntry{}
	err := s.db.Select(&rows,
		`SELECT e.entry_id, e.feed_id, e.entry_title, e.entry_link, e.entry_published, e.entry_read,
			e.entry_audio_url, e.entry_audio_duration, e.entry_image_url, f.feed_url
			FROM entries e, feeds f
			WHERE e.entry_read = 0 AND e.feed_id = f.feed_id
			ORDER BY e.entry_published DESC, e.entry_id ASC`,
	)
	if err != nil {
		s.log.Error("Error querying the database: ", err)
		return nil, err
	}
	return rows, nil
}

// CountUnread returns the number of unread entries
func (s *Store) CountUnread() (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	count := 0
	err := s.db.Get(&count, "SELECT COUNT(*) FROM entries WHERE entry_read = 0")
	if err != nil {
		s.log.Error("Error querying the database: ", err)
		return 0, err
	}
	return count, nil
}

// MarkEntryRead marks the entry as read; marking an unknown or already-read
// entry is a no-op. There is no way back to unread.
func (s *Store) MarkEntryRead(id string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	_, err := s.db.Exec("UPDATE entries SET entry_read = 1 WHERE entry_id = ?", id)
	if err != nil {
		s.log.Error("Error querying the database: ", err)
		return err
	}
	return nil
}
