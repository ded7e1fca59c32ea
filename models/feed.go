package models

import "time"

// Model for the feeds table
type Feed struct {
	ID           int64     `db:"feed_id"`
	Url          string    `db:"feed_url"`
	Title        string    `db:"feed_title"`
	AddedAt      time.Time `db:"feed_added_at"`
	LastModified time.Time `db:"feed_last_modified"`
	ETag         string    `db:"feed_etag"`
}
