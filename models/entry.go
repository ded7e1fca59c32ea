package models

// Model for the entries table
// The ID is the item's guid when the feed provides one, or a digest derived
// from the item's link and raw publication date otherwise. It is unique across
// all feeds, not just within one.
type Entry struct {
	ID            string `db:"entry_id"`
	FeedID        int64  `db:"feed_id"`
	Title         string `db:"entry_title"`
	Link          string `db:"entry_link"`
	Published     int64  `db:"entry_published"`
	Read          bool   `db:"entry_read"`
	AudioURL      string `db:"entry_audio_url"`
	AudioDuration int64  `db:"entry_audio_duration"`
	ImageURL      string `db:"entry_image_url"`
}

// UnreadEntry is an entry joined with the URL of the feed that owns it, as
// returned by the unread query
type UnreadEntry struct {
	Entry
	FeedUrl string `db:"feed_url"`
}
