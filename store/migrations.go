package store

// Migrate brings the schema to the latest version
// Safe to run on every startup: every step only creates objects that don't
// exist yet and never touches existing data.
func (s *Store) Migrate() error {
	// This is as bad as it seems, but it looked weird to use some complex tool
	// for something as simple as creating a few tables for this small app.
	return s.migrateV1()
}

func (s *Store) migrateV1() error {
	sqlStmt := `
CREATE TABLE IF NOT EXISTS feeds (
	feed_id integer primary key autoincrement,
	feed_url text not null,
	feed_title text not null,
	feed_added_at timestamp not null,
	feed_last_modified timestamp not null,
	feed_etag text not null default ''
);
CREATE UNIQUE INDEX IF NOT EXISTS feeds_feed_url ON feeds (feed_url);
CREATE TABLE IF NOT EXISTS entries (
	entry_id text primary key,
	feed_id integer not null,
	entry_title text not null default '',
	entry_link text not null default '',
	entry_published integer not null default 0,
	entry_read integer not null default 0,
	entry_audio_url text not null default '',
	entry_audio_duration integer not null default 0,
	entry_image_url text not null default ''
);
CREATE INDEX IF NOT EXISTS entries_feed_id ON entries (feed_id);
CREATE INDEX IF NOT EXISTS entries_entry_read ON entries (entry_read);
`

	_, err := s.db.Exec(sqlStmt)
	if err != nil {
		s.log.Error("Query error: ", err)
		return err
	}
	return nil
}
