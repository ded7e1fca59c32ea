package feeds

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/mmcdole/gofeed"

	"github.com/feedinbox/feedinbox/models"
	"github.com/feedinbox/feedinbox/store"
)

// Timeout for HTTP requests; also bounds how long a single slow feed can
// block the rest of a refresh
const requestTimeout = 20 * time.Second

// FeedError reports a fetch or parse failure for a single feed
type FeedError struct {
	Url string
	Err error
}

func (e FeedError) Error() string {
	return "feed " + e.Url + ": " + e.Err.Error()
}

func (e FeedError) Unwrap() error {
	return e.Err
}

// RefreshResult is the message delivered on the update channel after a
// queued refresh completes
type RefreshResult struct {
	Unread   []models.UnreadEntry
	Failures []FeedError
	Err      error
}

// Feeds is the coordinator that bridges the external fetcher to the entry
// store: it decides what identifies an item and merges fetched items into
// the store idempotently
type Feeds struct {
	ctx           context.Context
	log           *log.Entry
	store         *store.Store
	fetcher       Fetcher
	client        *http.Client
	semaphore     chan int
	waiting       chan int
	updateCh      chan<- RefreshResult
	fetchMetadata bool
}

// Init the object
func (f *Feeds) Init(ctx context.Context, st *store.Store) error {
	if st == nil {
		return errors.New("store is required")
	}
	f.ctx = ctx
	f.store = st

	// Init the logger
	f.log = log.WithField("component", "feeds")

	// Init the refresh semaphore and waiting channels
	f.semaphore = make(chan int, 1)
	f.waiting = make(chan int, 1)

	// Init the HTTP client
	f.client = &http.Client{
		Timeout: requestTimeout,
	}

	if f.fetcher == nil {
		f.fetcher = &HTTPFetcher{Client: f.client}
	}

	return nil
}

// SetFetcher replaces the fetcher used to request feeds
func (f *Feeds) SetFetcher(fetcher Fetcher) {
	f.fetcher = fetcher
}

// SetUpdateChan sets the channel that receives the results of queued refreshes
func (f *Feeds) SetUpdateChan(ch chan<- RefreshResult) {
	f.updateCh = ch
}

// SetMetadataEnabled toggles OpenGraph metadata requests for new entries
func (f *Feeds) SetMetadataEnabled(enabled bool) {
	f.fetchMetadata = enabled
}

// Refresh fetches every known feed, merges the items into the store, and
// returns a single snapshot of the unread entries.
// Ingestion runs first for all feeds and the unread query runs exactly once
// at the end, so the returned list never reflects a partial fetch. A feed
// whose fetch fails is reported in the failures slice and skipped; a storage
// failure aborts the refresh.
func (f *Feeds) Refresh() ([]models.UnreadEntry, []FeedError, error) {
	f.log.Info("Started refreshing feeds")

	feedList, err := f.store.ListFeeds()
	if err != nil {
		return nil, nil, err
	}

	failures := make([]FeedError, 0)
	for i := range feedList {
		feed := &feedList[i]

		parsed, err := f.fetcher.Fetch(f.ctx, feed)
		if err != nil {
			// One bad feed must never abort the whole refresh
			f.log.Warnf("Error while fetching feed %s: %s", feed.Url, err)
			failures = append(failures, FeedError{Url: feed.Url, Err: err})
			continue
		}
		// Not modified since the last fetch
		if parsed == nil {
			continue
		}

		err = f.ingest(feed, parsed)
		if err != nil {
			return nil, failures, err
		}
	}

	unread, err := f.store.ListUnreadEntries()
	if err != nil {
		return nil, failures, err
	}

	f.log.Infof("Done refreshing feeds: %d unread, %d failed", len(unread), len(failures))
	return unread, failures, nil
}

// Merges the items of one parsed feed into the store
func (f *Feeds) ingest(feed *models.Feed, parsed *gofeed.Feed) error {
	added := 0
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}

		entry := normalizeItem(feed.ID, item)
		if entry.ID == "" {
			// No guid, link or date: nothing stable to key on
			f.log.Warnf("Skipping entry without identity in feed %s", feed.Url)
			continue
		}

		// Metadata is requested for entries we haven't seen before, since an
		// existing entry is never updated
		if f.fetchMetadata {
			exists, err := f.store.EntryExists(entry.ID)
			if err != nil {
				return err
			}
			if !exists {
				f.requestMetadata(entry)
			}
		}

		inserted, err := f.store.AddEntry(entry)
		if err != nil {
			return err
		}
		if inserted {
			added++
		}
	}

	// Backfill the title from the parsed feed if we only have the URL
	if parsed.Title != "" && feed.Title == feed.Url {
		feed.Title = parsed.Title
	}
	err := f.store.UpdateFeedFetched(feed)
	if err != nil {
		return err
	}

	f.log.Infof("Found %d new entries in feed %d", added, feed.ID)
	return nil
}

// QueueRefresh queues a refresh of the feeds in background
func (f *Feeds) QueueRefresh() {
	// The channel has a capacity of 1, which means that there can only be 1 running and one queued
	// This is so we don't have refreshes running in parallel, nor a situation in which refreshes are queued faster than they are completed
	select {
	// If there's already one request waiting, then return right away
	case f.waiting <- 1:
		break
	default:
		return
	}

	// Acquire the lock now (wait till we can) and then release the waiting lock
	f.semaphore <- 1
	<-f.waiting

	// Refresh the feeds in background
	// This is so the QueueRefresh method can return
	go func() {
		unread, failures, err := f.Refresh()
		if err != nil {
			f.log.Error("Error while refreshing feeds: ", err)
		}
		if f.updateCh != nil {
			f.updateCh <- RefreshResult{
				Unread:   unread,
				Failures: failures,
				Err:      err,
			}
		}

		// Release the lock
		<-f.semaphore
	}()
}
