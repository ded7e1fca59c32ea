package feeds_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedinbox/feedinbox/feeds"
	"github.com/feedinbox/feedinbox/models"
	"github.com/feedinbox/feedinbox/store"
)

// stubFetcher serves canned results per feed URL
type stubFetcher struct {
	results map[string]*gofeed.Feed
	errs    map[string]error
	calls   int
}

func (sf *stubFetcher) Fetch(ctx context.Context, feed *models.Feed) (*gofeed.Feed, error) {
	sf.calls++
	if err := sf.errs[feed.Url]; err != nil {
		return nil, err
	}
	return sf.results[feed.Url], nil
}

func newTestCoordinator(t *testing.T, fetcher feeds.Fetcher) (*feeds.Feeds, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() {
		s.Close()
	})

	f := &feeds.Feeds{}
	require.NoError(t, f.Init(context.Background(), s))
	f.SetFetcher(fetcher)
	return f, s
}

func testItem(guid, title, link string, published time.Time) *gofeed.Item {
	return &gofeed.Item{
		GUID:            guid,
		Title:           title,
		Link:            link,
		Published:       published.Format(time.RFC1123Z),
		PublishedParsed: &published,
	}
}

func TestRefreshIdempotent(t *testing.T) {
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{
		results: map[string]*gofeed.Feed{
			"https://example.com/rss": {
				Title: "Example Blog",
				Items: []*gofeed.Item{
					testItem("item-1", "First", "https://example.com/1", now),
					testItem("item-2", "Second", "https://example.com/2", now.Add(-time.Hour)),
				},
			},
		},
	}
	f, s := newTestCoordinator(t, fetcher)
	require.NoError(t, s.AddFeed("https://example.com/rss", ""))

	unread, failures, err := f.Refresh()
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, unread, 2)
	assert.Equal(t, "item-1", unread[0].ID)
	assert.Equal(t, "item-2", unread[1].ID)

	// A second refresh with an unchanged result set produces no duplicates
	unread, failures, err = f.Refresh()
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Len(t, unread, 2)

	// …and never resets the read flag
	require.NoError(t, s.MarkEntryRead("item-1"))
	unread, _, err = f.Refresh()
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "item-2", unread[0].ID)
}

func TestRefreshPartialFailure(t *testing.T) {
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{
		results: map[string]*gofeed.Feed{
			"https://good.example.com/rss": {
				Title: "Good",
				Items: []*gofeed.Item{
					testItem("good-1", "Works", "https://good.example.com/1", now),
				},
			},
		},
		errs: map[string]error{
			"https://bad.example.com/rss": errors.New("connection refused"),
		},
	}
	f, s := newTestCoordinator(t, fetcher)
	require.NoError(t, s.AddFeed("https://bad.example.com/rss", ""))
	require.NoError(t, s.AddFeed("https://good.example.com/rss", ""))

	unread, failures, err := f.Refresh()
	require.NoError(t, err)

	// The failing feed is reported, the other feed's items are still there
	require.Len(t, failures, 1)
	assert.Equal(t, "https://bad.example.com/rss", failures[0].Url)
	require.Len(t, unread, 1)
	assert.Equal(t, "good-1", unread[0].ID)
}

func TestRefreshDerivedIDStable(t *testing.T) {
	// An item without a guid gets its ID derived from link and raw published
	// date; two fetch cycles must compute the same ID both times
	item := &gofeed.Item{
		Title:     "No guid",
		Link:      "https://example.com/no-guid",
		Published: "Thu, 01 Jun 2023 12:00:00 +0000",
	}
	fetcher := &stubFetcher{
		results: map[string]*gofeed.Feed{
			"https://example.com/rss": {Items: []*gofeed.Item{item}},
		},
	}
	f, s := newTestCoordinator(t, fetcher)
	require.NoError(t, s.AddFeed("https://example.com/rss", ""))

	unread, _, err := f.Refresh()
	require.NoError(t, err)
	require.Len(t, unread, 1)

	unread, _, err = f.Refresh()
	require.NoError(t, err)
	assert.Len(t, unread, 1)
	assert.Equal(t, 2, fetcher.calls)
}

func TestRefreshTitleBackfill(t *testing.T) {
	fetcher := &stubFetcher{
		results: map[string]*gofeed.Feed{
			"https://example.com/rss": {Title: "Example Blog"},
		},
	}
	f, s := newTestCoordinator(t, fetcher)
	require.NoError(t, s.AddFeed("https://example.com/rss", ""))

	_, _, err := f.Refresh()
	require.NoError(t, err)

	feed, err := s.GetFeedByURL("https://example.com/rss")
	require.NoError(t, err)
	require.NotNil(t, feed)
	assert.Equal(t, "Example Blog", feed.Title)
}

func TestRefreshKeepsCustomTitle(t *testing.T) {
	fetcher := &stubFetcher{
		results: map[string]*gofeed.Feed{
			"https://example.com/rss": {Title: "Example Blog"},
		},
	}
	f, s := newTestCoordinator(t, fetcher)
	require.NoError(t, s.AddFeed("https://example.com/rss", "My name for it"))

	_, _, err := f.Refresh()
	require.NoError(t, err)

	feed, err := s.GetFeedByURL("https://example.com/rss")
	require.NoError(t, err)
	require.NotNil(t, feed)
	assert.Equal(t, "My name for it", feed.Title)
}

func TestRefreshSkipsItemsWithoutIdentity(t *testing.T) {
	fetcher := &stubFetcher{
		results: map[string]*gofeed.Feed{
			"https://example.com/rss": {
				Items: []*gofeed.Item{
					{Title: "Nothing to key on"},
					nil,
				},
			},
		},
	}
	f, s := newTestCoordinator(t, fetcher)
	require.NoError(t, s.AddFeed("https://example.com/rss", ""))

	unread, failures, err := f.Refresh()
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Empty(t, unread)
}

func TestQueueRefreshDeliversResult(t *testing.T) {
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{
		results: map[string]*gofeed.Feed{
			"https://example.com/rss": {
				Items: []*gofeed.Item{
					testItem("item-1", "First", "https://example.com/1", now),
				},
			},
		},
	}
	f, s := newTestCoordinator(t, fetcher)
	require.NoError(t, s.AddFeed("https://example.com/rss", ""))

	ch := make(chan feeds.RefreshResult, 1)
	f.SetUpdateChan(ch)
	f.QueueRefresh()

	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		assert.Empty(t, res.Failures)
		assert.Len(t, res.Unread, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the refresh result")
	}
}
