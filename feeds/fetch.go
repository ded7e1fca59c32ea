package feeds

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Songmu/go-httpdate"
	"github.com/mmcdole/gofeed"

	"github.com/feedinbox/feedinbox/models"
)

// Fetcher retrieves and parses a feed
// Implementations may use the feed's conditional-request state (ETag and
// Last-Modified) and update it as a side effect. A nil result with a nil
// error means the feed has not changed since the last fetch.
type Fetcher interface {
	Fetch(ctx context.Context, feed *models.Feed) (*gofeed.Feed, error)
}

// HTTPFetcher requests feeds over HTTP and parses them with gofeed
// We're doing the request ourselves rather than using gofeed.ParseURL to have
// more control on the request
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch requests the feed and returns the parsed result
func (h *HTTPFetcher) Fetch(ctx context.Context, feed *models.Feed) (*gofeed.Feed, error) {
	if feed == nil || feed.Url == "" {
		return nil, errors.New("empty feed URL")
	}

	// Create the request
	req, err := http.NewRequest("GET", feed.Url, nil)
	if err != nil {
		return nil, err
	}
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	req.Header.Set("User-Agent", "FeedInbox/1.0")
	if !feed.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", feed.LastModified.Format(time.RFC1123Z))
	}
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}

	// Send the request and read the data
	client := h.Client
	if client == nil {
		client = &http.Client{
			Timeout: requestTimeout,
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Status code
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 304: not modified, so there's nothing to parse
		if resp.StatusCode == http.StatusNotModified {
			return nil, nil
		}
		return nil, gofeed.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	// Get the ETag and Last-Modified headers for the next request
	etag := resp.Header.Get("ETag")
	if etag != "" {
		feed.ETag = etag
	}
	lastModified := resp.Header.Get("Last-Modified")
	if lastModified != "" {
		d, err := httpdate.Str2Time(lastModified, nil)
		if err == nil && !d.IsZero() {
			feed.LastModified = d
		}
	}

	// Parse the feed
	fp := gofeed.NewParser()
	return fp.Parse(resp.Body)
}
