package feeds

import (
	"net/http"

	"github.com/mmcdole/gofeed"
	opengraph "github.com/otiai10/opengraph/v2"

	"github.com/feedinbox/feedinbox/models"
)

// requestMetadata requests the entry's web page to get an image from the
// page's OpenGraph metadata
// This method updates the value of the entry argument as a side effect
// Errors are logged only and then ignored
func (f *Feeds) requestMetadata(entry *models.Entry) {
	if entry.Link == "" {
		return
	}

	// Wrapping this in a method that returns an error
	err := f.doRequestMetadata(entry)
	if err != nil {
		f.log.Warnf("Error while requesting the page %s: %s", entry.Link, err)
		return
	}
}

func (f *Feeds) doRequestMetadata(entry *models.Entry) (err error) {
	// Request the web page
	req, err := http.NewRequest("GET", entry.Link, nil)
	if err != nil {
		return err
	}
	if f.ctx != nil {
		req = req.WithContext(f.ctx)
	}
	req.Header.Set("User-Agent", "FeedInbox/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Status code
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gofeed.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	// Read the response and extract the OpenGraph tags
	ogp := &opengraph.OpenGraph{}
	err = ogp.Parse(resp.Body)
	if err != nil {
		return err
	}
	err = ogp.ToAbs()
	if err != nil {
		return err
	}

	// Keep the first image from the page's metadata
	if len(ogp.Image) > 0 {
		entry.ImageURL = ogp.Image[0].URL
	}

	return nil
}
