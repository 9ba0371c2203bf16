package saveecobot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultURL is the public SaveEcoBot output feed.
const DefaultURL = "https://api.saveecobot.com/output.json"

// ErrFeedUnavailable is returned when the snapshot cannot be fetched or decoded.
var ErrFeedUnavailable = errors.New("feed unavailable")

// Client fetches feed snapshots over HTTP.
type Client struct {
	http *http.Client
	url  string
}

// NewClient builds a client whose requests are bounded by timeout.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		url:  url,
	}
}

// URL returns the feed location.
func (c *Client) URL() string {
	return c.url
}

// FetchSnapshot retrieves the current list of station records.
func (c *Client) FetchSnapshot(ctx context.Context) ([]StationRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFeedUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request feed: %v", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFeedUnavailable, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFeedUnavailable, err)
	}

	records, err := DecodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrFeedUnavailable, err)
	}
	return records, nil
}
