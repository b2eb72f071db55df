package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Document is the JSON representation of a dataset, used both for files and
// for the remote provider.
type Document struct {
	Name         string      `json:"name,omitempty"`
	FeatureNames []string    `json:"feature_names"`
	Features     [][]float64 `json:"features"`
	Labels       []int       `json:"labels"`
}

// Client fetches dataset documents from an HTTP server.
type Client struct {
	rest *resty.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second) // default fallback
	}
	r.SetHeader("Accept", "application/json")
	return &Client{rest: r}
}

// Fetch downloads and decodes the document at url.
func (c *Client) Fetch(ctx context.Context, url string) (*Document, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dataset: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("dataset server returned %s", resp.Status())
	}

	doc := &Document{}
	if err := json.Unmarshal(resp.Body(), doc); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return doc, nil
}
