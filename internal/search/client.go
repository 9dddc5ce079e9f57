// Package search resolves a cuisine to a small random sample of restaurant
// IDs from an OpenSearch index, and loads that index.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sungwon/dining-concierge/internal/config"
	"github.com/sungwon/dining-concierge/internal/metrics"
	"github.com/sungwon/dining-concierge/internal/upstream"
)

const serviceName = "opensearch"

// ErrMissingCredentials is returned by NewClient when the cluster endpoint
// or basic auth credentials are not configured.
var ErrMissingCredentials = errors.New("search endpoint and credentials are required")

// Client queries the restaurant index.
type Client struct {
	endpoint      string
	index         string
	username      string
	password      string
	size          int
	categoryField string
	idField       string
	http          HTTPClient
}

// NewClient creates a search Client from configuration. A nil httpClient
// uses DefaultHTTPClient with the configured timeout.
func NewClient(cfg config.SearchConfig, httpClient HTTPClient) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, ErrMissingCredentials
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = NewHTTPClient(timeout)
	}

	c := &Client{
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		index:         cfg.Index,
		username:      cfg.Username,
		password:      cfg.Password,
		size:          cfg.Size,
		categoryField: cfg.CategoryField,
		idField:       cfg.IDField,
		http:          httpClient,
	}
	if c.index == "" {
		c.index = "restaurants"
	}
	if c.size <= 0 {
		c.size = 3
	}
	if c.categoryField == "" {
		c.categoryField = "Cuisine"
	}
	if c.idField == "" {
		c.idField = "RestaurantID"
	}
	return c, nil
}

// FindCandidates returns up to size restaurant IDs whose category field
// matches category, in random order. Repeated calls may return different
// IDs. Failures are returned as *upstream.Error.
func (c *Client) FindCandidates(ctx context.Context, category string) (ids []string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(serviceName, start, err) }()

	body, err := json.Marshal(c.buildQuery(category))
	if err != nil {
		return nil, upstream.Permanent(serviceName, "search", fmt.Errorf("marshal query: %w", err))
	}

	resp, err := c.http.Do(ctx, &HTTPRequest{
		Method:   "POST",
		URL:      c.endpoint + "/" + c.index + "/_search",
		Headers:  map[string]string{"Content-Type": "application/json"},
		Body:     body,
		Username: c.username,
		Password: c.password,
	})
	if err != nil {
		return nil, upstream.Transient(serviceName, "search", err)
	}
	if uerr := upstream.ClassifyHTTPStatus(serviceName, "search", resp.StatusCode, string(resp.Body)); uerr != nil {
		return nil, uerr
	}

	var result searchResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, upstream.Transient(serviceName, "search", fmt.Errorf("decode response: %w", err))
	}

	ids = make([]string, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		id := sourceString(hit.Source, c.idField)
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// buildQuery builds a function_score query that matches category and ranks
// matches randomly.
func (c *Client) buildQuery(category string) map[string]any {
	return map[string]any{
		"size": c.size,
		"query": map[string]any{
			"function_score": map[string]any{
				"query": map[string]any{
					"match": map[string]any{c.categoryField: category},
				},
				"random_score": map[string]any{},
			},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string                     `json:"_id"`
			Source map[string]json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// sourceString reads a string or numeric field from a hit's _source.
func sourceString(src map[string]json.RawMessage, field string) string {
	raw, ok := src[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
