package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sungwon/dining-concierge/internal/config"
)

// Document is one restaurant entry in the search index.
type Document struct {
	RestaurantID string `json:"RestaurantID"`
	Cuisine      string `json:"Cuisine"`
}

// Indexer creates and populates the restaurant index.
type Indexer struct {
	endpoint string
	index    string
	username string
	password string
	http     HTTPClient
}

// NewIndexer creates an Indexer from configuration.
func NewIndexer(cfg config.SearchConfig, httpClient HTTPClient) (*Indexer, error) {
	c, err := NewClient(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	return &Indexer{
		endpoint: c.endpoint,
		index:    c.index,
		username: c.username,
		password: c.password,
		http:     c.http,
	}, nil
}

// EnsureIndex creates the index if it does not exist yet.
func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	url := ix.endpoint + "/" + ix.index

	resp, err := ix.http.Do(ctx, &HTTPRequest{
		Method:   http.MethodHead,
		URL:      url,
		Username: ix.username,
		Password: ix.password,
	})
	if err != nil {
		return fmt.Errorf("check index %s: %w", ix.index, err)
	}
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index %s: unexpected status %d", ix.index, resp.StatusCode)
	}

	mapping := []byte(`{"mappings":{"properties":{"RestaurantID":{"type":"keyword"},"Cuisine":{"type":"text"}}}}`)
	resp, err = ix.http.Do(ctx, &HTTPRequest{
		Method:   http.MethodPut,
		URL:      url,
		Headers:  map[string]string{"Content-Type": "application/json"},
		Body:     mapping,
		Username: ix.username,
		Password: ix.password,
	})
	if err != nil {
		return fmt.Errorf("create index %s: %w", ix.index, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("create index %s: status %d: %s", ix.index, resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}
	return nil
}

// BulkIndex writes docs with the _bulk API, using RestaurantID as the
// document ID. It returns the number of documents the cluster accepted.
func (ix *Indexer) BulkIndex(ctx context.Context, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		action := map[string]any{"index": map[string]string{"_index": ix.index, "_id": d.RestaurantID}}
		if err := enc.Encode(action); err != nil {
			return 0, fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(d); err != nil {
			return 0, fmt.Errorf("encode bulk document: %w", err)
		}
	}

	resp, err := ix.http.Do(ctx, &HTTPRequest{
		Method:   http.MethodPost,
		URL:      ix.endpoint + "/_bulk",
		Headers:  map[string]string{"Content-Type": "application/x-ndjson"},
		Body:     buf.Bytes(),
		Username: ix.username,
		Password: ix.password,
	})
	if err != nil {
		return 0, fmt.Errorf("bulk request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("bulk request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}

	var result bulkResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return 0, fmt.Errorf("decode bulk response: %w", err)
	}

	indexed := 0
	for _, item := range result.Items {
		if item.Index.Status >= 200 && item.Index.Status < 300 {
			indexed++
		}
	}
	if result.Errors && indexed == 0 {
		return 0, fmt.Errorf("bulk request: all %d documents rejected", len(docs))
	}
	return indexed, nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
		} `json:"index"`
	} `json:"items"`
}
