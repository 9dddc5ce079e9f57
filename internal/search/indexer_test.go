package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestIndexer_EnsureIndex_Exists(t *testing.T) {
	t.Parallel()

	mock := &mockHTTPClient{responses: []*HTTPResponse{{StatusCode: 200}}}
	ix, err := NewIndexer(testSearchConfig(), mock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ix.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reqs := mock.getRequests()
	if len(reqs) != 1 || reqs[0].Method != "HEAD" {
		t.Errorf("expected a single HEAD request, got %d requests", len(reqs))
	}
}

func TestIndexer_EnsureIndex_Creates(t *testing.T) {
	t.Parallel()

	mock := &mockHTTPClient{responses: []*HTTPResponse{
		{StatusCode: 404},
		{StatusCode: 200, Body: []byte(`{"acknowledged":true}`)},
	}}
	ix, _ := NewIndexer(testSearchConfig(), mock)

	if err := ix.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reqs := mock.getRequests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[1].Method != "PUT" || reqs[1].URL != "https://search.example.com/restaurants" {
		t.Errorf("unexpected create request %s %s", reqs[1].Method, reqs[1].URL)
	}
}

func TestIndexer_EnsureIndex_UnexpectedStatus(t *testing.T) {
	t.Parallel()

	mock := &mockHTTPClient{responses: []*HTTPResponse{{StatusCode: 403}}}
	ix, _ := NewIndexer(testSearchConfig(), mock)

	if err := ix.EnsureIndex(context.Background()); err == nil {
		t.Fatal("expected error for 403, got nil")
	}
}

func TestIndexer_BulkIndex(t *testing.T) {
	t.Parallel()

	mock := &mockHTTPClient{responses: []*HTTPResponse{{
		StatusCode: 200,
		Body:       []byte(`{"errors":true,"items":[{"index":{"_id":"a","status":201}},{"index":{"_id":"b","status":400}}]}`),
	}}}
	ix, _ := NewIndexer(testSearchConfig(), mock)

	n, err := ix.BulkIndex(context.Background(), []Document{
		{RestaurantID: "a", Cuisine: "italian"},
		{RestaurantID: "b", Cuisine: "thai"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 indexed, got %d", n)
	}

	req := mock.getRequests()[0]
	if req.URL != "https://search.example.com/_bulk" {
		t.Errorf("unexpected bulk URL %s", req.URL)
	}
	if req.Headers["Content-Type"] != "application/x-ndjson" {
		t.Errorf("unexpected content type %s", req.Headers["Content-Type"])
	}

	var lines []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(req.Body))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("invalid NDJSON line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 4 {
		t.Fatalf("expected 4 NDJSON lines, got %d", len(lines))
	}
	action := lines[0]["index"].(map[string]any)
	if action["_id"] != "a" || action["_index"] != "restaurants" {
		t.Errorf("unexpected action line %v", action)
	}
	if lines[1]["Cuisine"] != "italian" {
		t.Errorf("unexpected document line %v", lines[1])
	}
}

func TestIndexer_BulkIndex_Empty(t *testing.T) {
	t.Parallel()

	mock := &mockHTTPClient{}
	ix, _ := NewIndexer(testSearchConfig(), mock)

	n, err := ix.BulkIndex(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("expected no-op, got %d, %v", n, err)
	}
	if len(mock.getRequests()) != 0 {
		t.Error("expected no requests for an empty batch")
	}
}
