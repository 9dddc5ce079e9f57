// Package seed reads the restaurant export used to populate the search
// index.
package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sungwon/dining-concierge/internal/search"
)

// Column headers in the restaurant export.
const (
	ColumnID      = "Restaurant ID"
	ColumnCuisine = "Cuisine"
)

// ReadDocuments parses a CSV export with a header row into index documents.
// Rows without an ID are skipped. Columns are located by header name, so
// their order does not matter.
func ReadDocuments(r io.Reader) ([]search.Document, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, errors.New("seed: csv is empty")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("seed: read header: %w", err)
	}

	idCol, cuisineCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case ColumnID:
			idCol = i
		case ColumnCuisine:
			cuisineCol = i
		}
	}
	if idCol < 0 || cuisineCol < 0 {
		return nil, 0, fmt.Errorf("seed: header must contain %q and %q columns", ColumnID, ColumnCuisine)
	}

	var (
		docs    []search.Document
		skipped int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("seed: read row: %w", err)
		}
		if idCol >= len(row) || cuisineCol >= len(row) {
			skipped++
			continue
		}
		id := strings.TrimSpace(row[idCol])
		if id == "" {
			skipped++
			continue
		}
		docs = append(docs, search.Document{
			RestaurantID: id,
			Cuisine:      strings.TrimSpace(row[cuisineCol]),
		})
	}
	return docs, skipped, nil
}

// Chunk splits docs into consecutive slices of at most size documents.
func Chunk(docs []search.Document, size int) [][]search.Document {
	if size <= 0 {
		size = len(docs)
	}
	var out [][]search.Document
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		out = append(out, docs[start:end])
	}
	return out
}
