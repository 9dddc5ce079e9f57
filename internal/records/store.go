// Package records resolves restaurant IDs to full restaurant records from
// the record store, optionally through a read-through cache.
package records

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when no record exists for the ID.
var ErrNotFound = errors.New("record not found")

// Record is a restaurant as stored in the record store. The pipeline only
// reads it.
type Record struct {
	ID      string   `dynamodbav:"businessId" json:"id"`
	Name    string   `dynamodbav:"name" json:"name"`
	Address string   `dynamodbav:"address" json:"address"`
	Rating  *float64 `dynamodbav:"rating,omitempty" json:"rating,omitempty"`
	Cuisine string   `dynamodbav:"cuisine,omitempty" json:"cuisine,omitempty"`

	// RatingText holds a rating stored as text rather than a number.
	RatingText string `dynamodbav:"-" json:"rating_text,omitempty"`
}

// Store performs single-key point lookups.
type Store interface {
	Get(ctx context.Context, id string) (Record, error)
}
