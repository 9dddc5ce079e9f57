package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Resolver resolves candidate IDs to records, one point lookup per ID.
type Resolver struct {
	store Store
	log   zerolog.Logger
}

// NewResolver creates a Resolver over store.
func NewResolver(store Store, log zerolog.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// GetRecords looks up every ID in order. Missing IDs are skipped. A failed
// lookup is logged and skipped without aborting the rest. The error is
// non-nil only when nothing resolved and at least one lookup failed.
func (r *Resolver) GetRecords(ctx context.Context, ids []string) ([]Record, error) {
	recs := make([]Record, 0, len(ids))
	var errs []error

	for _, id := range ids {
		rec, err := r.store.Get(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			r.log.Warn().Str("restaurant_id", id).Msg("record not found")
		case err != nil:
			r.log.Error().Err(err).Str("restaurant_id", id).Msg("record lookup failed")
			errs = append(errs, fmt.Errorf("lookup %s: %w", id, err))
		default:
			recs = append(recs, rec)
		}
	}

	if len(recs) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return recs, nil
}
