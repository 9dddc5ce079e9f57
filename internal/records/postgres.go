package records

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sungwon/dining-concierge/internal/metrics"
	"github.com/sungwon/dining-concierge/internal/upstream"
)

const postgresService = "postgres"

// RowQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads records from the restaurants table.
type PostgresStore struct {
	db RowQuerier
}

// NewPostgresStore creates a PostgresStore over the given pool.
func NewPostgresStore(db RowQuerier) *PostgresStore {
	return &PostgresStore{db: db}
}

const getRestaurantSQL = `SELECT business_id, name, address, rating, cuisine
FROM restaurants WHERE business_id = $1`

// Get fetches one record by business ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	start := time.Now()

	var (
		rec     Record
		cuisine *string
	)
	err := s.db.QueryRow(ctx, getRestaurantSQL, id).Scan(&rec.ID, &rec.Name, &rec.Address, &rec.Rating, &cuisine)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveQuery("get_restaurant", start, nil)
		return Record{}, ErrNotFound
	}
	metrics.ObserveQuery("get_restaurant", start, err)
	if err != nil {
		uerr := upstream.Transient(postgresService, "get_restaurant", err)
		metrics.ObserveUpstream(postgresService, start, uerr)
		return Record{}, uerr
	}
	metrics.ObserveUpstream(postgresService, start, nil)

	if cuisine != nil {
		rec.Cuisine = *cuisine
	}
	return rec, nil
}
