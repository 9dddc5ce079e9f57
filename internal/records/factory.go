package records

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/dining-concierge/internal/config"
)

// NewStore builds the configured record store backend, wrapped in the
// configured cache. db is only used by the postgres backend and may be nil
// otherwise. The returned function closes any cache connection.
func NewStore(ctx context.Context, cfg *config.Config, db RowQuerier, log zerolog.Logger) (Store, func() error, error) {
	var source Store
	switch cfg.Records.Backend {
	case "dynamodb", "":
		s, err := NewDynamoStore(ctx, cfg.Records)
		if err != nil {
			return nil, nil, fmt.Errorf("create dynamodb store: %w", err)
		}
		source = s
	case "postgres":
		if db == nil {
			return nil, nil, fmt.Errorf("postgres records backend requires a database connection")
		}
		source = NewPostgresStore(db)
	default:
		return nil, nil, fmt.Errorf("unknown records backend: %s", cfg.Records.Backend)
	}

	cache, closeCache, err := NewCache(ctx, cfg.Cache, log)
	if err != nil {
		return nil, nil, fmt.Errorf("create record cache: %w", err)
	}
	if cache == nil {
		return source, closeCache, nil
	}
	return NewCachedStore(source, cache, log), closeCache, nil
}
