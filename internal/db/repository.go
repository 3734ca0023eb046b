package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository handles database operations for products and the sweep run state
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new product repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListAllProducts returns every product document. Rows are returned in
// insertion order so grouping stays stable between sweeps.
func (r *Repository) ListAllProducts(ctx context.Context) ([]Product, error) {
	query := `
		SELECT id, product, expiry, owner, remind_before
		FROM products
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		r.logger.Error("failed to list products", zap.Error(err))
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID,
			&p.Product,
			&p.Expiry,
			&p.Owner,
			&p.RemindBefore,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	r.logger.Debug("products listed", zap.Int("count", len(products)))

	return products, nil
}

// GetRunState returns the persisted run state, or (nil, nil) when the sweep
// has never run.
func (r *Repository) GetRunState(ctx context.Context) (*RunState, error) {
	query := `SELECT date, updated_at FROM run_state WHERE key = $1`

	var state RunState
	err := r.db.Pool().QueryRow(ctx, query, RunStateKey).Scan(&state.Date, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run state: %w", err)
	}

	return &state, nil
}

// SetRunState overwrites the persisted run state.
func (r *Repository) SetRunState(ctx context.Context, state RunState) error {
	query := `
		INSERT INTO run_state (key, date, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET date = EXCLUDED.date, updated_at = NOW()
	`

	if _, err := r.db.Pool().Exec(ctx, query, RunStateKey, state.Date); err != nil {
		r.logger.Error("failed to write run state",
			zap.Error(err),
			zap.String("date", state.Date),
		)
		return fmt.Errorf("upsert run state: %w", err)
	}

	return nil
}

// Health checks the store is reachable.
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}
