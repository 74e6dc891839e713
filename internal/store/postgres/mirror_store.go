package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// MirrorStore journals mirror outcomes to mirror_trades.
type MirrorStore struct {
	pool *pgxpool.Pool
}

// NewMirrorStore creates a MirrorStore on pool.
func NewMirrorStore(pool *pgxpool.Pool) *MirrorStore {
	return &MirrorStore{pool: pool}
}

// Record inserts one outcome row.
func (s *MirrorStore) Record(ctx context.Context, o domain.MirrorOutcome) error {
	const query = `
		INSERT INTO mirror_trades
			(id, kind, identity, market, side, shares, price, pnl, order_id, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		uuid.New(),
		string(o.Kind),
		o.Identity,
		o.Market,
		string(o.Side),
		o.Shares.String(),
		o.Price.String(),
		o.PnL.String(),
		o.OrderID,
		o.Detail,
		o.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: record outcome %s %s: %w", o.Kind, o.Identity, err)
	}
	return nil
}

var _ domain.MirrorStore = (*MirrorStore)(nil)
