package polymarket

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// AccountReader assembles the follower's authoritative account state from
// the balance and positions endpoints.
type AccountReader struct {
	data    *DataClient
	address string
	now     func() time.Time
}

// NewAccountReader creates a reader for the wallet at address.
func NewAccountReader(data *DataClient, address string) *AccountReader {
	return &AccountReader{data: data, address: address, now: time.Now}
}

// FetchAccount returns a fresh snapshot. Both requests must succeed; a
// partial snapshot is never returned.
func (r *AccountReader) FetchAccount(ctx context.Context) (domain.AccountState, error) {
	fetchedAt := r.now().UTC()

	balance, err := r.data.Balance(ctx, r.address)
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("polymarket/account: %w", err)
	}
	records, err := r.data.Positions(ctx, r.address)
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("polymarket/account: %w", err)
	}

	positions := make(map[string]domain.FollowerPosition, len(records))
	for i := range records {
		rec := &records[i]
		if rec.ConditionID == "" || !rec.Size.IsPositive() {
			continue
		}
		positions[rec.ConditionID] = rec.ToFollowerPosition(fetchedAt)
	}
	return domain.AccountState{
		Balance:   balance,
		Positions: positions,
		FetchedAt: fetchedAt,
	}, nil
}
