// Package polygon reads chain telemetry from a Polygon JSON-RPC endpoint.
package polygon

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// BlockSource reports the latest Polygon block height.
type BlockSource struct {
	client *ethclient.Client
}

// Dial connects to the JSON-RPC endpoint at rpcURL.
func Dial(ctx context.Context, rpcURL string) (*BlockSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("polygon: dial %s: %w", rpcURL, err)
	}
	return &BlockSource{client: client}, nil
}

// BlockNumber returns the most recent block number.
func (b *BlockSource) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := b.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("polygon: block number: %w", err)
	}
	return n, nil
}

// Close releases the RPC connection.
func (b *BlockSource) Close() {
	b.client.Close()
}
