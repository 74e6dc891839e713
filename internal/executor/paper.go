package executor

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// PaperPlacer fills every order immediately without touching the venue.
// Fills report no average price, so closes are priced from the lead's event.
type PaperPlacer struct {
	logger *slog.Logger
}

var _ OrderPlacer = (*PaperPlacer)(nil)

// NewPaperPlacer creates a PaperPlacer.
func NewPaperPlacer(logger *slog.Logger) *PaperPlacer {
	return &PaperPlacer{logger: logger.With(slog.String("component", "paper"))}
}

// PostOrder simulates an immediate fill.
func (p *PaperPlacer) PostOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderResult{}, err
	}
	res := domain.OrderResult{
		OrderID: "paper-" + uuid.NewString(),
		Status:  "FILLED",
	}
	if req.Type == domain.OrderTypeLimit {
		res.AvgPrice = req.Price
	}
	p.logger.InfoContext(ctx, "paper fill",
		slog.String("order_id", res.OrderID),
		slog.String("market", req.Market),
		slog.String("side", string(req.Side)),
		slog.String("size", req.Size.String()),
	)
	return res, nil
}
