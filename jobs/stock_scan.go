package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tindahan-erp/tindahan/internal/inventory"
)

// LowStockScanner reports products whose derived on-hand quantity has
// reached the reorder threshold.
type LowStockScanner struct {
	repo   inventory.Repository
	logger *slog.Logger
}

// NewLowStockScanner builds the scanner.
func NewLowStockScanner(repo inventory.Repository, logger *slog.Logger) *LowStockScanner {
	return &LowStockScanner{repo: repo, logger: logger}
}

// Run lists low-stock products and logs each one for the ops channel.
func (s *LowStockScanner) Run(ctx context.Context) ([]inventory.StockLevel, error) {
	levels, err := s.repo.LowStock(ctx)
	if err != nil {
		return nil, err
	}
	for _, lvl := range levels {
		if s.logger != nil {
			s.logger.Warn("product below reorder threshold",
				slog.Int64("product_id", lvl.Product.ID),
				slog.String("sku", lvl.Product.SKU),
				slog.Int64("on_hand", lvl.OnHand),
				slog.Int64("threshold", lvl.Product.ReorderThreshold))
		}
	}
	if s.logger != nil {
		s.logger.Info("low stock scan finished", slog.Int("flagged", len(levels)))
	}
	return levels, nil
}

// Handle adapts the scanner to an Asynq task handler.
func (s *LowStockScanner) Handle(ctx context.Context, _ *asynq.Task) error {
	_, err := s.Run(ctx)
	return err
}
