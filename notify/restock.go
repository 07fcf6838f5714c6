package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/shop-engine/shop"
)

// DefaultRestockQuantity is the stock a depleted good is refilled to.
const DefaultRestockQuantity int64 = 12

// Restocker refills goods whose stock a purchase drove to zero.
type Restocker struct {
	Goods    shop.GoodStore
	Quantity int64
	Logger   *slog.Logger
}

func NewRestocker(goods shop.GoodStore, quantity int64, logger *slog.Logger) *Restocker {
	if quantity <= 0 {
		quantity = DefaultRestockQuantity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Restocker{Goods: goods, Quantity: quantity, Logger: logger.With("component", "restocker")}
}

// Register subscribes the restocker to depletion events.
func (r *Restocker) Register(b *Bus) {
	b.Subscribe(shop.EventGoodDepleted, r.Handle)
}

// Handle refills the good only if it is still empty; a refund or another
// restock may have got there first.
func (r *Restocker) Handle(ctx context.Context, evt shop.Event) error {
	depleted, ok := evt.(shop.GoodDepleted)
	if !ok {
		return nil
	}

	restocked, err := r.Goods.RestockIfEmpty(ctx, depleted.GoodID, r.Quantity)
	if err != nil {
		return fmt.Errorf("failed to restock good %d: %w", depleted.GoodID, err)
	}
	if restocked {
		r.Logger.Info("good restocked", "good_id", depleted.GoodID, "in_stock", r.Quantity)
	}
	return nil
}
