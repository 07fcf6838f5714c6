/*
refund.go - Refund request workflow and approval engine

STATE MACHINE (per purchase):

  purchased ──RequestRefund──▶ refund_requested ──ApproveRefund──▶ refunded
                                     │
                                     └──────────DeclineRefund────▶ declined

  refunded: purchase and refund deleted; wallet and stock restored using
            the purchase's stored price.
  declined: refund deleted only; the sale stands. Nothing remembers the
            decline, so the purchase may be refunded again while the
            window is open.

REQUEST:
  Idempotent get-or-create keyed by purchase. A pending refund never
  expires on its own, even after the window elapses.
*/
package shop

import (
	"context"
	"errors"
	"fmt"
)

// RequestRefund opens a refund for a purchase. created is false when the
// refund already existed; both cases are success.
func (s *Service) RequestRefund(ctx context.Context, subject Subject, purchaseID PurchaseID) (*Refund, bool, error) {
	if !subject.Authenticated() {
		return nil, false, ErrUnauthenticated
	}
	if purchaseID == 0 {
		verr := &ValidationError{}
		verr.Add("purchase_id", MsgFieldRequired)
		return nil, false, verr
	}

	var (
		refund  *Refund
		created bool
	)
	err := s.Store.WithTx(ctx, func(tx Store) error {
		purchase, err := tx.GetPurchase(ctx, purchaseID)
		if err != nil {
			return err
		}
		if !Allowed(subject, OpRequestRefund, purchase.CustomerID) {
			return ErrNotOwnPurchase
		}

		now := s.now()
		if age := now.Sub(purchase.CreatedAt); age > s.RefundWindow {
			return &RefundWindowExpiredError{PurchaseID: purchase.ID, Age: age, Window: s.RefundWindow}
		}

		refund, created, err = tx.GetOrCreateRefund(ctx, purchase.ID, now)
		if err != nil {
			return fmt.Errorf("failed to record refund: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.Logger.Info("refund requested", "refund_id", refund.ID, "purchase_id", purchaseID)
		s.publish(ctx, RefundRequested{EventMeta: newMeta(refund.CreatedAt), Refund: *refund})
	}
	return refund, created, nil
}

// ApproveRefund reverses the purchase behind a refund: the customer is
// credited quantity*purchase.Price, the stock is restored, and both the
// purchase and the refund are deleted, atomically.
func (s *Service) ApproveRefund(ctx context.Context, subject Subject, refundID RefundID) error {
	if err := Authorize(subject, OpDecideRefund, 0); err != nil {
		return err
	}

	var evt RefundApproved
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		evt, err = approve(ctx, tx, refundID)
		return err
	})
	if err != nil {
		return err
	}

	evt.EventMeta = newMeta(s.now())
	s.Logger.Info("refund approved",
		"refund_id", refundID, "purchase_id", evt.Purchase.ID,
		"customer_id", evt.Purchase.CustomerID, "credited", evt.Credited)
	s.publish(ctx, evt)
	return nil
}

func approve(ctx context.Context, tx Store, refundID RefundID) (RefundApproved, error) {
	refund, err := tx.GetRefund(ctx, refundID)
	if err != nil {
		return RefundApproved{}, err
	}
	purchase, err := tx.GetPurchase(ctx, refund.PurchaseID)
	if err != nil {
		return RefundApproved{}, err
	}

	credit, ok := checkedCost(purchase.Quantity, purchase.Price)
	if !ok {
		return RefundApproved{}, fmt.Errorf("purchase %d total overflows", purchase.ID)
	}
	if err := tx.AdjustWallet(ctx, purchase.CustomerID, credit); err != nil {
		return RefundApproved{}, fmt.Errorf("failed to credit wallet: %w", err)
	}
	if err := tx.AdjustStock(ctx, purchase.GoodID, purchase.Quantity); err != nil {
		return RefundApproved{}, fmt.Errorf("failed to restore stock: %w", err)
	}
	if err := tx.DeleteRefund(ctx, refund.ID); err != nil {
		return RefundApproved{}, err
	}
	if err := tx.DeletePurchase(ctx, purchase.ID); err != nil {
		return RefundApproved{}, err
	}

	return RefundApproved{Refund: *refund, Purchase: *purchase, Credited: credit}, nil
}

// DeclineRefund discards a refund. The purchase, wallet and stock are untouched.
func (s *Service) DeclineRefund(ctx context.Context, subject Subject, refundID RefundID) error {
	if err := Authorize(subject, OpDecideRefund, 0); err != nil {
		return err
	}

	var refund *Refund
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		refund, err = decline(ctx, tx, refundID)
		return err
	})
	if err != nil {
		return err
	}

	s.Logger.Info("refund declined", "refund_id", refundID, "purchase_id", refund.PurchaseID)
	s.publish(ctx, RefundDeclined{EventMeta: newMeta(s.now()), Refund: *refund})
	return nil
}

func decline(ctx context.Context, tx Store, refundID RefundID) (*Refund, error) {
	refund, err := tx.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if err := tx.DeleteRefund(ctx, refund.ID); err != nil {
		return nil, err
	}
	return refund, nil
}

// GetRefund returns a refund visible to subject.
func (s *Service) GetRefund(ctx context.Context, subject Subject, id RefundID) (*Refund, error) {
	if !subject.Authenticated() {
		return nil, ErrUnauthenticated
	}
	refund, err := s.Store.GetRefund(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Allowed(subject, OpViewRefunds, refund.CustomerID) {
		// Hide existence from non-owners.
		return nil, NotFoundError("refund", int64(id))
	}
	return refund, nil
}

// ListRefunds returns the refunds visible to subject, newest first.
func (s *Service) ListRefunds(ctx context.Context, subject Subject) ([]Refund, error) {
	if !subject.Authenticated() {
		return nil, ErrUnauthenticated
	}
	return s.Store.ListRefunds(ctx, VisibleOwner(subject))
}

// GetPurchase returns a purchase visible to subject.
func (s *Service) GetPurchase(ctx context.Context, subject Subject, id PurchaseID) (*Purchase, error) {
	if !subject.Authenticated() {
		return nil, ErrUnauthenticated
	}
	purchase, err := s.Store.GetPurchase(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Allowed(subject, OpViewPurchases, purchase.CustomerID) {
		return nil, NotFoundError("purchase", int64(id))
	}
	return purchase, nil
}

// ListPurchases returns the purchases visible to subject, newest first.
func (s *Service) ListPurchases(ctx context.Context, subject Subject) ([]Purchase, error) {
	if !subject.Authenticated() {
		return nil, ErrUnauthenticated
	}
	return s.Store.ListPurchases(ctx, VisibleOwner(subject))
}

// PurchaseState reports where a live purchase is in the refund state
// machine. Approving a refund deletes the purchase, so a refunded id is
// indistinguishable from one that never existed and both are ErrNotFound.
func (s *Service) PurchaseState(ctx context.Context, subject Subject, id PurchaseID) (PurchaseState, error) {
	purchase, err := s.GetPurchase(ctx, subject, id)
	if err != nil {
		return "", err
	}
	refund, err := s.Store.GetRefundByPurchase(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	return StateOf(purchase, refund), nil
}
