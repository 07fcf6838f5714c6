/*
settlement.go - Purchase settlement

PURPOSE:
  Validates and executes a purchase as one atomic unit:
    wallet  -= quantity * price
    stock   -= quantity
    purchase inserted with the price read in the same transaction

PRECONDITIONS (first failing wins, no partial effects):
  1. quantity > 0
  2. wallet >= quantity * price   else InsufficientFundsError
  3. in_stock >= quantity         else InsufficientStockError

AFTER COMMIT:
  PurchaseCreated always; GoodDepleted when stock reached exactly zero.
  Observers run out of band and cannot fail the purchase.
*/
package shop

import (
	"context"
	"fmt"
	"math"
)

// CreatePurchase settles a purchase for req.CustomerID (or the subject).
func (s *Service) CreatePurchase(ctx context.Context, subject Subject, req PurchaseRequest) (*Purchase, error) {
	customerID := req.CustomerID
	if customerID == 0 {
		customerID = subject.UserID
	}
	if err := Authorize(subject, OpCreatePurchase, customerID); err != nil {
		return nil, err
	}
	if err := validatePurchase(req); err != nil {
		return nil, err
	}

	var (
		purchase  Purchase
		remaining int64
	)
	err := s.Store.WithTx(ctx, func(tx Store) error {
		customer, err := tx.GetUser(ctx, customerID)
		if err != nil {
			return err
		}
		good, err := tx.GetGood(ctx, req.GoodID)
		if err != nil {
			return err
		}

		cost, ok := checkedCost(req.Quantity, good.Price)
		if !ok {
			return &InsufficientFundsError{CustomerID: customer.ID, Wallet: customer.Wallet}
		}
		if customer.Wallet < cost {
			return &InsufficientFundsError{CustomerID: customer.ID, Wallet: customer.Wallet, Cost: cost}
		}
		if good.InStock < req.Quantity {
			return &InsufficientStockError{GoodID: good.ID, InStock: good.InStock, Requested: req.Quantity}
		}

		if err := tx.AdjustWallet(ctx, customer.ID, -cost); err != nil {
			return err
		}
		if err := tx.AdjustStock(ctx, good.ID, -req.Quantity); err != nil {
			return err
		}

		purchase = Purchase{
			CustomerID: customer.ID,
			GoodID:     good.ID,
			Quantity:   req.Quantity,
			Price:      good.Price,
			CreatedAt:  s.now(),
		}
		if err := tx.CreatePurchase(ctx, &purchase); err != nil {
			return fmt.Errorf("failed to record purchase: %w", err)
		}
		remaining = good.InStock - req.Quantity
		return nil
	})
	if err != nil {
		s.Logger.Info("purchase rejected",
			"customer_id", customerID, "good_id", req.GoodID, "quantity", req.Quantity, "error", err)
		return nil, err
	}

	s.Logger.Info("purchase settled",
		"purchase_id", purchase.ID, "customer_id", purchase.CustomerID,
		"good_id", purchase.GoodID, "quantity", purchase.Quantity, "price", purchase.Price)

	s.publish(ctx, PurchaseCreated{EventMeta: newMeta(purchase.CreatedAt), Purchase: purchase})
	if remaining == 0 {
		s.publish(ctx, GoodDepleted{EventMeta: newMeta(purchase.CreatedAt), GoodID: purchase.GoodID, PurchaseID: purchase.ID})
	}
	return &purchase, nil
}

func validatePurchase(req PurchaseRequest) error {
	verr := &ValidationError{}
	if req.GoodID == 0 {
		verr.Add("good_id", MsgFieldRequired)
	}
	switch {
	case req.QuantityMissing:
		verr.Add("quantity", MsgFieldRequired)
	case req.Quantity <= 0:
		verr.Add("quantity", MsgQuantityMin)
	}
	return verr.OrNil()
}

// checkedCost returns quantity*price, or false if it overflows int64.
func checkedCost(quantity, price int64) (int64, bool) {
	if price != 0 && quantity > math.MaxInt64/price {
		return 0, false
	}
	return quantity * price, true
}
