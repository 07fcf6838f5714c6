package shop

import (
	"context"
	"strings"
)

// =============================================================================
// GOODS
// =============================================================================

// ListGoods is public.
func (s *Service) ListGoods(ctx context.Context, filter GoodFilter) ([]Good, error) {
	return s.Store.ListGoods(ctx, filter)
}

// GetGood is public.
func (s *Service) GetGood(ctx context.Context, id GoodID) (*Good, error) {
	return s.Store.GetGood(ctx, id)
}

// CreateGood adds a catalog item. Admin only.
func (s *Service) CreateGood(ctx context.Context, subject Subject, g Good) (*Good, error) {
	if err := Authorize(subject, OpWriteCatalog, 0); err != nil {
		return nil, err
	}
	if err := validateGood(g); err != nil {
		return nil, err
	}
	g.ID = 0
	if err := s.Store.CreateGood(ctx, &g); err != nil {
		return nil, err
	}
	s.Logger.Info("good created", "good_id", g.ID, "title", g.Title)
	return &g, nil
}

// UpdateGood replaces a catalog item. Admin only. Existing purchases keep
// the price they were settled at.
func (s *Service) UpdateGood(ctx context.Context, subject Subject, g Good) (*Good, error) {
	if err := Authorize(subject, OpWriteCatalog, 0); err != nil {
		return nil, err
	}
	if err := validateGood(g); err != nil {
		return nil, err
	}
	if err := s.Store.UpdateGood(ctx, g); err != nil {
		return nil, err
	}
	return &g, nil
}

// DeleteGood removes a catalog item. Admin only.
func (s *Service) DeleteGood(ctx context.Context, subject Subject, id GoodID) error {
	if err := Authorize(subject, OpWriteCatalog, 0); err != nil {
		return err
	}
	return s.Store.DeleteGood(ctx, id)
}

func validateGood(g Good) error {
	verr := &ValidationError{}
	if strings.TrimSpace(g.Title) == "" {
		verr.Add("title", MsgFieldRequired)
	}
	if g.Price <= 0 {
		verr.Add("price", MsgQuantityMin)
	}
	if g.InStock < 0 {
		verr.Add("in_stock", "Ensure this value is greater than or equal to 0.")
	}
	return verr.OrNil()
}

// =============================================================================
// USERS
// =============================================================================

// RegisterUser opens a customer account with the default wallet.
func (s *Service) RegisterUser(ctx context.Context, email, username string) (*User, error) {
	return s.createUser(ctx, User{Email: email, Username: username, Wallet: DefaultWallet})
}

// CreateUser creates any account, including administrators. Admin only.
func (s *Service) CreateUser(ctx context.Context, subject Subject, u User) (*User, error) {
	if err := Authorize(subject, OpManageUsers, 0); err != nil {
		return nil, err
	}
	return s.createUser(ctx, u)
}

func (s *Service) createUser(ctx context.Context, u User) (*User, error) {
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	verr := &ValidationError{}
	if u.Email == "" {
		verr.Add("email", MsgFieldRequired)
	} else if !strings.Contains(u.Email, "@") {
		verr.Add("email", "Enter a valid email address.")
	}
	if u.Wallet < 0 {
		verr.Add("wallet", "Ensure this value is greater than or equal to 0.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if u.Username == "" {
		u.Username = u.Email
	}
	u.ID = 0
	if err := s.Store.CreateUser(ctx, &u); err != nil {
		return nil, err
	}
	s.Logger.Info("user created", "user_id", u.ID, "is_admin", u.IsAdmin)
	return &u, nil
}

// GetUser returns an account visible to subject.
func (s *Service) GetUser(ctx context.Context, subject Subject, id UserID) (*User, error) {
	if err := Authorize(subject, OpViewUsers, id); err != nil {
		return nil, err
	}
	return s.Store.GetUser(ctx, id)
}

// ListUsers returns the accounts visible to subject.
func (s *Service) ListUsers(ctx context.Context, subject Subject) ([]User, error) {
	if !subject.Authenticated() {
		return nil, ErrUnauthenticated
	}
	return s.Store.ListUsers(ctx, VisibleOwner(subject))
}

// HasPurchases reports whether a customer ever completed a purchase that
// still stands.
func (s *Service) HasPurchases(ctx context.Context, id UserID) (bool, error) {
	return s.Store.HasPurchases(ctx, id)
}
