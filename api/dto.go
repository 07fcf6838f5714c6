/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Entities from package
  shop already carry their wire names, so only request bodies and wrappers
  live here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Users:     CreateUserRequest, UserResponse
  Goods:     GoodRequest
  Purchases: CreatePurchaseRequest, PurchaseDTO
  Refunds:   CreateRefundRequest, RefundDTO, RefundResponse

VALIDATION:
  Validation is done in package shop, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - shop/types.go: Entity JSON shapes
*/
package api

import (
	"time"

	"github.com/warp/shop-engine/shop"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CreateUserRequest is the body for POST /api/users.
// Wallet and IsAdmin are honoured for administrators only.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Wallet   *int64 `json:"wallet,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

// UserResponse is returned on registration.
type UserResponse struct {
	User  shop.User `json:"user"`
	Token string    `json:"token"`
}

// GoodRequest is the body for POST/PUT /api/goods.
type GoodRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	InStock     int64  `json:"in_stock"`
}

// CreatePurchaseRequest is the body for POST /api/purchases.
// CustomerID is for administrators buying on behalf of a customer.
// Quantity is a pointer so an absent field is told apart from zero.
type CreatePurchaseRequest struct {
	GoodID     int64  `json:"good_id"`
	Quantity   *int64 `json:"quantity"`
	CustomerID int64  `json:"customer_id,omitempty"`
}

// PurchaseDTO is a purchase with its refund state.
type PurchaseDTO struct {
	shop.Purchase
	State shop.PurchaseState `json:"state"`
}

// CreateRefundRequest is the body for POST /api/refunds.
type CreateRefundRequest struct {
	PurchaseID int64 `json:"purchase_id"`
}

// RefundDTO represents a refund in API responses.
type RefundDTO struct {
	ID        shop.RefundID   `json:"id"`
	Purchase  shop.PurchaseID `json:"purchase"`
	CreatedAt time.Time       `json:"created_at"`
}

// RefundResponse is returned by POST /api/refunds.
type RefundResponse struct {
	Refund  RefundDTO `json:"refund"`
	Created bool      `json:"created"`
	Message string    `json:"message"`
}

func refundDTO(r shop.Refund) RefundDTO {
	return RefundDTO{ID: r.ID, Purchase: r.PurchaseID, CreatedAt: r.CreatedAt}
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Details string              `json:"details,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}
