/*
handlers.go - HTTP API handlers for the shop

PURPOSE:
  Exposes settlement, refunds, the catalog and maintenance jobs via REST.
  Handles HTTP request/response and JSON, and delegates every decision to
  shop.Service.

ENDPOINTS:
  Users:
    POST   /api/users                         Register (admin: create any user)
    GET    /api/users                         List visible users
    GET    /api/users/{id}                    Get user
    GET    /api/me                            Current user

  Goods:
    GET    /api/goods[?in_stock=true]         List catalog
    GET    /api/goods/{id}                    Get good
    POST   /api/goods                         Create good (admin)
    PUT    /api/goods/{id}                    Update good (admin)
    DELETE /api/goods/{id}                    Delete good (admin)

  Purchases:
    GET    /api/purchases                     List visible purchases
    GET    /api/purchases/{id}                Get purchase with refund state
    POST   /api/purchases                     Settle a purchase

  Refunds:
    GET    /api/refunds                       List visible refunds
    GET    /api/refunds/{id}                  Get refund
    POST   /api/refunds                       Request refund
    POST   /api/refunds/{id}/decline          Decline (admin)
    POST   /api/refunds/{id}/approve          Approve (admin)

  Admin:
    POST   /api/admin/refunds/decline-all     Decline every pending refund
    POST   /api/admin/refunds/approve-all     Approve every pending refund
    GET    /api/admin/maintenance/runs        Job history

REQUEST FLOW:
  1. Resolve subject (auth.go)
  2. Parse path and body
  3. Call shop.Service
  4. Serialize response, or map the error with statusFor

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation, funds, stock, refund window, not own purchase
  - 401: Missing or bad credentials
  - 403: Policy denied
  - 404: Resource not found
  - 409: Conflict (duplicate email, good still referenced)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/shop-engine/shop"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Service *shop.Service
	Tokens  *TokenIssuer
	Logger  *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *shop.Service, tokens *TokenIssuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Service: svc,
		Tokens:  tokens,
		Logger:  logger.With("component", "api"),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Field messages for bodies that do not decode.
const (
	msgMalformedJSON  = "Malformed JSON."
	msgInvalidInteger = "A valid integer is required."
	msgInvalidBoolean = "Must be a valid boolean."
	msgInvalidString  = "Not a valid string."
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps a service error to an HTTP status and caller-facing message.
func statusFor(err error) (int, string) {
	switch {
	case shop.IsClientError(err):
		return http.StatusBadRequest, shop.ClientMessage(err)
	case errors.Is(err, shop.ErrUnauthenticated):
		return http.StatusUnauthorized, "Authentication credentials were not provided."
	case errors.Is(err, shop.ErrForbidden):
		return http.StatusForbidden, "You do not have permission to perform this action."
	case shop.IsNotFound(err):
		return http.StatusNotFound, "Not found."
	case errors.Is(err, shop.ErrConflict):
		return http.StatusConflict, "Conflict."
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, message, nil)
		return
	}

	resp := ErrorResponse{Error: message}
	var verr *shop.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "Invalid input."
		resp.Fields = verr.Fields
	} else if status != http.StatusBadRequest {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// decodeBody reads a JSON body into dst. A value of the wrong type is
// reported against its field; anything else is a malformed body.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}
	verr := &shop.ValidationError{}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		verr.Add(typeErr.Field, typeMismatchMessage(typeErr.Type.Kind()))
		return verr
	}
	verr.Add("body", msgMalformedJSON)
	return verr
}

func typeMismatchMessage(kind reflect.Kind) string {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return msgInvalidInteger
	case reflect.Bool:
		return msgInvalidBoolean
	case reflect.String:
		return msgInvalidString
	default:
		return msgMalformedJSON
	}
}

// idParam reads a positive integer path parameter. Anything else is not found.
func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shop.NotFoundError(name, 0)
	}
	return id, nil
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// CreateUser registers a customer, or creates any user for an admin.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := SubjectFrom(ctx)

	var req CreateUserRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	var (
		user *shop.User
		err  error
	)
	switch {
	case subject.IsAdmin:
		wallet := shop.DefaultWallet
		if req.Wallet != nil {
			wallet = *req.Wallet
		}
		user, err = h.Service.CreateUser(ctx, subject, shop.User{
			Email:    req.Email,
			Username: req.Username,
			Wallet:   wallet,
			IsAdmin:  req.IsAdmin,
		})
	case req.IsAdmin || req.Wallet != nil:
		err = shop.ErrForbidden
	default:
		user, err = h.Service.RegisterUser(ctx, req.Email, req.Username)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	token, err := h.Tokens.Issue(user.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{User: *user, Token: token})
}

// ListUsers returns all users for admins, the caller otherwise.
// GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.ListUsers(r.Context(), SubjectFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser returns a single user.
// GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	user, err := h.Service.GetUser(r.Context(), SubjectFrom(r.Context()), shop.UserID(id))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Me returns the caller.
// GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	subject := SubjectFrom(r.Context())
	if subject.UserID == 0 {
		h.respondError(w, r, shop.ErrUnauthenticated)
		return
	}
	user, err := h.Service.GetUser(r.Context(), subject, subject.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// =============================================================================
// GOOD HANDLERS
// =============================================================================

// ListGoods returns the catalog.
// GET /api/goods?in_stock=true
func (h *Handler) ListGoods(w http.ResponseWriter, r *http.Request) {
	inStock, _ := strconv.ParseBool(r.URL.Query().Get("in_stock"))
	goods, err := h.Service.ListGoods(r.Context(), shop.GoodFilter{InStockOnly: inStock})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goods)
}

// GetGood returns a single good.
// GET /api/goods/{id}
func (h *Handler) GetGood(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	good, err := h.Service.GetGood(r.Context(), shop.GoodID(id))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, good)
}

// CreateGood adds a good to the catalog.
// POST /api/goods
func (h *Handler) CreateGood(w http.ResponseWriter, r *http.Request) {
	var req GoodRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	good, err := h.Service.CreateGood(r.Context(), SubjectFrom(r.Context()), shop.Good{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		InStock:     req.InStock,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, good)
}

// UpdateGood replaces a good.
// PUT /api/goods/{id}
func (h *Handler) UpdateGood(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req GoodRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	good, err := h.Service.UpdateGood(r.Context(), SubjectFrom(r.Context()), shop.Good{
		ID:          shop.GoodID(id),
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		InStock:     req.InStock,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, good)
}

// DeleteGood removes a good.
// DELETE /api/goods/{id}
func (h *Handler) DeleteGood(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.Service.DeleteGood(r.Context(), SubjectFrom(r.Context()), shop.GoodID(id)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// ListPurchases returns the purchases visible to the caller.
// GET /api/purchases
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.Service.ListPurchases(r.Context(), SubjectFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchases)
}

// GetPurchase returns a purchase and its refund state.
// GET /api/purchases/{id}
func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := SubjectFrom(ctx)

	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	purchase, err := h.Service.GetPurchase(ctx, subject, shop.PurchaseID(id))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	state, err := h.Service.PurchaseState(ctx, subject, purchase.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PurchaseDTO{Purchase: *purchase, State: state})
}

// CreatePurchase settles a purchase.
// POST /api/purchases
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	purchase := shop.PurchaseRequest{
		CustomerID:      shop.UserID(req.CustomerID),
		GoodID:          shop.GoodID(req.GoodID),
		QuantityMissing: req.Quantity == nil,
	}
	if req.Quantity != nil {
		purchase.Quantity = *req.Quantity
	}
	created, err := h.Service.CreatePurchase(r.Context(), SubjectFrom(r.Context()), purchase)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// =============================================================================
// REFUND HANDLERS
// =============================================================================

// ListRefunds returns the refunds visible to the caller.
// GET /api/refunds
func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.Service.ListRefunds(r.Context(), SubjectFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]RefundDTO, 0, len(refunds))
	for _, ref := range refunds {
		out = append(out, refundDTO(ref))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetRefund returns a single refund.
// GET /api/refunds/{id}
func (h *Handler) GetRefund(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	refund, err := h.Service.GetRefund(r.Context(), SubjectFrom(r.Context()), shop.RefundID(id))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refundDTO(*refund))
}

// CreateRefund requests a refund. Repeating the request returns the
// existing refund with 200.
// POST /api/refunds
func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var req CreateRefundRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	refund, created, err := h.Service.RequestRefund(r.Context(), SubjectFrom(r.Context()), shop.PurchaseID(req.PurchaseID))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	status, message := http.StatusOK, shop.MsgRefundAlreadyExist
	if created {
		status, message = http.StatusCreated, shop.MsgRefundCreated
	}
	writeJSON(w, status, RefundResponse{Refund: refundDTO(*refund), Created: created, Message: message})
}

// DeclineRefund drops a pending refund.
// POST /api/refunds/{id}/decline
func (h *Handler) DeclineRefund(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.Service.DeclineRefund(r.Context(), SubjectFrom(r.Context()), shop.RefundID(id)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveRefund pays back a purchase and returns its goods to stock.
// POST /api/refunds/{id}/approve
func (h *Handler) ApproveRefund(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.Service.ApproveRefund(r.Context(), SubjectFrom(r.Context()), shop.RefundID(id)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// DeclineAllRefunds declines every pending refund.
// POST /api/admin/refunds/decline-all
func (h *Handler) DeclineAllRefunds(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.DeclineAllRefunds(r.Context(), SubjectFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ApproveAllRefunds approves every pending refund.
// POST /api/admin/refunds/approve-all
func (h *Handler) ApproveAllRefunds(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.ApproveAllRefunds(r.Context(), SubjectFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListMaintenanceRuns returns bulk job history, newest first.
// GET /api/admin/maintenance/runs?job=decline_refunds
func (h *Handler) ListMaintenanceRuns(w http.ResponseWriter, r *http.Request) {
	job := shop.MaintenanceJob(r.URL.Query().Get("job"))
	runs, err := h.Service.ListMaintenanceRuns(r.Context(), SubjectFrom(r.Context()), job)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
