/*
auth.go - Bearer token authentication

PURPOSE:
  Issues and verifies HS256 JWTs whose subject is the user id, and resolves
  the caller of every request into a shop.Subject.

RULES:
  - No Authorization header: anonymous subject, the policy decides
  - Malformed, badly signed or unknown user: 401
  - Expired: 401 "Token is expired. Get new one."

SEE ALSO:
  - shop/policy.go: What a subject may do
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/shop-engine/shop"
)

const (
	msgTokenExpired = "Token is expired. Get new one."
	msgTokenInvalid = "Invalid token."
)

var (
	// ErrTokenExpired is returned by Parse for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid is returned by Parse for anything else it rejects.
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenIssuer signs and verifies bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. now may be nil for wall-clock time.
func NewTokenIssuer(secret string, ttl time.Duration, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: now}
}

// Issue returns a signed token for userID.
func (ti *TokenIssuer) Issue(userID shop.UserID) (string, error) {
	now := ti.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(int64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its user id.
func (ti *TokenIssuer) Parse(token string) (shop.UserID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return 0, ErrTokenExpired
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrTokenInvalid, claims.Subject)
	}
	return shop.UserID(id), nil
}

// =============================================================================
// REQUEST SUBJECT
// =============================================================================

type subjectKey struct{}

// WithSubject stores the caller in ctx.
func WithSubject(ctx context.Context, s shop.Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, s)
}

// SubjectFrom returns the caller stored in ctx, or shop.Anonymous.
func SubjectFrom(ctx context.Context) shop.Subject {
	if s, ok := ctx.Value(subjectKey{}).(shop.Subject); ok {
		return s
	}
	return shop.Anonymous
}

// Authenticate resolves the bearer token into a subject.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), shop.Anonymous)))
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, msgTokenInvalid, nil)
			return
		}

		userID, err := h.Tokens.Parse(strings.TrimSpace(token))
		if errors.Is(err, ErrTokenExpired) {
			writeError(w, http.StatusUnauthorized, msgTokenExpired, nil)
			return
		}
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgTokenInvalid, err)
			return
		}

		user, err := h.Service.Store.GetUser(r.Context(), userID)
		if shop.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, msgTokenInvalid, err)
			return
		}
		if err != nil {
			h.respondError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), shop.SubjectOf(*user))))
	})
}
