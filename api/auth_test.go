package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shop-engine/shop"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	ti := NewTokenIssuer("s3cret", time.Hour, func() time.Time { return now })

	token, err := ti.Issue(42)
	require.NoError(t, err)

	id, err := ti.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, shop.UserID(42), id)
}

func TestTokenIssuer_Expired(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	ti := NewTokenIssuer("s3cret", time.Hour, func() time.Time { return now })
	token, err := ti.Issue(42)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = ti.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenIssuer_RejectsOtherAlgorithms(t *testing.T) {
	ti := NewTokenIssuer("s3cret", time.Hour, nil)

	claims := jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = ti.Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenIssuer_RejectsBadSubject(t *testing.T) {
	ti := NewTokenIssuer("s3cret", time.Hour, nil)

	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = ti.Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenIssuer_RequiresExpiry(t *testing.T) {
	ti := NewTokenIssuer("s3cret", time.Hour, nil)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "42"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = ti.Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
