package bookings

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, tampered and expired respond tokens.
var ErrInvalidToken = errors.New("invalid respond token")

const tokenIssuer = "motorcrm"

// RespondClaims identify the line a provider may answer.
type RespondClaims struct {
	jwt.RegisteredClaims
	BookingServiceID int64 `json:"bsid"`
	BookingID        int64 `json:"bid"`
	OrganizationID   int64 `json:"oid"`
}

// TokenSigner signs and verifies respond links with HS256.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner creates a signer. ttl defaults to seven days.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign issues a token for one booking service line and returns its expiry.
func (s *TokenSigner) Sign(orgID, bookingID, lineID int64) (string, time.Time, error) {
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := RespondClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(lineID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    tokenIssuer,
		},
		BookingServiceID: lineID,
		BookingID:        bookingID,
		OrganizationID:   orgID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign respond token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies a token and returns its claims.
func (s *TokenSigner) Parse(raw string) (*RespondClaims, error) {
	claims := &RespondClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.BookingServiceID <= 0 || claims.OrganizationID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
