package bookings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSignAndParse(t *testing.T) {
	signer := NewTokenSigner("secret", time.Hour)
	signer.now = func() time.Time { return testNow }

	raw, expires, err := signer.Sign(1, 40, 41)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(time.Hour), expires)

	claims, err := signer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(41), claims.BookingServiceID)
	assert.Equal(t, int64(40), claims.BookingID)
	assert.Equal(t, int64(1), claims.OrganizationID)
	assert.Equal(t, "41", claims.Subject)
}

func TestTokenRejected(t *testing.T) {
	signer := NewTokenSigner("secret", time.Hour)
	signer.now = func() time.Time { return testNow }
	raw, _, err := signer.Sign(1, 40, 41)
	require.NoError(t, err)

	other := NewTokenSigner("other", time.Hour)
	other.now = signer.now
	_, err = other.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Parse(raw[:len(raw)-2] + "xx")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	signer.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	_, err = signer.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenDefaultTTL(t *testing.T) {
	signer := NewTokenSigner("secret", 0)
	signer.now = func() time.Time { return testNow }
	_, expires, err := signer.Sign(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(7*24*time.Hour), expires)
}
