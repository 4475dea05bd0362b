package signing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLinkSignerGenerateAndParse(t *testing.T) {
	signer := NewLinkSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("stu.1", "pay-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	studentID, paymentID, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "stu.1", studentID)
	require.Equal(t, "pay-1", paymentID)
	require.Equal(t, expiresAt, parsedExpiry)
}

func TestLinkSignerExpired(t *testing.T) {
	signer := NewLinkSigner("secret", time.Minute)
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return base }
	token, _, err := signer.Generate("stu-1", "pay-1")
	require.NoError(t, err)

	signer.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, _, _, err = signer.Parse(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestLinkSignerRejectsTampering(t *testing.T) {
	signer := NewLinkSigner("secret", time.Hour)
	token, _, err := signer.Generate("stu-1", "pay-1")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = encode("stu-2")
	_, _, _, err = signer.Parse(strings.Join(parts, "."))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, _, err = NewLinkSigner("other", time.Hour).Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, _, err = signer.Parse("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestLinkSignerRequiresInputs(t *testing.T) {
	_, _, err := NewLinkSigner("secret", time.Hour).Generate("", "pay-1")
	require.Error(t, err)
	_, _, err = NewLinkSigner("", time.Hour).Generate("stu-1", "pay-1")
	require.Error(t, err)
}
