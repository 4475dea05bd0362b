package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers malformed tokens and signature mismatches.
	ErrInvalidToken = errors.New("invalid link token")
	// ErrExpiredToken is returned for a well-signed token past its expiry.
	ErrExpiredToken = errors.New("link token expired")
)

// LinkSigner issues expiring tokens that let a student download a receipt without a session.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLinkSigner constructs a signer with the provided secret and TTL.
func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LinkSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token naming the student and payment, and its expiry.
func (s *LinkSigner) Generate(studentID, paymentID string) (string, time.Time, error) {
	if studentID == "" || paymentID == "" {
		return "", time.Time{}, errors.New("student and payment required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC().Truncate(time.Second)
	parts := []string{
		encode(studentID),
		encode(paymentID),
		strconv.FormatInt(expiresAt.Unix(), 10),
	}
	parts = append(parts, s.sign(parts))
	return strings.Join(parts, "."), expiresAt, nil
}

// Parse validates token and returns the embedded student and payment.
func (s *LinkSigner) Parse(token string) (studentID, paymentID string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(s.sign(parts[:3])), []byte(parts[3])) {
		return "", "", time.Time{}, ErrInvalidToken
	}

	student, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", "", time.Time{}, ErrInvalidToken
	}
	payment, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", time.Time{}, ErrInvalidToken
	}
	unix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", "", time.Time{}, ErrInvalidToken
	}
	expiresAt = time.Unix(unix, 0).UTC()
	if s.now().After(expiresAt) {
		return "", "", time.Time{}, ErrExpiredToken
	}
	return string(student), string(payment), expiresAt, nil
}

func (s *LinkSigner) sign(parts []string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func encode(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}
