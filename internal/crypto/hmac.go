package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// Header names sent with every authenticated CLOB request.
const (
	HeaderAddress    = "POLY_ADDRESS"
	HeaderAPIKey     = "POLY_API_KEY"
	HeaderTimestamp  = "POLY_TIMESTAMP"
	HeaderPassphrase = "POLY_PASSPHRASE"
	HeaderSignature  = "POLY_SIGNATURE"
)

// HMACAuth holds the L2 credentials required for HMAC-authenticated requests
// against the Polymarket CLOB.
type HMACAuth struct {
	Address    string // follower wallet address
	Key        string // API key
	Secret     string // API secret, base64-encoded
	Passphrase string // API passphrase

	now func() time.Time
}

// NewHMACAuth creates an HMACAuth. The secret must be valid base64.
func NewHMACAuth(address, key, secret, passphrase string) (*HMACAuth, error) {
	if _, err := base64.StdEncoding.DecodeString(secret); err != nil {
		return nil, fmt.Errorf("%w: api secret is not base64: %v", domain.ErrSigningFailed, err)
	}
	return &HMACAuth{
		Address:    address,
		Key:        key,
		Secret:     secret,
		Passphrase: passphrase,
		now:        time.Now,
	}, nil
}

// Sign returns the L2 headers for a request. The signature is
// HMAC-SHA256(base64decode(secret), timestamp+method+path+body) encoded as
// base64.
func (h *HMACAuth) Sign(method, path, body string) (map[string]string, error) {
	now := time.Now
	if h.now != nil {
		now = h.now
	}
	return h.SignAt(method, path, body, now().Unix())
}

// SignAt is like Sign but lets the caller supply the Unix timestamp (useful
// for deterministic testing).
func (h *HMACAuth) SignAt(method, path, body string, unixTS int64) (map[string]string, error) {
	secretBytes, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: decode secret: %v", domain.ErrSigningFailed, err)
	}

	ts := strconv.FormatInt(unixTS, 10)
	sig := hmacSHA256Base64(secretBytes, ts+method+path+body)

	return map[string]string{
		HeaderAddress:    h.Address,
		HeaderAPIKey:     h.Key,
		HeaderTimestamp:  ts,
		HeaderPassphrase: h.Passphrase,
		HeaderSignature:  sig,
	}, nil
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
