package artifact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Query parameters carried by a signed URL.
const (
	ParamExpires   = "expires"
	ParamSignature = "signature"
)

var (
	// ErrBadSignature is returned when a signature does not match.
	ErrBadSignature = errors.New("artifact signature invalid")

	// ErrExpired is returned when a signed URL is past its expiry.
	ErrExpired = errors.New("artifact signature expired")
)

// Signer signs and verifies time-limited artifact read grants with
// HMAC-SHA256 over "key|expires".
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer. The secret must be non-empty.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is empty")
	}
	return &Signer{secret: append([]byte(nil), secret...)}, nil
}

// Sign returns the hex signature granting read of key until expires.
func (s *Signer) Sign(key string, expires time.Time) string {
	return hex.EncodeToString(s.mac(key, expires.Unix()))
}

// SignURL appends the expiry and signature to rawURL.
func (s *Signer) SignURL(rawURL, key string, expires time.Time) string {
	q := url.Values{}
	q.Set(ParamExpires, strconv.FormatInt(expires.Unix(), 10))
	q.Set(ParamSignature, s.Sign(key, expires))
	return rawURL + "?" + q.Encode()
}

// Verify checks a grant for key. expires is the unix-seconds query value.
func (s *Signer) Verify(key, expires, signature string, now time.Time) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed expiry", ErrBadSignature)
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}
	if !hmac.Equal(got, s.mac(key, exp)) {
		return ErrBadSignature
	}
	if now.Unix() > exp {
		return ErrExpired
	}
	return nil
}

func (s *Signer) mac(key string, expires int64) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(key))
	m.Write([]byte{'|'})
	m.Write([]byte(strconv.FormatInt(expires, 10)))
	return m.Sum(nil)
}
