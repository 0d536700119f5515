package feed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"
)

// Signer authenticates requests to a price endpoint that requires an API key.
type Signer struct {
	apiKey string
	secret string
	now    func() time.Time
}

// NewSigner creates a Signer; it returns nil when apiKey is empty.
func NewSigner(apiKey, secret string) *Signer {
	if apiKey == "" {
		return nil
	}
	return &Signer{apiKey: apiKey, secret: secret, now: time.Now}
}

// Sign sets the auth headers on req.
// Payload: timestamp + method + path ["?" + query]
func (s *Signer) Sign(req *http.Request) {
	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	path := req.URL.EscapedPath()
	if q := req.URL.RawQuery; q != "" {
		path += "?" + q
	}

	req.Header.Set("ACCESS-KEY", s.apiKey)
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-SIGN", computeHmacSha256(timestamp+req.Method+path, s.secret))
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
