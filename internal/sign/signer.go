// Package sign produces replay-resistant HMAC-SHA256 signatures for
// exchange API requests.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultRecvWindow is the exchange-side validity window applied when the
// caller does not configure one, in milliseconds.
const DefaultRecvWindow int64 = 5000

// Signer computes request signatures for one API session. It holds only
// read-only configuration and is safe for unbounded concurrent use.
type Signer struct {
	apiKey     string
	apiSecret  string
	recvWindow int64
}

// New creates a Signer with the default recv window.
func New(apiKey, apiSecret string) *Signer {
	return NewWithRecvWindow(apiKey, apiSecret, DefaultRecvWindow)
}

// NewWithRecvWindow creates a Signer with an explicit recv window. The window
// is part of the signed payload, so it is fixed for the Signer's lifetime;
// callers needing a tighter window construct a new Signer.
func NewWithRecvWindow(apiKey, apiSecret string, recvWindow int64) *Signer {
	return &Signer{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: recvWindow,
	}
}

// APIKey returns the API key sent alongside signed requests.
func (s *Signer) APIKey() string {
	return s.apiKey
}

// RecvWindow returns the configured recv window in milliseconds.
func (s *Signer) RecvWindow() int64 {
	return s.recvWindow
}

// Sign computes the lowercase hex HMAC-SHA256 digest of the canonical query
// string for params. Canonicalization sorts keys lexicographically and
// url-encodes each pair, so the same logical parameter set always produces
// the same signature regardless of insertion order. A "signature" key in
// params is excluded from the canonical string.
func (s *Signer) Sign(params map[string]string) string {
	h := hmac.New(sha256.New, []byte(s.apiSecret))
	h.Write([]byte(canonicalQuery(params)))
	return hex.EncodeToString(h.Sum(nil))
}

// SignedRequest returns a copy of params stamped and signed: "timestamp" is
// always overwritten with the current Unix-epoch milliseconds, "recvWindow"
// is set to the Signer's default only when absent, and "signature" is added
// over the augmented set. The caller's map is never modified.
func (s *Signer) SignedRequest(params map[string]string) map[string]string {
	signed := make(map[string]string, len(params)+3)
	for k, v := range params {
		signed[k] = v
	}

	signed["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	if _, ok := signed["recvWindow"]; !ok {
		signed["recvWindow"] = strconv.FormatInt(s.recvWindow, 10)
	}

	signed["signature"] = s.Sign(signed)
	return signed
}

// ValidateSignature reports whether candidate matches the expected signature
// for params. The comparison is constant-time; an empty candidate is always
// rejected.
func (s *Signer) ValidateSignature(params map[string]string, candidate string) bool {
	if candidate == "" {
		return false
	}
	expected := s.Sign(params)
	return hmac.Equal([]byte(expected), []byte(candidate))
}

func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}
