package mexc_auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/charleschow/listing-sniper/internal/core/trading"
)

const (
	// SignatureParam is appended after signing and is never part of the
	// signed set.
	SignatureParam = "signature"

	TimestampParam  = "timestamp"
	RecvWindowParam = "recvWindow"

	// DefaultRecvWindowMs is how stale (ms) the exchange lets a request be.
	DefaultRecvWindowMs = 5000
)

// SignedRequest is one fully signed parameter set. Build a fresh one per
// call; the timestamp makes each unique.
type SignedRequest struct {
	Params    map[string]string
	Canonical string
	Signature string
}

// Encode returns the query string to send: the canonical form followed by
// the signature parameter.
func (r SignedRequest) Encode() string {
	return r.Canonical + "&" + SignatureParam + "=" + r.Signature
}

// Signer implements MEXC spot v3 request signing: HMAC-SHA256 (hex) over
// the canonical query string, keyed by the API secret.
type Signer struct {
	secret []byte
}

// NewSigner fails with *trading.SigningError when the secret is missing.
func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, &trading.SigningError{Reason: "api secret is empty"}
	}
	if strings.ContainsAny(secret, "\r\n") {
		return nil, &trading.SigningError{Reason: "api secret contains a line break"}
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign canonicalizes params and computes the tag over exactly that string.
// An empty parameter set or a pre-existing signature key is a programmer
// error and panics.
func (s *Signer) Sign(params map[string]string) SignedRequest {
	if len(params) == 0 {
		panic("mexc_auth: sign called with no parameters")
	}
	if _, ok := params[SignatureParam]; ok {
		panic("mexc_auth: parameters already contain a signature")
	}

	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}
	canonical := Canonicalize(cp)

	return SignedRequest{
		Params:    cp,
		Canonical: canonical,
		Signature: s.tag(canonical),
	}
}

// SignWithTime stamps timestamp and recvWindow onto a copy of params, then
// signs. recvWindowMs <= 0 uses DefaultRecvWindowMs.
func (s *Signer) SignWithTime(params map[string]string, ts TimeSource, recvWindowMs int64) SignedRequest {
	if recvWindowMs <= 0 {
		recvWindowMs = DefaultRecvWindowMs
	}
	stamped := make(map[string]string, len(params)+2)
	for k, v := range params {
		stamped[k] = v
	}
	stamped[TimestampParam] = strconv.FormatInt(ts.NowMillis(), 10)
	stamped[RecvWindowParam] = strconv.FormatInt(recvWindowMs, 10)
	return s.Sign(stamped)
}

// Verify recomputes the tag over canonical and compares in constant time.
func (s *Signer) Verify(canonical, signature string) bool {
	return hmac.Equal([]byte(s.tag(canonical)), []byte(signature))
}

func (s *Signer) tag(canonical string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Canonicalize sorts keys ascending and percent-encodes keys and values as
// query components, with space as %20. The exchange recomputes the tag
// over this exact form.
func Canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(params[k]))
	}
	return b.String()
}

// escape is url.QueryEscape with space as %20. QueryEscape turns a literal
// '+' into %2B, so any '+' left in its output came from a space.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
