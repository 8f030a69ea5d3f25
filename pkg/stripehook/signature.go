package stripehook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// SignatureHeaderName is the header Stripe puts the signature in.
	SignatureHeaderName = "Stripe-Signature"

	// DefaultTolerance is the maximum accepted age of a signed timestamp.
	DefaultTolerance = 5 * time.Minute

	signingScheme = "v1"
)

// Verifier checks Stripe-Signature headers against a shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier returns a Verifier. A non-positive tolerance selects DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify is a one-shot form of (*Verifier).Verify.
func Verify(headers http.Header, body []byte, secret string, tolerance time.Duration) error {
	return NewVerifier(secret, tolerance).Verify(headers, body)
}

// Verify recomputes the HMAC over the raw body and compares it with every v1
// digest in the header. The timestamp is only checked once a digest matches,
// so a stale but forged request reports a mismatch rather than an expiry.
func (v *Verifier) Verify(headers http.Header, body []byte) error {
	sig, err := parseSignatureHeader(headers.Values(SignatureHeaderName))
	if err != nil {
		return err
	}

	expected := computeMAC(sig.rawTimestamp, body, v.secret)

	matched := false
	for _, digest := range sig.digests {
		if hmac.Equal(expected, digest) {
			matched = true
			break
		}
	}
	if !matched {
		return &SignatureError{Kind: ErrMismatch, Detail: fmt.Sprintf("%d candidate digest(s)", len(sig.digests))}
	}

	skew := v.now().Sub(sig.timestamp)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return &SignatureError{
			Kind:   ErrExpired,
			Detail: fmt.Sprintf("skew %s exceeds tolerance %s", skew.Truncate(time.Second), v.tolerance),
		}
	}

	return nil
}

type signature struct {
	rawTimestamp string
	timestamp    time.Time
	digests      [][]byte
}

func parseSignatureHeader(values []string) (signature, error) {
	var sig signature

	joined := strings.TrimSpace(strings.Join(values, ","))
	if joined == "" {
		return sig, &SignatureError{Kind: ErrMalformed, Detail: "header missing"}
	}

	sawDigest := false
	for _, part := range strings.Split(joined, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch key {
		case "t":
			if sig.rawTimestamp == "" {
				sig.rawTimestamp = val
			}
		case signingScheme:
			sawDigest = true
			decoded, err := hex.DecodeString(val)
			if err != nil || len(decoded) == 0 {
				continue
			}
			sig.digests = append(sig.digests, decoded)
		}
	}

	if sig.rawTimestamp == "" {
		return sig, &SignatureError{Kind: ErrMalformed, Detail: "no timestamp"}
	}
	unix, err := strconv.ParseInt(sig.rawTimestamp, 10, 64)
	if err != nil || unix <= 0 {
		return sig, &SignatureError{Kind: ErrMalformed, Detail: fmt.Sprintf("bad timestamp %q", sig.rawTimestamp)}
	}
	sig.timestamp = time.Unix(unix, 0)

	if !sawDigest {
		return sig, &SignatureError{Kind: ErrMalformed, Detail: "no v1 signature"}
	}
	if len(sig.digests) == 0 {
		return sig, &SignatureError{Kind: ErrMalformed, Detail: "v1 signature is not hex"}
	}

	return sig, nil
}

func computeMAC(timestamp string, body, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// ComputeSignature returns the hex v1 digest Stripe would send for body at t.
func ComputeSignature(t time.Time, body []byte, secret string) string {
	return hex.EncodeToString(computeMAC(strconv.FormatInt(t.Unix(), 10), body, []byte(secret)))
}

// SignatureHeader returns a complete Stripe-Signature header value.
func SignatureHeader(t time.Time, body []byte, secret string) string {
	return fmt.Sprintf("t=%d,%s=%s", t.Unix(), signingScheme, ComputeSignature(t, body, secret))
}
