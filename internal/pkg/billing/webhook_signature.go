package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>[,v1=...]".
const SignatureHeader = "Stripe-Signature"

// VerifyWebhookSignature checks the HMAC-SHA256 of "<t>.<payload>" against every
// v1 entry of header. A zero tolerance disables the timestamp check.
func VerifyWebhookSignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("%w: webhook secret is not configured", ErrSignatureInvalid)
	}

	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if tolerance > 0 {
		signedAt := time.Unix(ts, 0)
		if now.Sub(signedAt) > tolerance || signedAt.Sub(now) > tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
		}
	}

	expected := computeSignature(payload, secret, ts)
	for _, sig := range sigs {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", ErrSignatureInvalid)
}

// SignWebhookPayload builds a header value VerifyWebhookSignature accepts.
func SignWebhookPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature(payload, secret, ts)))
}

func computeSignature(payload []byte, secret string, ts int64) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, [][]byte, error) {
	var (
		ts    int64
		hasTS bool
		sigs  [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrSignatureInvalid)
			}
			ts, hasTS = parsed, true
		case "v1":
			decoded, err := hex.DecodeString(strings.ToLower(value))
			if err != nil {
				continue
			}
			sigs = append(sigs, decoded)
		}
	}
	if !hasTS || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("%w: header is missing t or v1", ErrSignatureInvalid)
	}
	return ts, sigs, nil
}
