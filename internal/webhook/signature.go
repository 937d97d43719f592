package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Processor-Signature"

// Sign computes the signature for a payload. Exposed for tests and the
// smoke binary that plays the processor side.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verify checks the signature before any state is touched. Constant-time
// comparison; an empty configured secret rejects everything.
func (i *Ingestor) verify(body []byte, signature string) error {
	if len(i.secret) == 0 {
		return ErrBadSignature
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}
