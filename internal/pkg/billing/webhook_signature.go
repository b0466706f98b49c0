package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"hash"
)

// VerifySharedSecret compares the caller-presented secret with the configured
// one in constant time. Unequal lengths short-circuit; the length of a secret
// is not treated as confidential.
func VerifySharedSecret(presented, configured string) bool {
	if presented == "" || configured == "" {
		return false
	}
	if len(presented) != len(configured) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

// NewPayloadMAC returns the HMAC-SHA256 that payload signatures are computed
// with. Callers that stream the body write it in and finish with VerifyPayloadMAC.
func NewPayloadMAC(key string) hash.Hash {
	return hmac.New(sha256.New, []byte(key))
}

// SignPayload returns base64(HMAC-SHA256(key, body)).
func SignPayload(body []byte, key string) string {
	mac := NewPayloadMAC(key)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyPayloadSignature checks a presented base64 HMAC-SHA256 signature
// against the exact raw request bytes.
func VerifyPayloadSignature(body []byte, presented, key string) bool {
	if key == "" {
		return false
	}
	mac := NewPayloadMAC(key)
	mac.Write(body)
	return VerifyPayloadMAC(mac, presented)
}

// VerifyPayloadMAC compares a presented base64 signature with the sum of a
// MAC that has seen the whole body.
func VerifyPayloadMAC(mac hash.Hash, presented string) bool {
	if presented == "" || mac == nil {
		return false
	}
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if len(presented) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(presented), []byte(expected))
}
