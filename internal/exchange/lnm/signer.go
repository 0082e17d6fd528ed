package lnm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// sign computes the LN Markets REST request signature: HMAC-SHA256 of
// timestamp+method+path+params, keyed by the API secret, base64-encoded.
func sign(secret, timestampMs, method, path, params string) string {
	prehash := timestampMs + method + path + params
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(prehash))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
