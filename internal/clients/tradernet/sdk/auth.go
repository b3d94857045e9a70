package sdk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// stringify JSON-encodes params with stable key ordering and no extra
// whitespace, matching the exact byte sequence the API signs over.
func stringify(params interface{}) (string, error) {
	if params == nil {
		return "{}", nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// sign computes the HMAC-SHA256 signature (hex-encoded) the broker's API
// requires on every authenticated request: hex(HMAC_SHA256(privateKey, message)).
func sign(privateKey, message string) string {
	mac := hmac.New(sha256.New, []byte(privateKey))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
