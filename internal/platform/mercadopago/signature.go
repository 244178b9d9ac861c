package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	tsRegex = regexp.MustCompile(`ts=([^,]+)`)
	v1Regex = regexp.MustCompile(`v1=([^,]+)`)
)

// SignatureVerifier checks the x-signature header of webhook deliveries.
// See: https://www.mercadopago.com.br/developers/pt/docs/your-integrations/notifications/webhooks
type SignatureVerifier struct {
	secret string
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: secret}
}

// Enabled reports whether a webhook secret was configured.
func (v *SignatureVerifier) Enabled() bool {
	return v != nil && v.secret != ""
}

// Verify validates x-signature (ts=<timestamp>,v1=<hash>) where hash is the
// HMAC-SHA256 of "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func (v *SignatureVerifier) Verify(xSignature, xRequestID, dataID string) bool {
	if !v.Enabled() || xSignature == "" {
		return false
	}

	ts, hash := parseSignatureHeader(xSignature)
	if ts == "" || hash == "" {
		return false
	}

	expected := Sign(v.secret, BuildManifest(dataID, xRequestID, ts))
	return hmac.Equal([]byte(strings.ToLower(hash)), []byte(expected))
}

func parseSignatureHeader(header string) (ts, hash string) {
	if m := tsRegex.FindStringSubmatch(header); len(m) > 1 {
		ts = strings.TrimSpace(m[1])
	}
	if m := v1Regex.FindStringSubmatch(header); len(m) > 1 {
		hash = strings.TrimSpace(m[1])
	}
	return ts, hash
}

// BuildManifest constructs the string to be signed. Empty parts are omitted.
func BuildManifest(dataID, requestID, ts string) string {
	var parts []string
	if dataID != "" {
		// alphanumeric ids are signed lowercased
		parts = append(parts, "id:"+strings.ToLower(dataID))
	}
	if requestID != "" {
		parts = append(parts, "request-id:"+requestID)
	}
	if ts != "" {
		parts = append(parts, "ts:"+ts)
	}
	return strings.Join(parts, ";") + ";"
}

// Sign computes the hex HMAC-SHA256 of manifest.
func Sign(secret, manifest string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest))
	return hex.EncodeToString(h.Sum(nil))
}
