package epay

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

const SignType = "MD5"

// TradeSuccess is the vendor's terminal success sentinel for trade_status.
// Any other value means the payment is not final.
const TradeSuccess = "TRADE_SUCCESS"

// Sign computes the gateway's canonical-string signature: every parameter
// except sign/sign_type and empty values, sorted by key bytewise, joined as
// k=v pairs with '&', with the raw secret key appended, MD5-hashed to
// lowercase hex. The exact byte layout is the vendor's reference algorithm;
// deviating breaks all callback authentication.
func Sign(params map[string]string, key string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || k == "sign_type" || v == "" {
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
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString(key)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the signature over params and compares it with the
// received one case-insensitively. An absent or empty signature fails
// immediately, before any digest is computed.
func Verify(params map[string]string, received, key string) bool {
	if received == "" {
		return false
	}
	return strings.EqualFold(received, Sign(params, key))
}
