// Package sign implements the gateway's MD5 parameter signature. MD5 is
// mandated by the gateway protocol, not a choice made here.
package sign

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Reserved parameter names excluded from the signed string on verification.
const (
	FieldSign     = "sign"
	FieldSignType = "sign_type"
)

// Build canonicalizes params and returns the lowercase hex digest. Keys with
// empty values and the reserved "sign" key are dropped, remaining keys are
// sorted bytewise and joined as k=v pairs with '&', then the shared key is
// appended as '&<key>'.
func Build(params map[string]string, key string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" || k == FieldSign {
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
	if key != "" {
		b.WriteByte('&')
		b.WriteString(key)
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the signature over params minus the signature fields and
// compares it to claimed.
func Verify(params map[string]string, claimed string, key string) bool {
	stripped := make(map[string]string, len(params))
	for k, v := range params {
		if k == FieldSign || k == FieldSignType {
			continue
		}
		stripped[k] = v
	}
	return Build(stripped, key) == claimed
}
