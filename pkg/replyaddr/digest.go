package replyaddr

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/busybox42/replyaddr/pkg/crockford"
)

// Digest computes the keyed integrity value over fields.
//
// The fields are lower-cased before hashing so the digest survives the case
// folding mail systems apply to local-parts. The secret is used as given.
// The result is the first length characters of the Crockford encoding of
// SHA-256(secret || fields...), in lower case.
func Digest(secret string, length int, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(secret))
	lower := cases.Lower(language.Und)
	for _, f := range fields {
		h.Write([]byte(lower.String(f)))
	}
	sum := crockford.Encode(h.Sum(nil))
	if length > len(sum) {
		length = len(sum)
	}
	return strings.ToLower(sum[:length])
}

// verifyDigest recomputes the digest at the embedded length and compares
// the two in constant time, ignoring case.
func (c *Codec) verifyDigest(embedded, secret string, fields ...string) bool {
	if !c.digestShape(embedded) {
		return false
	}
	want := Digest(secret, len(embedded), fields...)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(embedded)), []byte(want)) == 1
}

// digestShape reports whether s could be a digest of any accepted length.
func (c *Codec) digestShape(s string) bool {
	return len(s) >= c.cfg.LegacyDigestMin && len(s) <= c.cfg.LegacyDigestMax && crockford.IsAlphabet(s)
}
