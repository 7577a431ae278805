package replyaddr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned by Config.Validate and NewCodec.
var ErrInvalidConfig = errors.New("invalid codec configuration")

// maxDigestLength is the length of a fully encoded SHA-256 sum.
const maxDigestLength = 52

// Config holds the tunables of the token formats. It is copied into a Codec
// and never modified afterwards.
type Config struct {
	// Separators are tried in order when building a structured token; the
	// first one absent from the recipient local-part is used.
	Separators string

	// BlobMinLength is the length a bare alphabet-only token must exceed
	// to be read as a blob. Shorter alphabet-only strings are not tokens.
	BlobMinLength int

	// DigestLength is the digest length written by the encoders.
	DigestLength int

	// LegacyDigestMin and LegacyDigestMax bound the digest lengths accepted
	// by the structured decoders.
	LegacyDigestMin int
	LegacyDigestMax int

	// LegacyPrefix marks reply tokens from the first protocol revision.
	LegacyPrefix string

	// BouncePrefix starts every bounce token.
	BouncePrefix string

	// BounceExpiryDays is how many whole days a bounce token stays valid
	// after the day it was issued.
	BounceExpiryDays int
}

// DefaultConfig returns the configuration of the current token revision.
func DefaultConfig() Config {
	return Config{
		Separators:       "_=",
		BlobMinLength:    25,
		DigestLength:     6,
		LegacyDigestMin:  6,
		LegacyDigestMax:  10,
		LegacyPrefix:     "rep=",
		BouncePrefix:     "Bounce0=",
		BounceExpiryDays: 7,
	}
}

// Validate checks that the configuration produces tokens that are valid
// dot-string local-parts and that the decoders can take apart.
func (c Config) Validate() error {
	if c.Separators == "" {
		return fmt.Errorf("%w: at least one separator is required", ErrInvalidConfig)
	}
	for i := 0; i < len(c.Separators); i++ {
		s := c.Separators[i]
		if !isSeparatorChar(s) {
			return fmt.Errorf("%w: separator %q is not usable", ErrInvalidConfig, s)
		}
		if strings.IndexByte(c.Separators[:i], s) >= 0 {
			return fmt.Errorf("%w: separator %q listed twice", ErrInvalidConfig, s)
		}
	}

	if c.LegacyDigestMin < 1 || c.LegacyDigestMax > maxDigestLength || c.LegacyDigestMin > c.LegacyDigestMax {
		return fmt.Errorf("%w: digest length range %d-%d", ErrInvalidConfig, c.LegacyDigestMin, c.LegacyDigestMax)
	}
	if c.DigestLength < c.LegacyDigestMin || c.DigestLength > c.LegacyDigestMax {
		return fmt.Errorf("%w: digest length %d outside %d-%d", ErrInvalidConfig,
			c.DigestLength, c.LegacyDigestMin, c.LegacyDigestMax)
	}
	if c.BlobMinLength < 0 {
		return fmt.Errorf("%w: negative blob length threshold", ErrInvalidConfig)
	}
	if c.BounceExpiryDays < 0 {
		return fmt.Errorf("%w: negative bounce expiry", ErrInvalidConfig)
	}

	for name, prefix := range map[string]string{"legacy prefix": c.LegacyPrefix, "bounce prefix": c.BouncePrefix} {
		if !strings.HasSuffix(prefix, "=") || len(prefix) < 2 {
			return fmt.Errorf("%w: %s %q must end with '='", ErrInvalidConfig, name, prefix)
		}
		for i := 0; i < len(prefix)-1; i++ {
			if !isAlnum(prefix[i]) {
				return fmt.Errorf("%w: %s %q must be alphanumeric before '='", ErrInvalidConfig, name, prefix)
			}
		}
	}
	return nil
}

// isSeparatorChar accepts dot-string punctuation that can never appear in a
// domain name or a digest.
func isSeparatorChar(c byte) bool {
	return strings.IndexByte("!#$%&'*+/=?^_`{|}~", c) >= 0
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
