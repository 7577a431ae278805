// Package crockford implements the Crockford variant of base-32.
//
// The alphabet omits I, L, O and U so encoded strings survive being read
// aloud, retyped or case-folded by mail systems. Output is unpadded.
// See https://www.crockford.com/base32.html.
package crockford

import (
	"encoding/base32"
	"errors"
	"strings"
)

// Alphabet is the 32-symbol Crockford alphabet in upper case.
const Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ErrInvalidEncoding is returned when a string is not valid Crockford base-32.
var ErrInvalidEncoding = errors.New("invalid crockford base32 encoding")

var encoding = base32.NewEncoding(Alphabet).WithPadding(base32.NoPadding)

// member[c] is true when byte c is in the alphabet, in either case.
var member [256]bool

func init() {
	for i := 0; i < len(Alphabet); i++ {
		c := Alphabet[i]
		member[c] = true
		if c >= 'A' && c <= 'Z' {
			member[c+'a'-'A'] = true
		}
	}
}

// Encode returns the upper-case Crockford encoding of b.
func Encode(b []byte) string {
	return encoding.EncodeToString(b)
}

// Decode decodes s, ignoring case.
func Decode(s string) ([]byte, error) {
	if !IsAlphabet(s) && s != "" {
		return nil, ErrInvalidEncoding
	}
	// A trailing group of 1, 3 or 6 symbols cannot come from whole bytes.
	switch len(s) % 8 {
	case 1, 3, 6:
		return nil, ErrInvalidEncoding
	}
	upper := strings.ToUpper(s)
	b, err := encoding.DecodeString(upper)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	// The unused low bits of the last symbol must be zero, otherwise
	// several strings would decode to the same bytes.
	if encoding.EncodeToString(b) != upper {
		return nil, ErrInvalidEncoding
	}
	return b, nil
}

// IsAlphabet reports whether s is non-empty and made only of alphabet
// characters, in either case.
func IsAlphabet(s string) bool {
	if s == "" {
		return false
	}
	ok := true
	for i := 0; i < len(s); i++ {
		ok = ok && member[s[i]]
	}
	return ok
}
