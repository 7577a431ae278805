// Package mailbox parses RFC 5321 Mailbox strings, with the RFC 6531
// extensions that allow UTF-8 in local-parts and domains.
//
// The parser reports which grammatical form each half of the address took
// (dot-string or quoted-string, domain name or address literal) and keeps
// the raw text of each half so the address can be reassembled unchanged.
// Length limits are not applied.
package mailbox

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// ErrInvalidAddress is the error all parse failures wrap.
var ErrInvalidAddress = errors.New("invalid mailbox address")

// LocalKind identifies the form of a local-part.
type LocalKind int

const (
	// DotString is an unquoted local-part such as first.last
	DotString LocalKind = iota
	// QuotedString is a local-part in double quotes such as "first last"
	QuotedString
)

// String returns the name of the form
func (k LocalKind) String() string {
	switch k {
	case DotString:
		return "dot-string"
	case QuotedString:
		return "quoted-string"
	default:
		return fmt.Sprintf("LocalKind(%d)", int(k))
	}
}

// DomainKind identifies the form of a domain part.
type DomainKind int

const (
	// DomainName is a dotted host name
	DomainName DomainKind = iota
	// AddressLiteral is a bracketed IP or general address literal
	AddressLiteral
)

// String returns the name of the form
func (k DomainKind) String() string {
	switch k {
	case DomainName:
		return "domain"
	case AddressLiteral:
		return "address-literal"
	default:
		return fmt.Sprintf("DomainKind(%d)", int(k))
	}
}

// LocalPart is the part of a mailbox before the @.
type LocalPart struct {
	Kind  LocalKind
	Value string // raw text, quotes included for QuotedString
}

// DomainPart is the part of a mailbox after the @.
type DomainPart struct {
	Kind  DomainKind
	Value string // raw text, brackets included for AddressLiteral
}

// Mailbox is a parsed address.
type Mailbox struct {
	Local  LocalPart
	Domain DomainPart
}

// String reassembles the address exactly as it was parsed.
func (m Mailbox) String() string {
	return m.Local.Value + "@" + m.Domain.Value
}

// SyntaxError describes where an address failed to parse.
type SyntaxError struct {
	Address string
	Pos     int
	Msg     string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid mailbox address at offset %d: %s", e.Pos, e.Msg)
}

// Unwrap makes every SyntaxError match ErrInvalidAddress.
func (e *SyntaxError) Unwrap() error {
	return ErrInvalidAddress
}

// placeholderDomain completes a bare local-part into a parseable mailbox.
const placeholderDomain = "x.y"

// Parse parses address as an RFC 5321 Mailbox.
func Parse(address string) (Mailbox, error) {
	local, rest, err := scanLocalPart(address)
	if err != nil {
		return Mailbox{}, err
	}
	pos := len(local.Value)
	if rest == "" || rest[0] != '@' {
		return Mailbox{}, syntaxErr(address, pos, "expected @ after local-part")
	}
	domain, err := parseDomainPart(address, pos+1, rest[1:])
	if err != nil {
		return Mailbox{}, err
	}
	return Mailbox{Local: local, Domain: domain}, nil
}

// ParseLocalPart validates local as the local-part of a mailbox.
func ParseLocalPart(local string) (LocalPart, error) {
	mb, err := Parse(local + "@" + placeholderDomain)
	if err != nil {
		return LocalPart{}, err
	}
	return mb.Local, nil
}

func syntaxErr(address string, pos int, msg string) error {
	return &SyntaxError{Address: address, Pos: pos, Msg: msg}
}

func scanLocalPart(s string) (LocalPart, string, error) {
	if strings.HasPrefix(s, `"`) {
		return scanQuotedString(s)
	}

	at := strings.IndexByte(s, '@')
	if at < 0 {
		return LocalPart{}, "", syntaxErr(s, len(s), "missing @")
	}
	local := s[:at]
	if err := checkDotString(s, local); err != nil {
		return LocalPart{}, "", err
	}
	return LocalPart{Kind: DotString, Value: local}, s[at:], nil
}

func checkDotString(address, local string) error {
	if local == "" {
		return syntaxErr(address, 0, "empty local-part")
	}
	atomStart := true
	for i := 0; i < len(local); {
		c := local[i]
		if c == '.' {
			if atomStart {
				return syntaxErr(address, i, "empty atom in dot-string")
			}
			atomStart = true
			i++
			continue
		}
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(local[i:])
			if r == utf8.RuneError {
				return syntaxErr(address, i, "invalid UTF-8")
			}
			i += size
		} else {
			if !isAtext(c) {
				return syntaxErr(address, i, fmt.Sprintf("character %q not allowed in dot-string", c))
			}
			i++
		}
		atomStart = false
	}
	if atomStart {
		return syntaxErr(address, len(local), "dot-string ends with a dot")
	}
	return nil
}

func scanQuotedString(s string) (LocalPart, string, error) {
	for i := 1; i < len(s); {
		c := s[i]
		switch {
		case c == '"':
			// "" is a legal, empty quoted-string.
			return LocalPart{Kind: QuotedString, Value: s[:i+1]}, s[i+1:], nil
		case c == '\\':
			if i+1 >= len(s) || s[i+1] < 32 || s[i+1] > 126 {
				return LocalPart{}, "", syntaxErr(s, i, "invalid quoted-pair")
			}
			i += 2
		case c >= utf8.RuneSelf:
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError {
				return LocalPart{}, "", syntaxErr(s, i, "invalid UTF-8")
			}
			i += size
		case isQtext(c):
			i++
		default:
			return LocalPart{}, "", syntaxErr(s, i, fmt.Sprintf("character %q not allowed in quoted-string", c))
		}
	}
	return LocalPart{}, "", syntaxErr(s, len(s), "unterminated quoted-string")
}

func parseDomainPart(address string, pos int, d string) (DomainPart, error) {
	if strings.HasPrefix(d, "[") {
		if err := checkAddressLiteral(address, pos, d); err != nil {
			return DomainPart{}, err
		}
		return DomainPart{Kind: AddressLiteral, Value: d}, nil
	}
	if err := checkDomain(address, pos, d); err != nil {
		return DomainPart{}, err
	}
	return DomainPart{Kind: DomainName, Value: d}, nil
}

func checkDomain(address string, pos int, d string) error {
	if d == "" {
		return syntaxErr(address, pos, "empty domain")
	}
	for _, label := range strings.Split(d, ".") {
		if label == "" {
			return syntaxErr(address, pos, "empty label in domain")
		}
		if !isASCII(label) {
			if _, err := idna.Lookup.ToASCII(label); err != nil {
				return syntaxErr(address, pos, "invalid internationalized label: "+err.Error())
			}
		} else if !isLdhLabel(label) {
			return syntaxErr(address, pos, fmt.Sprintf("invalid domain label %q", label))
		}
		pos += len(label) + 1
	}
	return nil
}

func checkAddressLiteral(address string, pos int, d string) error {
	if len(d) < 3 || d[len(d)-1] != ']' {
		return syntaxErr(address, pos, "unterminated address literal")
	}
	inner := d[1 : len(d)-1]

	if len(inner) > 5 && strings.EqualFold(inner[:5], "IPv6:") {
		ip, err := netip.ParseAddr(inner[5:])
		if err != nil || !ip.Is6() || ip.Zone() != "" {
			return syntaxErr(address, pos+1, "invalid IPv6 address literal")
		}
		return nil
	}

	if tag, content, ok := strings.Cut(inner, ":"); ok {
		if tag == "" || !isLdhStr(tag) || content == "" {
			return syntaxErr(address, pos+1, "invalid general address literal")
		}
		for i := 0; i < len(content); i++ {
			if !isDcontent(content[i]) {
				return syntaxErr(address, pos+1+len(tag)+1+i, "invalid character in address literal")
			}
		}
		return nil
	}

	ip, err := netip.ParseAddr(inner)
	if err != nil || !ip.Is4() {
		return syntaxErr(address, pos+1, "invalid IPv4 address literal")
	}
	return nil
}

func isAtext(c byte) bool {
	if isAlnum(c) {
		return true
	}
	return strings.IndexByte("!#$%&'*+-/=?^_`{|}~", c) >= 0
}

// qtextSMTP: %d32-33 / %d35-91 / %d93-126
func isQtext(c byte) bool {
	return c == 32 || c == 33 || (c >= 35 && c <= 91) || (c >= 93 && c <= 126)
}

// dcontent: %d33-90 / %d94-126
func isDcontent(c byte) bool {
	return (c >= 33 && c <= 90) || (c >= 94 && c <= 126)
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// isLdhLabel checks sub-domain = Let-dig [Ldh-str].
func isLdhLabel(label string) bool {
	if !isAlnum(label[0]) || !isAlnum(label[len(label)-1]) {
		return false
	}
	return isLdhStr(label)
}

func isLdhStr(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isAlnum(s[i]) && s[i] != '-' {
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
