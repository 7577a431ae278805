package replyaddr

import (
	"fmt"
	"strings"

	"github.com/busybox42/replyaddr/pkg/crockford"
	"github.com/busybox42/replyaddr/pkg/mailbox"
)

// blobSep delimits the fields of a blob payload.
const blobSep = "\x00"

// infix separates the sender local-part from its domain in structured
// tokens so they still read like an address.
const infix = "at"

// ReplyInfo is the pair carried by a reply token.
type ReplyInfo struct {
	MailFrom        string `json:"mail_from"`
	RcptToLocalPart string `json:"rcpt_to_local_part"`
}

func (c *Codec) replyDigest(info ReplyInfo, secret string, length int) string {
	return Digest(secret, length, info.MailFrom, info.RcptToLocalPart)
}

// EncodeReply encodes info into a token that is a valid dot-string
// local-part. It fails only when info.MailFrom is not a valid mailbox;
// any recipient local-part is accepted.
func (c *Codec) EncodeReply(info ReplyInfo, secret string) (string, error) {
	from, err := c.validator.Parse(info.MailFrom)
	if err != nil {
		return "", fmt.Errorf("%w: mail from %q: %w", ErrInvalidInput, info.MailFrom, err)
	}

	if c.needsBlob(from, info.RcptToLocalPart) {
		return c.encodeBlob(info, secret), nil
	}

	sep, ok := c.separatorFor(info.RcptToLocalPart)
	if !ok {
		return c.encodeBlob(info, secret), nil
	}

	var b strings.Builder
	b.WriteString(from.Local.Value)
	b.WriteByte(sep)
	b.WriteString(infix)
	b.WriteByte(sep)
	b.WriteString(from.Domain.Value)
	b.WriteByte(sep)
	b.WriteString(c.replyDigest(info, secret, c.cfg.DigestLength))
	b.WriteByte(sep)
	b.WriteString(info.RcptToLocalPart)
	return b.String(), nil
}

// needsBlob reports whether the pair cannot be written as a structured
// token that is itself a dot-string.
func (c *Codec) needsBlob(from mailbox.Mailbox, rcpt string) bool {
	if from.Local.Kind == mailbox.QuotedString || from.Domain.Kind == mailbox.AddressLiteral {
		return true
	}
	local, err := c.validator.Parse(rcpt + "@x.y")
	if err != nil {
		return true
	}
	return local.Local.Kind == mailbox.QuotedString
}

func (c *Codec) separatorFor(rcpt string) (byte, bool) {
	for i := 0; i < len(c.cfg.Separators); i++ {
		if strings.IndexByte(rcpt, c.cfg.Separators[i]) < 0 {
			return c.cfg.Separators[i], true
		}
	}
	return 0, false
}

func (c *Codec) encodeBlob(info ReplyInfo, secret string) string {
	payload := c.replyDigest(info, secret, c.cfg.DigestLength) + blobSep + info.RcptToLocalPart + blobSep + info.MailFrom
	blob := strings.ToLower(crockford.Encode([]byte(payload)))
	if len(blob) <= c.cfg.BlobMinLength {
		// Too short to be told apart from an ordinary local-part.
		return strings.ToLower(c.cfg.LegacyPrefix) + blob
	}
	return blob
}

// DecodeReply returns the pair carried by token, or false if token is not
// a reply token minted with secret. Failure carries no reason.
func (c *Codec) DecodeReply(token, secret string) (ReplyInfo, bool) {
	info, _, ok := c.MatchReply(token, secret)
	return info, ok
}

// MatchReply is DecodeReply that also reports which format verified.
func (c *Codec) MatchReply(token, secret string) (ReplyInfo, Format, bool) {
	if !c.validMailbox(token + "@x.y") {
		return ReplyInfo{}, 0, false
	}
	for _, f := range replyFormats {
		if info, ok := f.decode(c, token, secret); ok {
			return info, f.format, true
		}
	}
	return ReplyInfo{}, 0, false
}

func (c *Codec) decodeBareBlob(token, secret string) (ReplyInfo, bool) {
	if len(token) <= c.cfg.BlobMinLength || !crockford.IsAlphabet(token) {
		return ReplyInfo{}, false
	}
	return c.decodeBlob(token, secret)
}

func (c *Codec) decodeBlob(blob, secret string) (ReplyInfo, bool) {
	raw, err := crockford.Decode(blob)
	if err != nil {
		return ReplyInfo{}, false
	}
	payload := string(raw)

	// The sender is a valid mailbox and never holds NUL; the recipient may.
	first := strings.Index(payload, blobSep)
	last := strings.LastIndex(payload, blobSep)
	if first < 0 || first == last {
		return ReplyInfo{}, false
	}
	digest := payload[:first]
	info := ReplyInfo{
		RcptToLocalPart: payload[first+1 : last],
		MailFrom:        payload[last+1:],
	}
	if !c.validMailbox(info.MailFrom) {
		return ReplyInfo{}, false
	}
	if !c.verifyDigest(digest, secret, info.MailFrom, info.RcptToLocalPart) {
		return ReplyInfo{}, false
	}
	return info, true
}

func (c *Codec) decodeStructured(token, secret string) (ReplyInfo, bool) {
	for i := 0; i < len(c.cfg.Separators); i++ {
		if info, ok := c.decodeStructuredSep(token, secret, c.cfg.Separators[i]); ok {
			return info, true
		}
	}
	return ReplyInfo{}, false
}

// decodeStructuredSep reads local[<sep>at]<sep>domain<sep>digest<sep>rcpt
// from the right, since only the sender local-part may hold sep.
func (c *Codec) decodeStructuredSep(token, secret string, sep byte) (ReplyInfo, bool) {
	rcptSep := strings.LastIndexByte(token, sep)
	if rcptSep < 0 {
		return ReplyInfo{}, false
	}
	digestSep := strings.LastIndexByte(token[:rcptSep], sep)
	if digestSep < 0 {
		return ReplyInfo{}, false
	}
	digest := token[digestSep+1 : rcptSep]
	if !c.digestShape(digest) {
		return ReplyInfo{}, false
	}
	domainSep := strings.LastIndexByte(token[:digestSep], sep)
	if domainSep < 0 {
		return ReplyInfo{}, false
	}
	domain := token[domainSep+1 : digestSep]
	local := token[:domainSep]
	rcpt := token[rcptSep+1:]

	locals := make([]string, 0, 2)
	tail := string(sep) + infix
	if len(local) > len(tail) && strings.EqualFold(local[len(local)-len(tail):], tail) {
		locals = append(locals, local[:len(local)-len(tail)])
	}
	// Tokens from before the infix was introduced.
	locals = append(locals, local)

	for _, l := range locals {
		info := ReplyInfo{MailFrom: l + "@" + domain, RcptToLocalPart: rcpt}
		if !c.validMailbox(info.MailFrom) {
			continue
		}
		if c.verifyDigest(digest, secret, info.MailFrom, info.RcptToLocalPart) {
			return info, true
		}
	}
	return ReplyInfo{}, false
}

// trimLegacyPrefix strips the legacy prefix in any case.
func (c *Codec) trimLegacyPrefix(token string) (string, bool) {
	p := c.cfg.LegacyPrefix
	if len(token) < len(p) || !strings.EqualFold(token[:len(p)], p) {
		return "", false
	}
	return token[len(p):], true
}

// decodeLegacyPrefixed reads rep=digest=rcpt=local=domain. The first two
// '=' bound the digest and recipient; the last one the domain, so the
// sender local-part may hold '='.
func (c *Codec) decodeLegacyPrefixed(token, secret string) (ReplyInfo, bool) {
	rest, ok := c.trimLegacyPrefix(token)
	if !ok || crockford.IsAlphabet(rest) {
		return ReplyInfo{}, false
	}
	const sep = "="

	first := strings.Index(rest, sep)
	if first < 0 {
		return ReplyInfo{}, false
	}
	second := strings.Index(rest[first+1:], sep)
	if second < 0 {
		return ReplyInfo{}, false
	}
	second += first + 1
	last := strings.LastIndex(rest, sep)
	if last == second {
		return ReplyInfo{}, false
	}

	digest := rest[:first]
	info := ReplyInfo{
		RcptToLocalPart: rest[first+1 : second],
		MailFrom:        rest[second+1:last] + "@" + rest[last+1:],
	}
	if !c.validMailbox(info.MailFrom) {
		return ReplyInfo{}, false
	}
	if !c.verifyDigest(digest, secret, info.MailFrom, info.RcptToLocalPart) {
		return ReplyInfo{}, false
	}
	return info, true
}

func (c *Codec) decodeLegacyPrefixedBlob(token, secret string) (ReplyInfo, bool) {
	rest, ok := c.trimLegacyPrefix(token)
	if !ok || !crockford.IsAlphabet(rest) {
		return ReplyInfo{}, false
	}
	return c.decodeBlob(rest, secret)
}
