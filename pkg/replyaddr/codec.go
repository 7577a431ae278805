// Package replyaddr encodes a (sender, recipient local-part) pair into a
// single email local-part and decodes it again without any server-side
// state. It also encodes bounce ids that expire after a number of days.
//
// Tokens carry a short keyed digest. Anyone holding the secret can mint
// and verify them; anyone else can only see that a token was rejected,
// never why.
package replyaddr

import (
	"errors"
	"time"

	"github.com/busybox42/replyaddr/pkg/mailbox"
)

var (
	// ErrInvalidInput is returned by EncodeReply when the sender is not a
	// valid mailbox.
	ErrInvalidInput = errors.New("invalid reply input")

	// ErrInvalidBounceID is returned by EncodeBounce for ids outside
	// [0, MaxBounceID].
	ErrInvalidBounceID = errors.New("bounce id out of range")
)

// AddressValidator parses mailbox strings into their tagged parts.
type AddressValidator interface {
	Parse(address string) (mailbox.Mailbox, error)
}

// ValidatorFunc adapts a function to AddressValidator.
type ValidatorFunc func(address string) (mailbox.Mailbox, error)

// Parse calls f(address).
func (f ValidatorFunc) Parse(address string) (mailbox.Mailbox, error) {
	return f(address)
}

// DefaultValidator is the RFC 5321 parser from the mailbox package.
var DefaultValidator AddressValidator = ValidatorFunc(mailbox.Parse)

// Codec encodes and decodes reply and bounce tokens. A Codec holds no
// mutable state and is safe for concurrent use.
type Codec struct {
	cfg       Config
	validator AddressValidator
	now       func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithValidator replaces the mailbox parser.
func WithValidator(v AddressValidator) Option {
	return func(c *Codec) {
		c.validator = v
	}
}

// WithClock replaces the clock used to date bounce tokens.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec validates cfg and returns a Codec using it.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Codec{
		cfg:       cfg,
		validator: DefaultValidator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns a copy of the codec configuration.
func (c *Codec) Config() Config {
	return c.cfg
}

// ParseAddress parses address with the codec's validator, so callers agree
// with the codec on what a mailbox is.
func (c *Codec) ParseAddress(address string) (mailbox.Mailbox, error) {
	return c.validator.Parse(address)
}

// validMailbox parses address, reporting only success or failure.
func (c *Codec) validMailbox(address string) bool {
	_, err := c.validator.Parse(address)
	return err == nil
}

var defaultCodec = func() *Codec {
	c, err := NewCodec(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return c
}()

// EncodeReply encodes info with the default configuration.
func EncodeReply(info ReplyInfo, secret string) (string, error) {
	return defaultCodec.EncodeReply(info, secret)
}

// DecodeReply decodes a reply token with the default configuration.
func DecodeReply(token, secret string) (ReplyInfo, bool) {
	return defaultCodec.DecodeReply(token, secret)
}

// EncodeBounce encodes a bounce id with the default configuration.
func EncodeBounce(id int64, secret string) (string, error) {
	return defaultCodec.EncodeBounce(id, secret)
}

// DecodeBounce decodes a bounce token with the default configuration.
func DecodeBounce(token, secret string) (int64, bool) {
	return defaultCodec.DecodeBounce(token, secret)
}
