// Package rewrite turns envelope data into reply and bounce addresses under
// the configured domains and resolves those addresses back.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	rctx "github.com/busybox42/replyaddr/internal/context"
	"github.com/busybox42/replyaddr/internal/logging"
	"github.com/busybox42/replyaddr/internal/metrics"
	"github.com/busybox42/replyaddr/pkg/mailbox"
	"github.com/busybox42/replyaddr/pkg/replyaddr"
)

const (
	kindReply  = "reply"
	kindBounce = "bounce"
	kindToken  = "token"
)

// ErrMissingSecret is returned by New when no secret is configured
var ErrMissingSecret = errors.New("rewrite: secret is required")

// ServiceConfig holds the settings the service needs
type ServiceConfig struct {
	Secret       string
	ReplyDomain  string
	BounceDomain string
}

// Service issues and resolves reply and bounce addresses. It is safe for
// concurrent use.
type Service struct {
	cfg     ServiceConfig
	codec   *replyaddr.Codec
	events  *logging.TokenLogger
	metrics *metrics.Metrics
}

// New creates a Service. A nil logger uses slog.Default and nil metrics
// disables recording.
func New(cfg ServiceConfig, codec *replyaddr.Codec, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if codec == nil {
		return nil, errors.New("rewrite: codec is required")
	}
	for name, d := range map[string]string{"reply": cfg.ReplyDomain, "bounce": cfg.BounceDomain} {
		mb, err := codec.ParseAddress("x@" + d)
		if err != nil {
			return nil, fmt.Errorf("rewrite: %s domain %q: %w", name, d, err)
		}
		if mb.Domain.Kind != mailbox.DomainName {
			return nil, fmt.Errorf("rewrite: %s domain %q: address literals are not supported", name, d)
		}
	}

	return &Service{
		cfg:     cfg,
		codec:   codec,
		events:  logging.NewTokenLogger(logger),
		metrics: m,
	}, nil
}

// ReplyAddress returns the reply address for a message from mailFrom to the
// local recipient rcptToLocalPart
func (s *Service) ReplyAddress(ctx context.Context, mailFrom, rcptToLocalPart string) (string, error) {
	info := replyaddr.ReplyInfo{MailFrom: mailFrom, RcptToLocalPart: rcptToLocalPart}
	tc := logging.TokenContext{
		Kind:            kindReply,
		MailFrom:        mailFrom,
		RcptToLocalPart: rcptToLocalPart,
		RequestID:       rctx.RequestID(ctx),
	}

	token, err := s.codec.EncodeReply(info, s.cfg.Secret)
	if err != nil {
		s.metrics.RecordEncode(kindReply, metrics.OutcomeInvalid)
		s.events.LogEncodeError(tc, err)
		return "", err
	}

	addr := token + "@" + s.cfg.ReplyDomain
	tc.Address = addr
	s.metrics.RecordEncode(kindReply, metrics.OutcomeOK)
	s.events.LogIssued(tc)
	return addr, nil
}

// ResolveReply decodes a reply address. Addresses outside the reply domain
// and tokens that do not verify are rejected alike.
func (s *Service) ResolveReply(ctx context.Context, address string) (replyaddr.ReplyInfo, bool) {
	start := time.Now()
	tc := logging.TokenContext{Kind: kindReply, Address: address, RequestID: rctx.RequestID(ctx)}

	token, ok := s.tokenFor(address, s.cfg.ReplyDomain)
	if !ok {
		s.reject(tc, start)
		return replyaddr.ReplyInfo{}, false
	}

	info, format, ok := s.codec.MatchReply(token, s.cfg.Secret)
	if !ok {
		s.reject(tc, start)
		return replyaddr.ReplyInfo{}, false
	}

	s.metrics.RecordDecode(kindReply, format.String(), true, time.Since(start))
	tc.Format = format.String()
	tc.MailFrom = info.MailFrom
	tc.RcptToLocalPart = info.RcptToLocalPart
	s.events.LogResolved(tc)
	return info, true
}

// BounceAddress returns the bounce address for a numeric id
func (s *Service) BounceAddress(ctx context.Context, id int64) (string, error) {
	tc := logging.TokenContext{Kind: kindBounce, BounceID: id, RequestID: rctx.RequestID(ctx)}

	token, err := s.codec.EncodeBounce(id, s.cfg.Secret)
	if err != nil {
		s.metrics.RecordEncode(kindBounce, metrics.OutcomeInvalid)
		s.events.LogEncodeError(tc, err)
		return "", err
	}

	addr := token + "@" + s.cfg.BounceDomain
	tc.Address = addr
	s.metrics.RecordEncode(kindBounce, metrics.OutcomeOK)
	s.events.LogIssued(tc)
	return addr, nil
}

// ResolveBounce decodes a bounce address that has not expired
func (s *Service) ResolveBounce(ctx context.Context, address string) (int64, bool) {
	start := time.Now()
	tc := logging.TokenContext{Kind: kindBounce, Address: address, RequestID: rctx.RequestID(ctx)}

	token, ok := s.tokenFor(address, s.cfg.BounceDomain)
	if !ok {
		s.reject(tc, start)
		return 0, false
	}

	id, ok := s.codec.DecodeBounce(token, s.cfg.Secret)
	if !ok {
		s.reject(tc, start)
		return 0, false
	}

	s.metrics.RecordDecode(kindBounce, kindBounce, true, time.Since(start))
	tc.Format = kindBounce
	tc.BounceID = id
	s.events.LogResolved(tc)
	return id, true
}

// DecodeToken resolves a bare local-part as a reply token and, failing
// that, as a bounce token. It serves callers that already split the
// address.
func (s *Service) DecodeToken(ctx context.Context, token string) (replyaddr.ReplyInfo, int64, replyaddr.Format, bool) {
	start := time.Now()
	tc := logging.TokenContext{Kind: kindToken, Address: token, RequestID: rctx.RequestID(ctx)}

	if info, format, ok := s.codec.MatchReply(token, s.cfg.Secret); ok {
		s.metrics.RecordDecode(kindReply, format.String(), true, time.Since(start))
		tc.Kind = kindReply
		tc.Format = format.String()
		tc.MailFrom = info.MailFrom
		tc.RcptToLocalPart = info.RcptToLocalPart
		s.events.LogResolved(tc)
		return info, 0, format, true
	}
	if id, ok := s.codec.DecodeBounce(token, s.cfg.Secret); ok {
		s.metrics.RecordDecode(kindBounce, kindBounce, true, time.Since(start))
		tc.Kind = kindBounce
		tc.Format = kindBounce
		tc.BounceID = id
		s.events.LogResolved(tc)
		return replyaddr.ReplyInfo{}, id, 0, true
	}
	s.reject(tc, start)
	return replyaddr.ReplyInfo{}, 0, 0, false
}

func (s *Service) reject(tc logging.TokenContext, start time.Time) {
	s.metrics.RecordDecode(tc.Kind, "", false, time.Since(start))
	s.events.LogRejected(tc)
}

// tokenFor returns the local-part of address when its domain is domain.
// Tokens are always dot-strings, so quoted local-parts are refused.
func (s *Service) tokenFor(address, domain string) (string, bool) {
	mb, err := s.codec.ParseAddress(address)
	if err != nil {
		return "", false
	}
	if mb.Local.Kind != mailbox.DotString || mb.Domain.Kind != mailbox.DomainName {
		return "", false
	}
	if !strings.EqualFold(mb.Domain.Value, domain) {
		return "", false
	}
	return mb.Local.Value, true
}

// Config returns the service settings without the secret
func (s *Service) Config() ServiceConfig {
	cfg := s.cfg
	cfg.Secret = ""
	return cfg
}
