package logging

import (
	"log/slog"
)

// TokenLogger provides structured logging for reply and bounce token events
type TokenLogger struct {
	logger *slog.Logger
}

// NewTokenLogger creates a new token event logger
func NewTokenLogger(logger *slog.Logger) *TokenLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenLogger{
		logger: logger.With("component", "token-codec"),
	}
}

// TokenContext contains what is known about a token event
type TokenContext struct {
	Kind            string // reply or bounce
	Format          string
	MailFrom        string
	RcptToLocalPart string
	BounceID        int64
	Address         string
	RequestID       string
}

// LogIssued logs a newly minted reply or bounce address
func (tl *TokenLogger) LogIssued(ctx TokenContext) {
	attrs := []any{
		"event_type", "issued",
		"kind", ctx.Kind,
		"address", ctx.Address,
	}
	if ctx.Kind == "bounce" {
		attrs = append(attrs, "bounce_id", ctx.BounceID)
	} else {
		attrs = append(attrs, "mail_from", ctx.MailFrom, "rcpt_to_local_part", ctx.RcptToLocalPart)
	}
	if ctx.RequestID != "" {
		attrs = append(attrs, "request_id", ctx.RequestID)
	}
	tl.logger.Debug("token_issued", attrs...)
}

// LogResolved logs a token that decoded and verified
func (tl *TokenLogger) LogResolved(ctx TokenContext) {
	attrs := []any{
		"event_type", "resolved",
		"kind", ctx.Kind,
		"format", ctx.Format,
		"address", ctx.Address,
	}
	if ctx.Kind == "bounce" {
		attrs = append(attrs, "bounce_id", ctx.BounceID)
	} else {
		attrs = append(attrs, "mail_from", ctx.MailFrom, "rcpt_to_local_part", ctx.RcptToLocalPart)
	}
	if ctx.RequestID != "" {
		attrs = append(attrs, "request_id", ctx.RequestID)
	}
	tl.logger.Info("token_resolved", attrs...)
}

// LogRejected logs a token that did not verify. No reason is recorded;
// the codec does not produce one.
func (tl *TokenLogger) LogRejected(ctx TokenContext) {
	attrs := []any{
		"event_type", "rejected",
		"kind", ctx.Kind,
		"address", ctx.Address,
	}
	if ctx.RequestID != "" {
		attrs = append(attrs, "request_id", ctx.RequestID)
	}
	tl.logger.Debug("token_rejected", attrs...)
}

// LogEncodeError logs an encode request that was refused
func (tl *TokenLogger) LogEncodeError(ctx TokenContext, err error) {
	tl.logger.Warn("token_encode_failed",
		"event_type", "encode_error",
		"kind", ctx.Kind,
		"mail_from", ctx.MailFrom,
		"error", err,
	)
}
