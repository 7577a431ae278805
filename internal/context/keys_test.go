package context

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", RequestID(ctx))
	assert.Equal(t, "unknown", RemoteAddr(ctx))
	assert.Equal(t, "", APIKeyID(ctx))
	assert.Same(t, slog.Default(), Logger(ctx))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithRemoteAddr(ctx, "192.0.2.1:4000")
	ctx = WithAPIKeyID(ctx, "key-0")
	ctx = WithLogger(ctx, logger)

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "192.0.2.1:4000", RemoteAddr(ctx))
	assert.Equal(t, "key-0", APIKeyID(ctx))
	assert.Same(t, logger, Logger(ctx))
}

func TestKeysDoNotCollideWithStrings(t *testing.T) {
	ctx := context.WithValue(context.Background(), "request_id", "plain") //nolint:staticcheck
	assert.Equal(t, "", RequestID(ctx))
}
