package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"kubeopt.ai/internal/audit"
)

func TestRecordReportsRejectedAuditEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	o := newOptions([]Option{WithLogger(zap.New(core))})

	o.record(context.Background(), audit.EventLogin, zap.String("user_id", "u1"))
	require.Equal(t, 1, logs.FilterMessage("audit").Len())

	o.record(context.Background(), " ")
	dropped := logs.FilterMessage("audit event dropped").All()
	require.Len(t, dropped, 1)
	assert.Equal(t, zapcore.DebugLevel, dropped[0].Level)
	assert.Contains(t, dropped[0].ContextMap()["error"], "event name is required")
}
