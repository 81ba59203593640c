package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// captureLog 把全局 Log 劫持到内存 Buffer
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	buffer := &bytes.Buffer{}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.MessageKey = "msg"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(buffer), zap.DebugLevel)

	prev := Log
	Log = zap.New(core)
	t.Cleanup(func() { Log = prev })
	return buffer
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "日志输出必须是合法的 JSON")
	return entry
}

func TestLogger_Info_WithTraceIDValue(t *testing.T) {
	buf := captureLog(t)
	ctx := context.WithValue(context.Background(), TraceIdKey, "test-trace-12345")

	Info(ctx, "交易已广播", zap.String("wallet", "WALLET_X"), zap.Uint64("amount", 1000000))

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "交易已广播", entry["msg"])
	assert.Equal(t, "WALLET_X", entry["wallet"])
	assert.Equal(t, float64(1000000), entry["amount"])
	assert.Equal(t, "test-trace-12345", entry["trace_id"])
}

func TestLogger_SpanTraceIDWins(t *testing.T) {
	buf := captureLog(t)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := context.WithValue(context.Background(), TraceIdKey, "manual")
	ctx = trace.ContextWithSpanContext(ctx, sc)

	Warn(ctx, "签名超时")

	entry := decode(t, buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
}

func TestLogger_Error_NoTraceID(t *testing.T) {
	buf := captureLog(t)

	Error(context.Background(), "RPC 连接失败", zap.String("rpc", "devnet"))

	entry := decode(t, buf)
	_, exists := entry["trace_id"]
	assert.False(t, exists, "没有 TraceID 的 Context 不应该输出 trace_id 字段")
	assert.Equal(t, "error", entry["level"])
}

func TestSetLevel_AppliesToInitializedLogger(t *testing.T) {
	prev, prevLevel := Log, Level()
	t.Cleanup(func() {
		Log = prev
		_ = SetLevel(prevLevel.String())
	})

	file := filepath.Join(t.TempDir(), "svc.log")
	InitWithFile("svc", "info", file)
	Debug(context.Background(), "hidden")

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, Level())
	Debug(context.Background(), "shown")
	_ = Log.Sync() // stdout 上 Sync 可能报错，文件是直写的

	body, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "hidden")
	assert.Contains(t, string(body), "shown")

	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, zapcore.DebugLevel, Level())
}
