package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"teamtoken.com/apps/trade/internal/core/builder"
	"teamtoken.com/apps/trade/internal/core/derive"
	"teamtoken.com/apps/trade/internal/core/service"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/apps/trade/internal/infra/events"
	"teamtoken.com/pkg/xerr"
)

func init() { gin.SetMode(gin.TestMode) }

type freshness struct{}

func (freshness) LatestBlockReference(context.Context) (string, error) { return "BLOCK_42", nil }

type gatedSigner struct {
	gate chan struct{}
}

func (s *gatedSigner) Address() domain.Address { return "WALLET_X" }

func (s *gatedSigner) Sign(ctx context.Context, env domain.UnsignedEnvelope) (domain.SignedEnvelope, error) {
	select {
	case <-s.gate:
	case <-ctx.Done():
		return domain.SignedEnvelope{}, ctx.Err()
	}
	return domain.SignedEnvelope{Envelope: env, Signature: "sig", Raw: []byte{1}}, nil
}

type okBroadcaster struct{}

func (okBroadcaster) Submit(context.Context, domain.SignedEnvelope) (string, error) {
	return "TX_1", nil
}

type response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	engine *gin.Engine
	svc    *service.TradeService
	signer *gatedSigner
	broker *events.MemBroker
}

func newFixture(t *testing.T, probe ChainProbe) *fixture {
	t.Helper()
	broker := events.NewMemBroker(16)
	signer := &gatedSigner{gate: make(chan struct{})}
	b := builder.New(derive.New(solana.SystemProgramID))
	svc := service.NewTradeService(b, freshness{}, signer, okBroadcaster{})
	h := NewTradeHandler(svc, broker, probe)
	return &fixture{engine: NewEngine("trade-test", h, nil), svc: svc, signer: signer, broker: broker}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, response) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	f.engine.ServeHTTP(w, req)
	var resp response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestPreview(t *testing.T) {
	f := newFixture(t, nil)

	code, resp := f.do(t, http.MethodPost, "/api/trade/preview",
		`{"side":"buy","token":"TOKEN_A","amount":"1000000","slippage_percent":"2"}`)
	require.Equal(t, http.StatusOK, code)

	var p previewResp
	require.NoError(t, json.Unmarshal(resp.Data, &p))
	assert.Equal(t, "buy", p.Side)
	assert.Equal(t, uint64(1_000_000), p.Amount)
	assert.Equal(t, uint32(200), p.SlippageBps)
	assert.Equal(t, "0040420f0000000000c8000000", p.Instruction)
	assert.Equal(t, "BLOCK_42", p.RecentBlock)
	assert.Equal(t, "WALLET_X", p.FeePayer)
	require.Len(t, p.Accounts, 5)
	assert.Equal(t, accountResp{Address: "WALLET_X", IsSigner: true, IsWritable: true}, p.Accounts[0])
	assert.Equal(t, solana.SystemProgramID.String(), p.Accounts[3].Address)
	assert.Equal(t, solana.SysVarRentPubkey.String(), p.Accounts[4].Address)
}

func TestPreview_Rejects(t *testing.T) {
	f := newFixture(t, nil)

	cases := map[string]string{
		"bad json":      `{"side":`,
		"missing side":  `{"token":"TOKEN_A","amount":"1"}`,
		"zero amount":   `{"side":"buy","token":"TOKEN_A","amount":"0"}`,
		"slippage 10.1": `{"side":"sell","token":"TOKEN_A","amount":"1","slippage_percent":"10.1"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			code, resp := f.do(t, http.MethodPost, "/api/trade/preview", body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, xerr.TradeInvalidRequest, resp.Code)
		})
	}
}

func TestSubmit_ConflictThenConfirm(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"side":"sell","token":"TOKEN_A","amount":500}`

	code, resp := f.do(t, http.MethodPost, "/api/trade/submit", body)
	require.Equal(t, http.StatusOK, code, string(resp.Data))
	var started struct {
		AttemptID string `json:"attempt_id"`
		Wallet    string `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &started))
	assert.NotEmpty(t, started.AttemptID)
	assert.Equal(t, "WALLET_X", started.Wallet)

	// 签名还没回来，第二次提交必须 409
	code, resp = f.do(t, http.MethodPost, "/api/trade/submit", body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, xerr.TradeAttemptInProgress, resp.Code)

	// 进行中不能 reset
	code, _ = f.do(t, http.MethodPost, "/api/trade/reset", "")
	assert.Equal(t, http.StatusConflict, code)

	close(f.signer.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	final, err := f.svc.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseConfirmed, final.Phase)

	code, resp = f.do(t, http.MethodGet, "/api/trade/state", "")
	require.Equal(t, http.StatusOK, code)
	var st domain.SubmissionState
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, domain.PhaseConfirmed, st.Phase)
	assert.Equal(t, "TX_1", st.TxID)

	code, resp = f.do(t, http.MethodPost, "/api/trade/reset", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, domain.PhaseIdle, st.Phase)
}

func TestState_UnknownWalletIsIdle(t *testing.T) {
	f := newFixture(t, nil)
	code, resp := f.do(t, http.MethodGet, "/api/trade/state?wallet=WALLET_Z", "")
	require.Equal(t, http.StatusOK, code)
	var st domain.SubmissionState
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, domain.PhaseIdle, st.Phase)
	assert.Equal(t, domain.Address("WALLET_Z"), st.Wallet)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, func(context.Context) (uint64, error) { return 42, nil })
	code, resp := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"slot":42`)

	f = newFixture(t, func(context.Context) (uint64, error) { return 0, errors.New("dial tcp: refused") })
	code, resp = f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, xerr.TradeChainUnavailable, resp.Code)
}

// httptest.ResponseRecorder 没实现 CloseNotifier，gin 的 Stream 需要
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

type notifyBroker struct {
	*events.MemBroker
	subscribed chan struct{}
}

func (b *notifyBroker) Subscribe(ctx context.Context, topics []string) (<-chan events.Message, error) {
	ch, err := b.MemBroker.Subscribe(ctx, topics)
	close(b.subscribed)
	return ch, err
}

func TestEvents_StreamsStateChanges(t *testing.T) {
	mem := events.NewMemBroker(16)
	broker := &notifyBroker{MemBroker: mem, subscribed: make(chan struct{})}
	b := builder.New(derive.New(solana.SystemProgramID))
	svc := service.NewTradeService(b, freshness{}, &gatedSigner{gate: make(chan struct{})}, okBroadcaster{})
	engine := NewEngine("trade-test", NewTradeHandler(svc, broker, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	req := httptest.NewRequest(http.MethodGet, "/api/trade/events", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.ServeHTTP(w, req)
	}()

	select {
	case <-broker.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never subscribed")
	}
	pub := events.NewStatePublisher(mem)
	pub.OnTransition(ctx,
		domain.SubmissionState{Phase: domain.PhaseBroadcasting, Wallet: "WALLET_X"},
		domain.SubmissionState{Phase: domain.PhaseConfirmed, Wallet: "WALLET_X", TxID: "TX_9"},
	)
	// 给 handler 一点时间写出去再断开
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after client went away")
	}
	body := w.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event:state"), body)
	assert.Contains(t, body, `"phase":"Idle"`)
	assert.Contains(t, body, `"tx_id":"TX_9"`)
}
