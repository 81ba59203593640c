package domain

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeRequest_Validate(t *testing.T) {
	ok := TradeRequest{Side: SideBuy, TokenIdentifier: "TOKEN_A", Amount: 1, SlippageBps: MaxSlippageBps}
	assert.NoError(t, ok.Validate())

	cases := map[string]TradeRequest{
		"zero amount":    {Side: SideBuy, TokenIdentifier: "TOKEN_A", Amount: 0},
		"slippage 1001":  {Side: SideSell, TokenIdentifier: "TOKEN_A", Amount: 1, SlippageBps: 1001},
		"empty token":    {Side: SideBuy, TokenIdentifier: "  ", Amount: 1},
		"unknown side 7": {Side: TradeSide(7), TokenIdentifier: "TOKEN_A", Amount: 1},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
		})
	}
}

func TestSlippageFromPercent(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
	}{
		{"0", 0},
		{"0.5", 50},
		{"2", 200},
		{"2.999", 299}, // floor
		{"10", 1000},
	}
	for _, c := range cases {
		got, err := SlippageFromPercent(decimal.RequireFromString(c.in))
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, err := SlippageFromPercent(decimal.RequireFromString("10.5"))
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	_, err = SlippageFromPercent(decimal.RequireFromString("-0.5"))
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	def, err := SlippageFromPercent(DefaultSlippagePercent)
	require.NoError(t, err)
	assert.Equal(t, uint32(200), def)
}

func TestParseTradeSide(t *testing.T) {
	s, err := ParseTradeSide(" BUY ")
	require.NoError(t, err)
	assert.Equal(t, SideBuy, s)

	s, err = ParseTradeSide("sell")
	require.NoError(t, err)
	assert.Equal(t, SideSell, s)

	_, err = ParseTradeSide("hold")
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestAddress_SeedBytes(t *testing.T) {
	// 合法公钥用 32 字节
	pk := solana.SysVarRentPubkey
	assert.Equal(t, pk.Bytes(), AddressFromPublicKey(pk).SeedBytes())

	// 不透明标识用原始字节
	assert.Equal(t, []byte("TOKEN_A"), Address("TOKEN_A").SeedBytes())

	_, err := Address("WALLET_X").PublicKey()
	assert.Error(t, err)
}

func TestFailureReasonMapping(t *testing.T) {
	assert.Equal(t, ReasonStaleReference, BroadcastFailureReason(ErrStaleReference))
	assert.Equal(t, ReasonBroadcastRejected, BroadcastFailureReason(errors.New("rpc down")))
	assert.Equal(t, ReasonSignerRejected, SignFailureReason(ErrSignerRejected))
	assert.Equal(t, ReasonSignerUnavailable, SignFailureReason(errors.New("timeout")))
	assert.Equal(t, ReasonDerivationExhausted, BuildFailureReason(ErrDerivationExhausted))
	assert.Equal(t, ReasonInvalidRequest, BuildFailureReason(ErrInvalidRequest))
	assert.False(t, ReasonDerivationExhausted.Recoverable())
	assert.True(t, ReasonStaleReference.Recoverable())
}

func TestSubmissionState_Recoverable(t *testing.T) {
	cases := map[string]struct {
		st   SubmissionState
		want bool
	}{
		"in flight":            {st: SubmissionState{Phase: PhaseBroadcasting, Signature: "sig"}},
		"confirmed":            {st: SubmissionState{Phase: PhaseConfirmed, Signature: "sig", TxID: "sig"}},
		"stale reference":      {st: SubmissionState{Phase: PhaseFailed, Reason: ReasonStaleReference, Signature: "sig"}, want: true},
		"abandoned unsigned":   {st: SubmissionState{Phase: PhaseFailed, Reason: ReasonAbandoned}, want: true},
		"abandoned after sign": {st: SubmissionState{Phase: PhaseFailed, Reason: ReasonAbandoned, Signature: "sig"}},
		"derivation exhausted": {st: SubmissionState{Phase: PhaseFailed, Reason: ReasonDerivationExhausted}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.st.Recoverable())
		})
	}
}

func TestUnsignedEnvelope_Immutable(t *testing.T) {
	accounts := []AccountReference{{Address: "WALLET_X", IsSigner: true, IsWritable: true}}
	env := NewUnsignedEnvelope("PROGRAM", EncodedInstruction{1, 2}, accounts, "BLOCK_42", "WALLET_X")

	accounts[0].Address = "MUTATED"
	got := env.Accounts()
	got[0].IsSigner = false
	b := env.Instruction().Bytes()
	b[0] = 9

	assert.Equal(t, Address("WALLET_X"), env.Accounts()[0].Address)
	assert.True(t, env.Accounts()[0].IsSigner)
	assert.Equal(t, byte(1), env.Instruction()[0])
	assert.Equal(t, "BLOCK_42", env.RecentBlockReference())
}
