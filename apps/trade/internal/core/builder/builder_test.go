package builder

import (
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"teamtoken.com/apps/trade/internal/core/derive"
	"teamtoken.com/apps/trade/internal/domain"
)

func newBuilder() *Builder {
	return New(derive.New(solana.MustPublicKeyFromBase58("11111111111111111111111111111111")))
}

func TestBuild_Scenario(t *testing.T) {
	b := newBuilder()
	req := domain.TradeRequest{Side: domain.SideBuy, TokenIdentifier: "TOKEN_A", Amount: 1_000_000, SlippageBps: 200}

	env, err := b.Build(req, "WALLET_X", "BLOCK_42")
	require.NoError(t, err)

	assert.Equal(t,
		[]byte{0x00, 0x40, 0x42, 0x0F, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC8, 0x00, 0x00, 0x00},
		env.Instruction().Bytes())
	assert.Equal(t, "BLOCK_42", env.RecentBlockReference())
	assert.Equal(t, domain.Address("WALLET_X"), env.FeePayer())

	accounts := env.Accounts()
	require.Len(t, accounts, 5)

	pos, err := b.deriver.PositionAccount("TOKEN_A", "WALLET_X")
	require.NoError(t, err)
	meta, err := b.deriver.MetadataAccount("TOKEN_A")
	require.NoError(t, err)

	assert.Equal(t, domain.AccountReference{Address: "WALLET_X", IsSigner: true, IsWritable: true}, accounts[0])
	assert.Equal(t, domain.AccountReference{Address: pos.Address, IsWritable: true}, accounts[1])
	assert.Equal(t, domain.AccountReference{Address: meta.Address}, accounts[2])
	assert.Equal(t, domain.AccountReference{Address: domain.AddressFromPublicKey(solana.SystemProgramID)}, accounts[3])
	assert.Equal(t, domain.AccountReference{Address: domain.AddressFromPublicKey(solana.SysVarRentPubkey)}, accounts[4])
}

func TestBuild_Deterministic(t *testing.T) {
	b := newBuilder()
	req := domain.TradeRequest{Side: domain.SideSell, TokenIdentifier: "TOKEN_A", Amount: 42, SlippageBps: 50}

	first, err := b.Build(req, "WALLET_X", "BLOCK_42")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env, err := b.Build(req, "WALLET_X", "BLOCK_42")
			assert.NoError(t, err)
			assert.Equal(t, first, env)
		}()
	}
	wg.Wait()
}

func TestBuild_Rejects(t *testing.T) {
	b := newBuilder()
	good := domain.TradeRequest{Side: domain.SideBuy, TokenIdentifier: "TOKEN_A", Amount: 1, SlippageBps: 200}

	cases := []struct {
		name   string
		req    domain.TradeRequest
		wallet domain.Address
		ref    string
	}{
		{"zero amount", domain.TradeRequest{Side: domain.SideBuy, TokenIdentifier: "TOKEN_A", Amount: 0}, "WALLET_X", "BLOCK_42"},
		{"slippage 1001", domain.TradeRequest{Side: domain.SideBuy, TokenIdentifier: "TOKEN_A", Amount: 1, SlippageBps: 1001}, "WALLET_X", "BLOCK_42"},
		{"wallet not connected", good, "", "BLOCK_42"},
		{"no freshness token", good, "WALLET_X", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			env, err := b.Build(c.req, c.wallet, c.ref)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
			assert.True(t, env.IsZero())
		})
	}
}
