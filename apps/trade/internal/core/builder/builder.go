// Package builder 组装未签名交易信封。纯计算，不访问网络。
package builder

import (
	"strings"

	"github.com/gagliardetto/solana-go"
	"teamtoken.com/apps/trade/internal/core/derive"
	"teamtoken.com/apps/trade/internal/core/encode"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/pkg/xerr"
)

// 账户表最后两项固定引用
var (
	systemProgram = domain.AddressFromPublicKey(solana.SystemProgramID)
	rentSysvar    = domain.AddressFromPublicKey(solana.SysVarRentPubkey)
)

type Builder struct {
	deriver *derive.Deriver
}

func New(deriver *derive.Deriver) *Builder {
	return &Builder{deriver: deriver}
}

func (b *Builder) ProgramID() domain.Address {
	return domain.AddressFromPublicKey(b.deriver.ProgramID())
}

// Build 校验 -> 推导仓位账户 -> 推导元数据账户 -> 编码 -> 组装
// 任一步失败都不返回信封
func (b *Builder) Build(req domain.TradeRequest, wallet domain.Address, recentBlock string) (domain.UnsignedEnvelope, error) {
	if wallet.IsZero() {
		return domain.UnsignedEnvelope{}, xerr.New(xerr.TradeInvalidRequest, "wallet not connected")
	}
	if strings.TrimSpace(recentBlock) == "" {
		return domain.UnsignedEnvelope{}, xerr.New(xerr.TradeInvalidRequest, "recent block reference is empty")
	}
	if err := req.Validate(); err != nil {
		return domain.UnsignedEnvelope{}, err
	}

	position, err := b.deriver.PositionAccount(req.TokenIdentifier, wallet)
	if err != nil {
		return domain.UnsignedEnvelope{}, err
	}
	metadata, err := b.deriver.MetadataAccount(req.TokenIdentifier)
	if err != nil {
		return domain.UnsignedEnvelope{}, err
	}

	ix, err := encode.Encode(req.Side, req.Amount, req.SlippageBps)
	if err != nil {
		return domain.UnsignedEnvelope{}, err
	}

	accounts := make([]domain.AccountReference, domain.AccountCount)
	accounts[domain.AccountWallet] = domain.AccountReference{Address: wallet, IsSigner: true, IsWritable: true}
	accounts[domain.AccountPosition] = domain.AccountReference{Address: position.Address, IsWritable: true}
	accounts[domain.AccountMetadata] = domain.AccountReference{Address: metadata.Address}
	accounts[domain.AccountSystemProgram] = domain.AccountReference{Address: systemProgram}
	accounts[domain.AccountRentSysvar] = domain.AccountReference{Address: rentSysvar}

	return domain.NewUnsignedEnvelope(b.ProgramID(), ix, accounts, recentBlock, wallet), nil
}
