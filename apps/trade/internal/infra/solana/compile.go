package solana

import (
	"encoding/base64"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/pkg/xerr"
)

// Compile 信封 -> 链上交易。信封里的地址和 blockhash 必须都是合法 base58
func Compile(env domain.UnsignedEnvelope) (*solanago.Transaction, error) {
	if env.IsZero() {
		return nil, xerr.New(xerr.TradeInvalidRequest, "empty envelope")
	}
	programID, err := env.ProgramID().PublicKey()
	if err != nil {
		return nil, invalidEnvelope(err)
	}
	feePayer, err := env.FeePayer().PublicKey()
	if err != nil {
		return nil, invalidEnvelope(err)
	}
	blockhash, err := solanago.HashFromBase58(env.RecentBlockReference())
	if err != nil {
		return nil, invalidEnvelope(fmt.Errorf("recent block reference %q: %w", env.RecentBlockReference(), err))
	}

	refs := env.Accounts()
	metas := make(solanago.AccountMetaSlice, 0, len(refs))
	for _, ref := range refs {
		pk, err := ref.Address.PublicKey()
		if err != nil {
			return nil, invalidEnvelope(err)
		}
		metas = append(metas, solanago.NewAccountMeta(pk, ref.IsWritable, ref.IsSigner))
	}

	ix := solanago.NewInstruction(programID, metas, env.Instruction().Bytes())
	tx, err := solanago.NewTransaction([]solanago.Instruction{ix}, blockhash, solanago.TransactionPayer(feePayer))
	if err != nil {
		return nil, invalidEnvelope(err)
	}
	return tx, nil
}

// MessageBase64 待签名消息，给外部钱包签名用
func MessageBase64(env domain.UnsignedEnvelope) (string, error) {
	tx, err := Compile(env)
	if err != nil {
		return "", err
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", invalidEnvelope(err)
	}
	return base64.StdEncoding.EncodeToString(msg), nil
}

func invalidEnvelope(err error) error {
	return xerr.Wrap(err, xerr.TradeInvalidRequest, "envelope cannot be compiled")
}
