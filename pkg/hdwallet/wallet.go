// 钱包功能
package hdwallet

import (
	"errors"
	"fmt"

	slip10 "github.com/anyproto/go-slip10"
	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
)

const solanaCoinType = 501

type HDWallet struct {
	seed []byte
}

// 实例化结构
// 传递一个助词器和可选的口令
func New(mnemonic string, passphrase string) (*HDWallet, error) {
	if mnemonic == "" {
		return nil, errors.New("mnemonic cannot empty ")
	}
	// 根据助词器生成随机种子，顺带校验校验和
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	return NewFromSeed(seed), nil
}

func NewFromSeed(seed []byte) *HDWallet {
	return &HDWallet{seed: append([]byte(nil), seed...)}
}

// Derive SLIP-0010 ed25519 只支持硬化派生，path 里的下标会自动加上硬化位
// 空 path 返回主私钥
func (w *HDWallet) Derive(path ...uint32) (solana.PrivateKey, error) {
	node, err := slip10.NewMasterNode(w.seed)
	if err != nil {
		return nil, fmt.Errorf("slip10 master: %w", err)
	}
	for _, idx := range path {
		if node, err = node.Derive(idx | slip10.FirstHardenedIndex); err != nil {
			return nil, fmt.Errorf("slip10 derive %d: %w", idx, err)
		}
	}
	_, priv := node.Keypair()
	return solana.PrivateKey(priv), nil
}

// DeriveSolana Phantom / solana-keygen 使用的路径: m/44'/501'/account'/0'
func (w *HDWallet) DeriveSolana(account uint32) (solana.PrivateKey, error) {
	node, err := slip10.DeriveForPath(fmt.Sprintf("m/44'/%d'/%d'/0'", solanaCoinType, account), w.seed)
	if err != nil {
		return nil, fmt.Errorf("slip10 derive account %d: %w", account, err)
	}
	_, priv := node.Keypair()
	return solana.PrivateKey(priv), nil
}
