package solana

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/pkg/hdwallet"
	"teamtoken.com/pkg/xerr"
)

type SignerConfig struct {
	KeypairPath string `mapstructure:"keypair_path"` // solana-keygen 生成的 json
	Mnemonic    string `mapstructure:"mnemonic"`
	Passphrase  string `mapstructure:"passphrase"`
	Account     uint32 `mapstructure:"account"` // m/44'/501'/account'/0'
}

// LoadKey keypair 文件优先，其次助记词
func LoadKey(cfg SignerConfig) (solanago.PrivateKey, error) {
	switch {
	case cfg.KeypairPath != "":
		path, err := expandHome(cfg.KeypairPath)
		if err != nil {
			return nil, err
		}
		key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
		if err != nil {
			return nil, fmt.Errorf("load keypair %s: %w", cfg.KeypairPath, err)
		}
		return key, nil
	case cfg.Mnemonic != "":
		w, err := hdwallet.New(cfg.Mnemonic, cfg.Passphrase)
		if err != nil {
			return nil, err
		}
		return w.DeriveSolana(cfg.Account)
	}
	return nil, errors.New("signer: neither keypair_path nor mnemonic configured")
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}

// KeypairSigner 服务端持有私钥的签名器，只签自己付费的交易
type KeypairSigner struct {
	key solanago.PrivateKey
}

func NewKeypairSigner(key solanago.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key}
}

func (s *KeypairSigner) Address() domain.Address {
	return domain.AddressFromPublicKey(s.key.PublicKey())
}

func (s *KeypairSigner) Sign(ctx context.Context, env domain.UnsignedEnvelope) (domain.SignedEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return domain.SignedEnvelope{}, xerr.Wrap(err, xerr.TradeSignerUnavailable, "")
	}
	if env.FeePayer() != s.Address() {
		return domain.SignedEnvelope{}, xerr.Wrap(domain.ErrSignerRejected, xerr.TradeSignerRejected,
			fmt.Sprintf("fee payer %s is not the signer %s", env.FeePayer(), s.Address()))
	}

	tx, err := Compile(env)
	if err != nil {
		return domain.SignedEnvelope{}, xerr.Wrap(err, xerr.TradeSignerRejected, "")
	}
	own := s.key.PublicKey()
	sigs, err := tx.Sign(func(pk solanago.PublicKey) *solanago.PrivateKey {
		if pk.Equals(own) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return domain.SignedEnvelope{}, xerr.Wrap(err, xerr.TradeSignerRejected, "")
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return domain.SignedEnvelope{}, xerr.Wrap(err, xerr.TradeSignerUnavailable, "")
	}
	return domain.SignedEnvelope{Envelope: env, Signature: sigs[0].String(), Raw: raw}, nil
}
