package chain

import (
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the wallet signing provider: it proves control of the chain
// account by signing personal messages and transactions. Implementations may
// be interactive (hardware wallet, browser prompt), this daemon ships a local
// key-backed one.
type Signer interface {
	Address() common.Address
	ChainID() *big.Int
	SignPersonal(message []byte) ([]byte, error)
	SignTx(tx *ethtypes.Transaction) (*ethtypes.Transaction, error)
}

type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainId *big.Int
}

func NewLocalSigner(privateKeyHex string, chainId *big.Int) (*LocalSigner, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, err
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainId: chainId,
	}, nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) ChainID() *big.Int {
	return s.chainId
}

// SignPersonal signs with the EIP-191 personal-message prefix, the scheme
// browser wallets use for eth_sign style prompts. The recovery id is shifted
// to the 27/28 convention so standard verifiers accept it.
func (s *LocalSigner) SignPersonal(message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (s *LocalSigner) SignTx(tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	return ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainId), s.key)
}

// VerifyPersonal recovers the signer of an EIP-191 personal signature and
// compares it against the expected address.
func VerifyPersonal(message, sig []byte, expected common.Address) bool {
	if len(sig) != crypto.SignatureLength {
		return false
	}
	cp := make([]byte, len(sig))
	copy(cp, sig)
	if cp[crypto.RecoveryIDOffset] >= 27 {
		cp[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), cp)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == expected
}
