package auth

import (
	"bytes"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/sign"
)

// KeyDerivationMessage is signed once by the chain account to derive the
// secondary keypair. Changing it invalidates every derived identity, so it is
// versioned.
const KeyDerivationMessage = "bridge-agent key derivation v1"

// SecondaryKeys is the off-chain identity: an ed25519 signing pair plus a
// curve25519 encryption pair. Held only in memory, never persisted.
type SecondaryKeys struct {
	SignPub  *[32]byte
	signPriv *[64]byte
	BoxPub   *[32]byte
	boxPriv  *[32]byte
}

// DeriveSecondaryKeys builds the secondary keypair deterministically from a
// chain-account signature over KeyDerivationMessage. The same wallet always
// derives the same identity, so nothing needs to be stored.
func DeriveSecondaryKeys(derivationSig []byte) (*SecondaryKeys, error) {
	signSeed := crypto.Keccak256(derivationSig, []byte("sign"))
	boxSeed := crypto.Keccak256(derivationSig, []byte("box"))

	signPub, signPriv, err := sign.GenerateKey(bytes.NewReader(signSeed))
	if err != nil {
		return nil, err
	}
	boxPub, boxPriv, err := box.GenerateKey(bytes.NewReader(boxSeed))
	if err != nil {
		return nil, err
	}
	return &SecondaryKeys{
		SignPub:  signPub,
		signPriv: signPriv,
		BoxPub:   boxPub,
		boxPriv:  boxPriv,
	}, nil
}

// SignDetached produces a 64-byte detached ed25519 signature.
func (k *SecondaryKeys) SignDetached(message []byte) []byte {
	signed := sign.Sign(nil, message, k.signPriv)
	return signed[:sign.Overhead]
}

// VerifyDetached checks a detached signature against a public key.
func VerifyDetached(message, sig []byte, pub *[32]byte) bool {
	if len(sig) != sign.Overhead {
		return false
	}
	attached := make([]byte, 0, len(sig)+len(message))
	attached = append(attached, sig...)
	attached = append(attached, message...)
	_, ok := sign.Open(nil, attached, pub)
	return ok
}

// Destroy zeroes the private halves. Called on session teardown.
func (k *SecondaryKeys) Destroy() {
	if k.signPriv != nil {
		for i := range k.signPriv {
			k.signPriv[i] = 0
		}
	}
	if k.boxPriv != nil {
		for i := range k.boxPriv {
			k.boxPriv[i] = 0
		}
	}
}
