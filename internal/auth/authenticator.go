package auth

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/litebridge/bridge-agent/internal/types"
)

// Fields are the payload of a canonical signed message. Nonce is optional
// (nil for intents the relay nonces itself), Recipient only applies to
// transfers.
type Fields struct {
	Amount    *big.Int
	Nonce     *uint64
	Recipient string
	Timestamp int64
}

// CanonicalMessage is the deterministic serialization both signature schemes
// sign. Field order and casing are fixed: intent, lower-cased account,
// amount, nonce, recipient, timestamp, pipe-separated, absent fields empty.
func CanonicalMessage(intent, account string, f Fields) []byte {
	nonce := ""
	if f.Nonce != nil {
		nonce = fmt.Sprintf("%d", *f.Nonce)
	}
	return []byte(fmt.Sprintf("%s|%s|%s|%s|%s|%d",
		intent,
		strings.ToLower(account),
		types.AmountString(f.Amount),
		nonce,
		strings.ToLower(f.Recipient),
		f.Timestamp,
	))
}

// Authenticate builds the canonical message and signs it with both the
// secondary keypair and the chain account. Fails with
// ErrAuthenticationUnavailable when key derivation has not happened, that is
// a precondition, not a retry case.
func (s *Session) Authenticate(intent string, f Fields) (types.SignedMessage, error) {
	keys := s.secondaryKeys()
	if keys == nil {
		return types.SignedMessage{}, types.ErrAuthenticationUnavailable
	}

	message := CanonicalMessage(intent, s.account, f)

	sigSecondary := keys.SignDetached(message)

	// may suspend on user-interactive approval
	sigChain, err := s.signer.SignPersonal(message)
	if err != nil {
		return types.SignedMessage{}, err
	}

	return types.SignedMessage{
		Message:         message,
		SigSecondary:    sigSecondary,
		SigChain:        sigChain,
		PubKeySecondary: keys.SignPub[:],
	}, nil
}
