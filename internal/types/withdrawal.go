package types

import (
	"math/big"
)

// Intent types carried inside canonical signed messages.
const (
	IntentWithdraw = "withdraw"
	IntentTransfer = "transfer"
)

// SignedMessage is the dual-signature credential bundle: one signature from
// the off-chain secondary keypair, one from the chain account, both over the
// identical canonical byte string.
type SignedMessage struct {
	Message         []byte `json:"message"`
	SigSecondary    []byte `json:"sig_secondary"`
	SigChain        []byte `json:"sig_chain"`
	PubKeySecondary []byte `json:"pubkey_secondary"`
}

// Proof is the relay-supplied Merkle membership evidence. Read-only once
// fetched; ProofBlob is opaque to the client, validity is decided on-chain.
type Proof struct {
	Account   string
	Amount    *big.Int
	Nonce     uint64
	BatchId   uint64
	ProofBlob []byte
}

// MatchesRequest checks the amount-consistency invariant: the proof must
// agree bit-for-bit with the originating signed request before a claim is
// attempted.
func (p *Proof) MatchesRequest(account string, amount *big.Int, nonce uint64) bool {
	if p.Nonce != nonce {
		return false
	}
	if p.Account != account {
		return false
	}
	return p.Amount != nil && amount != nil && p.Amount.Cmp(amount) == 0
}
