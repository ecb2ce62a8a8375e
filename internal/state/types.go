package state

import "time"

// WithdrawalEvent is the payload published on the event bus for every
// orchestrator transition.
type WithdrawalEvent struct {
	RequestId string `json:"request_id"`
	Account   string `json:"account"`
	Nonce     uint64 `json:"nonce"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

// ReconcileEvent is published when the relay corrects its stored balance.
type ReconcileEvent struct {
	Account    string    `json:"account"`
	Reported   string    `json:"reported"`
	Recomputed string    `json:"recomputed"`
	CheckedAt  time.Time `json:"checked_at"`
}
