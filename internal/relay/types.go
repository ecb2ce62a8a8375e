package relay

// Withdrawal lifecycle states as the relay reports them.
const (
	PROOF_STATE_PENDING           = "pending"
	PROOF_STATE_AVAILABLE         = "available"
	PROOF_STATE_ALREADY_PROCESSED = "already_processed"
	PROOF_STATE_NOT_FOUND         = "not_found"
)

// NonceUnassigned is sent in place of a reserved nonce on the degraded path,
// the relay then assigns the next nonce itself and echoes it back.
const NonceUnassigned = int64(-1)

type BalanceResponse struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type NonceResponse struct {
	Account string `json:"account"`
	Nonce   uint64 `json:"nonce"`
}

// SubmitWithdrawalRequest carries the dual-signed canonical message. Nonce is
// NonceUnassigned when reservation failed and the relay assigns one.
type SubmitWithdrawalRequest struct {
	RequestId       string `json:"request_id"`
	Account         string `json:"account"`
	Amount          string `json:"amount"`
	Nonce           int64  `json:"nonce"`
	Timestamp       int64  `json:"timestamp"`
	Message         []byte `json:"message"`
	SigSecondary    []byte `json:"sig_secondary"`
	SigChain        []byte `json:"sig_chain"`
	PubKeySecondary []byte `json:"pubkey_secondary"`
}

// SubmitWithdrawalResponse echoes the nonce the relay actually bound the
// request to. That echoed value is ground truth for proof lookup and claim.
type SubmitWithdrawalResponse struct {
	Accepted bool   `json:"accepted"`
	Nonce    uint64 `json:"nonce"`
	Reason   string `json:"reason,omitempty"`
}

type SubmitTransferRequest struct {
	RequestId       string `json:"request_id"`
	Account         string `json:"account"`
	Recipient       string `json:"recipient"`
	Amount          string `json:"amount"`
	Nonce           int64  `json:"nonce"`
	Timestamp       int64  `json:"timestamp"`
	Message         []byte `json:"message"`
	SigSecondary    []byte `json:"sig_secondary"`
	SigChain        []byte `json:"sig_chain"`
	PubKeySecondary []byte `json:"pubkey_secondary"`
}

type SubmitTransferResponse struct {
	Accepted bool   `json:"accepted"`
	Nonce    uint64 `json:"nonce"`
	Reason   string `json:"reason,omitempty"`
}

// ProofResponse is the poll target. While State is "pending" a non-zero
// BatchId means the withdrawal is batched but the proof is not published yet,
// which is exactly when the durable batch record must be captured.
type ProofResponse struct {
	State       string `json:"state"`
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	Nonce       uint64 `json:"nonce"`
	BatchId     uint64 `json:"batch_id"`
	RelayTxHash string `json:"relay_tx_hash,omitempty"`
	Proof       []byte `json:"proof,omitempty"`
}

type PendingWithdrawal struct {
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	Nonce       uint64 `json:"nonce"`
	State       string `json:"state"`
	BatchId     uint64 `json:"batch_id"`
	RelayTxHash string `json:"relay_tx_hash,omitempty"`
}

type TriggerBatchResponse struct {
	BatchId  uint64              `json:"batch_id"`
	TxHash   string              `json:"tx_hash"`
	Included []PendingWithdrawal `json:"included"`
}

type ReconcileResponse struct {
	Account    string `json:"account"`
	Reported   string `json:"reported"`
	Recomputed string `json:"recomputed"`
	Corrected  bool   `json:"corrected"`
}

type SyncDepositRequest struct {
	TxHash string `json:"tx_hash"`
}

type SyncDepositResponse struct {
	Synced bool   `json:"synced"`
	Reason string `json:"reason,omitempty"`
}

type HistoryEntry struct {
	TxHash    string `json:"tx_hash"`
	Kind      string `json:"kind"` // "deposit", "transfer", "withdrawal"
	Account   string `json:"account"`
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}
