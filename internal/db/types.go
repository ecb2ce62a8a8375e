package db

const (
	WITHDRAW_STATUS_REQUESTED      = "requested"
	WITHDRAW_STATUS_AWAITING_BATCH = "awaiting_batch"
	WITHDRAW_STATUS_PROOF_READY    = "proof_ready"
	WITHDRAW_STATUS_CLAIMING       = "claiming"
	WITHDRAW_STATUS_CLAIMED        = "claimed"
	WITHDRAW_STATUS_REQUEST_FAILED = "request_failed"
	WITHDRAW_STATUS_CLAIM_FAILED   = "claim_failed"
	WITHDRAW_STATUS_EXPIRED        = "expired"

	RECORD_SOURCE_RELAY  = "relay"
	RECORD_SOURCE_MANUAL = "manual"
)
