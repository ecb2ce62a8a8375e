package db

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// BatchRecord model (durable claim ledger)
// One row per batched-but-unclaimed withdrawal. Written the moment the relay
// confirms batch inclusion, removed only after a successful on-chain claim or
// a confirmed already-processed response.
type BatchRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Account     string    `gorm:"not null;index:idx_account_nonce,unique" json:"account"`
	Nonce       uint64    `gorm:"not null;index:idx_account_nonce,unique" json:"nonce"`
	Amount      string    `gorm:"not null" json:"amount"` // smallest unit, canonical decimal string
	BatchId     uint64    `gorm:"not null" json:"batch_id"`
	RelayTxHash string    `json:"relay_tx_hash"`
	Source      string    `gorm:"not null" json:"source"` // "relay", "manual"
	CapturedAt  time.Time `gorm:"not null" json:"captured_at"`
}

// WithdrawalHistory model (audit trail of orchestrator transitions)
type WithdrawalHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestId string    `gorm:"index" json:"request_id"`
	Account   string    `gorm:"not null;index" json:"account"`
	Nonce     uint64    `gorm:"not null" json:"nonce"`
	Amount    string    `gorm:"not null" json:"amount"`
	Status    string    `gorm:"not null" json:"status"` // "requested", "awaiting_batch", "proof_ready", "claiming", "claimed", "request_failed", "claim_failed", "expired"
	Detail    string    `json:"detail"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// ReconcileLog model
type ReconcileLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Account    string    `gorm:"not null;index" json:"account"`
	Reported   string    `gorm:"not null" json:"reported"`
	Recomputed string    `gorm:"not null" json:"recomputed"`
	Corrected  bool      `gorm:"not null" json:"corrected"`
	CheckedAt  time.Time `gorm:"not null" json:"checked_at"`
}

func (dm *DatabaseManager) autoMigrate() {
	if err := dm.ledgerDb.AutoMigrate(&BatchRecord{}); err != nil {
		log.Fatalf("Failed to migrate ledger database: %v", err)
	}
	if err := dm.historyDb.AutoMigrate(&WithdrawalHistory{}, &ReconcileLog{}); err != nil {
		log.Fatalf("Failed to migrate history database: %v", err)
	}
}
