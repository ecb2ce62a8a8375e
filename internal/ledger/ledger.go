package ledger

import (
	"math/big"
	"strings"
	"time"

	"github.com/litebridge/bridge-agent/internal/db"
	"github.com/litebridge/bridge-agent/internal/types"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Ledger is the durable record of withdrawals that have been batched but not
// yet claimed on-chain. It is the recovery root: after a crash, every row for
// the active account is claimable work, and removal happens only on a
// successful claim or a confirmed already-processed response.
type Ledger struct {
	dbm *db.DatabaseManager
}

func NewLedger(dbm *db.DatabaseManager) *Ledger {
	return &Ledger{dbm: dbm}
}

// Record captures batch inclusion for (account, nonce). Writing an existing
// key overwrites the row and refreshes its capture time, so re-running after
// a crash is always safe.
func (l *Ledger) Record(account string, amount *big.Int, nonce, batchId uint64, relayTxHash string) error {
	return l.record(account, amount, nonce, batchId, relayTxHash, db.RECORD_SOURCE_RELAY)
}

// RecoverRecord is the operator-assisted repair path: insert a record for a
// batch known externally to include the withdrawal, when the client missed
// the batch-submission confirmation.
func (l *Ledger) RecoverRecord(account string, amount *big.Int, nonce, batchId uint64, relayTxHash string) error {
	log.Warnf("Manual batch record recovery for account %s, nonce %d, batch %d", account, nonce, batchId)
	return l.record(account, amount, nonce, batchId, relayTxHash, db.RECORD_SOURCE_MANUAL)
}

func (l *Ledger) record(account string, amount *big.Int, nonce, batchId uint64, relayTxHash, source string) error {
	account = strings.ToLower(account)
	if amount == nil || amount.Sign() <= 0 {
		return types.NewValidationError("amount", "must be positive")
	}

	return l.dbm.GetLedgerDB().Transaction(func(tx *gorm.DB) error {
		var existing db.BatchRecord
		err := tx.Where("account = ? and nonce = ?", account, nonce).First(&existing).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}

		if err == nil {
			existing.Amount = types.AmountString(amount)
			existing.BatchId = batchId
			existing.RelayTxHash = relayTxHash
			existing.Source = source
			existing.CapturedAt = time.Now()
			return tx.Save(&existing).Error
		}

		return tx.Create(&db.BatchRecord{
			Account:     account,
			Nonce:       nonce,
			Amount:      types.AmountString(amount),
			BatchId:     batchId,
			RelayTxHash: relayTxHash,
			Source:      source,
			CapturedAt:  time.Now(),
		}).Error
	})
}

// ListFor returns every claimable record for an account, oldest first.
func (l *Ledger) ListFor(account string) ([]*db.BatchRecord, error) {
	var records []*db.BatchRecord
	err := l.dbm.GetLedgerDB().
		Where("account = ?", strings.ToLower(account)).
		Order("nonce asc").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns the record for (account, nonce), or nil when absent.
func (l *Ledger) Get(account string, nonce uint64) (*db.BatchRecord, error) {
	var record db.BatchRecord
	err := l.dbm.GetLedgerDB().
		Where("account = ? and nonce = ?", strings.ToLower(account), nonce).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Remove retires the record after a successful claim or a confirmed
// already-processed response. Removing an absent key is a no-op.
func (l *Ledger) Remove(account string, nonce uint64) error {
	result := l.dbm.GetLedgerDB().
		Where("account = ? and nonce = ?", strings.ToLower(account), nonce).
		Delete(&db.BatchRecord{})
	if result.Error != nil {
		log.Errorf("Ledger remove error for account %s nonce %d: %v", account, nonce, result.Error)
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Infof("Batch record retired, account %s, nonce %d", account, nonce)
	}
	return nil
}
