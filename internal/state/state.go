package state

import (
	"sync"
	"time"

	"github.com/litebridge/bridge-agent/internal/db"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type State struct {
	EventBus *EventBus

	dbm *db.DatabaseManager

	historyMu sync.RWMutex
}

// InitializeState wires the event bus over the database manager and logs the
// in-flight work found on disk so a restart is visible in the logs.
func InitializeState(dbm *db.DatabaseManager) *State {
	s := &State{
		EventBus: NewEventBus(),
		dbm:      dbm,
	}

	var pending int64
	if err := dbm.GetLedgerDB().Model(&db.BatchRecord{}).Count(&pending).Error; err != nil {
		log.Warnf("Failed to count pending batch records: %v", err)
	}
	log.Infof("State init on startup, pending claimable withdrawals: %d", pending)

	return s
}

// AppendWithdrawal records an orchestrator transition in the audit trail and
// publishes it on the event bus.
func (s *State) AppendWithdrawal(event WithdrawalEvent) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	row := &db.WithdrawalHistory{
		RequestId: event.RequestId,
		Account:   event.Account,
		Nonce:     event.Nonce,
		Amount:    event.Amount,
		Status:    event.Status,
		Detail:    event.Detail,
		UpdatedAt: time.Now(),
	}
	if err := s.dbm.GetHistoryDB().Create(row).Error; err != nil {
		log.Errorf("State AppendWithdrawal error: %v", err)
		return err
	}

	s.publishTransition(event)
	return nil
}

func (s *State) publishTransition(event WithdrawalEvent) {
	switch event.Status {
	case db.WITHDRAW_STATUS_REQUESTED, db.WITHDRAW_STATUS_AWAITING_BATCH:
		s.EventBus.Publish(WithdrawRequested, event)
	case db.WITHDRAW_STATUS_PROOF_READY:
		s.EventBus.Publish(ProofReady, event)
	case db.WITHDRAW_STATUS_CLAIMING:
		s.EventBus.Publish(ClaimSubmitted, event)
	case db.WITHDRAW_STATUS_CLAIMED:
		s.EventBus.Publish(ClaimConfirmed, event)
	case db.WITHDRAW_STATUS_CLAIM_FAILED, db.WITHDRAW_STATUS_REQUEST_FAILED:
		s.EventBus.Publish(ClaimFailed, event)
	case db.WITHDRAW_STATUS_EXPIRED:
		s.EventBus.Publish(PollExpired, event)
	}
}

// LatestWithdrawalStatus returns the most recent recorded status for
// (account, nonce), or empty string when nothing was recorded.
func (s *State) LatestWithdrawalStatus(account string, nonce uint64) (string, error) {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	var row db.WithdrawalHistory
	err := s.dbm.GetHistoryDB().
		Where("account = ? and nonce = ?", account, nonce).
		Order("id desc").First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return row.Status, nil
}

// ListWithdrawalHistory returns the newest history rows for an account.
func (s *State) ListWithdrawalHistory(account string, limit int) ([]*db.WithdrawalHistory, error) {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var rows []*db.WithdrawalHistory
	err := s.dbm.GetHistoryDB().
		Where("account = ?", account).
		Order("id desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SaveReconcileLog persists a balance reconciliation result and publishes a
// BalanceCorrected event when the relay repaired drift.
func (s *State) SaveReconcileLog(account, reported, recomputed string, corrected bool) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	row := &db.ReconcileLog{
		Account:    account,
		Reported:   reported,
		Recomputed: recomputed,
		Corrected:  corrected,
		CheckedAt:  time.Now(),
	}
	if err := s.dbm.GetHistoryDB().Create(row).Error; err != nil {
		log.Errorf("State SaveReconcileLog error: %v", err)
		return err
	}

	if corrected {
		s.EventBus.Publish(BalanceCorrected, ReconcileEvent{
			Account:    account,
			Reported:   reported,
			Recomputed: recomputed,
			CheckedAt:  row.CheckedAt,
		})
	}
	return nil
}

// ListReconcileLogs returns the newest reconciliation rows for an account.
func (s *State) ListReconcileLogs(account string, limit int) ([]*db.ReconcileLog, error) {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	var rows []*db.ReconcileLog
	err := s.dbm.GetHistoryDB().
		Where("account = ?", account).
		Order("id desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
