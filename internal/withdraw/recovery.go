package withdraw

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/litebridge/bridge-agent/internal/types"
	log "github.com/sirupsen/logrus"
)

// Start runs the startup recovery pass and then idles until shutdown. Every
// batch record on disk is claimable work from a previous session; nothing
// needs to be re-signed because the relay already accepted the original
// request.
func (o *Orchestrator) Start(ctx context.Context) {
	o.ResumePending(ctx)
	<-ctx.Done()
	log.Info("Stopping withdrawal orchestrator...")
}

// ResumePending re-enters the claim path for every persisted batch record of
// the session account. Safe to re-run at any time, every step is idempotent.
func (o *Orchestrator) ResumePending(ctx context.Context) {
	account := o.session.Account()
	records, err := o.ledger.ListFor(account)
	if err != nil {
		log.Errorf("Recovery scan failed for %s: %v", account, err)
		return
	}
	if len(records) == 0 {
		return
	}
	log.Infof("Recovering %d batched withdrawal(s) for %s", len(records), account)

	for _, record := range records {
		amount, perr := types.ParseAmount(record.Amount)
		if perr != nil {
			log.Errorf("Batch record for %s nonce %d has bad amount %q, needs manual repair: %v",
				account, record.Nonce, record.Amount, perr)
			continue
		}
		requestId := "recovery-" + uuid.New().String()
		result, cerr := o.driveClaim(ctx, requestId, account, amount, record.Nonce)
		if cerr != nil {
			log.Warnf("Recovery claim for %s nonce %d did not complete: %v", account, record.Nonce, cerr)
			continue
		}
		log.Infof("Recovery claim for %s nonce %d finished with status %s", account, record.Nonce, result.Status)
	}
}

// RetryClaim re-runs the claim path for one ledger entry, using the cached
// proof when one is held so an out-of-gas revert can be retried without
// re-polling.
func (o *Orchestrator) RetryClaim(ctx context.Context, nonce uint64) (*Result, error) {
	account := o.session.Account()
	record, err := o.ledger.Get(account, nonce)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("no batch record for account %s nonce %d", account, nonce)
	}
	amount, err := types.ParseAmount(record.Amount)
	if err != nil {
		return nil, err
	}
	return o.driveClaim(ctx, "retry-"+uuid.New().String(), account, amount, nonce)
}

// Recover is the operator-assisted repair entry point: insert a batch record
// that the client missed, then immediately try to claim it.
func (o *Orchestrator) Recover(ctx context.Context, amount string, nonce, batchId uint64, relayTxHash string) (*Result, error) {
	account := o.session.Account()
	parsed, err := types.ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	if err := o.ledger.RecoverRecord(account, parsed, nonce, batchId, relayTxHash); err != nil {
		return nil, err
	}
	return o.driveClaim(ctx, "manual-"+uuid.New().String(), account, parsed, nonce)
}
