package reconcile

import (
	"context"

	"github.com/litebridge/bridge-agent/internal/relay"
	"github.com/litebridge/bridge-agent/internal/state"
	log "github.com/sirupsen/logrus"
)

// Result reports one reconciliation round. Reported is the balance the relay
// served before the check, Recomputed is the ledger-derived value, Corrected
// is true when the relay had to repair drift.
type Result struct {
	Account    string `json:"account"`
	Reported   string `json:"reported"`
	Recomputed string `json:"recomputed"`
	Corrected  bool   `json:"corrected"`
}

// Reconciler asks the relay to recompute an account balance from its event
// ledger and keeps a local log of every check.
type Reconciler struct {
	client *relay.Client
	state  *state.State
}

func NewReconciler(client *relay.Client, st *state.State) *Reconciler {
	return &Reconciler{client: client, state: st}
}

// Reconcile runs one round for the account. The relay recomputes from its
// ledger and corrects its cached balance when the two disagree; either way
// the outcome lands in the local reconcile log.
func (r *Reconciler) Reconcile(ctx context.Context, account string) (*Result, error) {
	resp, err := r.client.Reconcile(ctx, account)
	if err != nil {
		return nil, err
	}

	if resp.Corrected {
		log.Warnf("Balance drift corrected for %s: reported %s, recomputed %s",
			account, resp.Reported, resp.Recomputed)
	} else {
		log.Debugf("Balance reconciled for %s, no drift: %s", account, resp.Recomputed)
	}

	if serr := r.state.SaveReconcileLog(account, resp.Reported, resp.Recomputed, resp.Corrected); serr != nil {
		log.Errorf("Failed to save reconcile log for %s: %v", account, serr)
	}

	return &Result{
		Account:    account,
		Reported:   resp.Reported,
		Recomputed: resp.Recomputed,
		Corrected:  resp.Corrected,
	}, nil
}
