package proof

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/litebridge/bridge-agent/internal/config"
	"github.com/litebridge/bridge-agent/internal/relay"
	"github.com/litebridge/bridge-agent/internal/types"
	log "github.com/sirupsen/logrus"
)

// BatchObserver is invoked the first time a pending response shows batch
// inclusion, before the proof exists. The orchestrator uses it to capture the
// durable batch record at that instant.
type BatchObserver func(batchId uint64, relayTxHash string)

// Poller runs one bounded polling loop per (account, nonce). Re-invoking for
// a key with a loop outstanding cancels the previous loop, so two loops never
// poll the same withdrawal concurrently.
type Poller struct {
	client      *relay.Client
	clock       clockwork.Clock
	interval    time.Duration
	maxAttempts int

	mu       sync.Mutex
	inflight map[string]*pollSlot
}

type pollSlot struct {
	cancel context.CancelFunc
}

func NewPoller(client *relay.Client) *Poller {
	return NewPollerWithClock(client, clockwork.NewRealClock(),
		config.AppConfig.ProofPollInterval, config.AppConfig.ProofPollMaxAttempts)
}

func NewPollerWithClock(client *relay.Client, clock clockwork.Clock, interval time.Duration, maxAttempts int) *Poller {
	return &Poller{
		client:      client,
		clock:       clock,
		interval:    interval,
		maxAttempts: maxAttempts,
		inflight:    make(map[string]*pollSlot),
	}
}

func pollKey(account string, nonce uint64) string {
	return fmt.Sprintf("%s:%d", account, nonce)
}

// Poll queries the relay until the proof is available, the withdrawal turns
// out already processed, the attempt budget runs out, or the context ends.
//
// Outcomes:
//   - proof, nil                     proof available
//   - nil, ErrAlreadyProcessed      claimed elsewhere, success-equivalent
//   - nil, ErrPollExpired           budget exhausted, batch record untouched
//   - nil, ctx.Err()                cancelled or superseded by a newer poll
func (p *Poller) Poll(ctx context.Context, account string, amount *big.Int, nonce uint64, onBatched BatchObserver) (*types.Proof, error) {
	key := pollKey(account, nonce)

	ctx, cancel := context.WithCancel(ctx)
	slot := &pollSlot{cancel: cancel}
	p.mu.Lock()
	if prev, ok := p.inflight[key]; ok {
		log.Debugf("Superseding outstanding proof poll for %s", key)
		prev.cancel()
	}
	p.inflight[key] = slot
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		// only clear the slot if it is still ours
		if cur, ok := p.inflight[key]; ok && cur == slot {
			delete(p.inflight, key)
		}
		p.mu.Unlock()
	}()

	amountStr := types.AmountString(amount)
	batchSeen := false

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		resp, err := p.client.GetProof(ctx, account, amountStr, nonce)
		switch {
		case err == nil:
			switch resp.State {
			case relay.PROOF_STATE_AVAILABLE:
				parsed, perr := types.ParseAmount(resp.Amount)
				if perr != nil {
					return nil, perr
				}
				return &types.Proof{
					Account:   account,
					Amount:    parsed,
					Nonce:     resp.Nonce,
					BatchId:   resp.BatchId,
					ProofBlob: resp.Proof,
				}, nil
			case relay.PROOF_STATE_ALREADY_PROCESSED:
				return nil, types.ErrAlreadyProcessed
			case relay.PROOF_STATE_PENDING, relay.PROOF_STATE_NOT_FOUND:
				if resp.BatchId > 0 && !batchSeen && onBatched != nil {
					batchSeen = true
					onBatched(resp.BatchId, resp.RelayTxHash)
				}
				log.Debugf("Proof pending for %s, attempt %d/%d", key, attempt, p.maxAttempts)
			default:
				return nil, fmt.Errorf("unexpected proof state %q for %s", resp.State, key)
			}
		case types.IsNetworkError(err):
			// transient, spend the attempt and keep going
			log.Warnf("Proof lookup failed for %s, attempt %d/%d: %v", key, attempt, p.maxAttempts, err)
		default:
			var rejected *types.RequestRejectedError
			if errors.As(err, &rejected) && rejected.StatusCode == 404 {
				// relay may lag behind its own acceptance, same as pending
				log.Debugf("Proof not found yet for %s, attempt %d/%d", key, attempt, p.maxAttempts)
			} else {
				return nil, err
			}
		}

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.clock.After(p.interval):
		}
	}

	log.Warnf("Proof polling expired for %s after %d attempts", key, p.maxAttempts)
	return nil, types.ErrPollExpired
}

// Check performs a single proof lookup without looping. Pending and not-found
// states come back as ErrProofNotReady so callers can show progress without
// starting a poll.
func (p *Poller) Check(ctx context.Context, account string, amount *big.Int, nonce uint64) (*types.Proof, error) {
	resp, err := p.client.GetProof(ctx, account, types.AmountString(amount), nonce)
	if err != nil {
		var rejected *types.RequestRejectedError
		if errors.As(err, &rejected) && rejected.StatusCode == 404 {
			return nil, types.ErrProofNotReady
		}
		return nil, err
	}
	switch resp.State {
	case relay.PROOF_STATE_AVAILABLE:
		parsed, perr := types.ParseAmount(resp.Amount)
		if perr != nil {
			return nil, perr
		}
		return &types.Proof{
			Account:   account,
			Amount:    parsed,
			Nonce:     resp.Nonce,
			BatchId:   resp.BatchId,
			ProofBlob: resp.Proof,
		}, nil
	case relay.PROOF_STATE_ALREADY_PROCESSED:
		return nil, types.ErrAlreadyProcessed
	case relay.PROOF_STATE_PENDING, relay.PROOF_STATE_NOT_FOUND:
		return nil, types.ErrProofNotReady
	default:
		return nil, fmt.Errorf("unexpected proof state %q for %s", resp.State, pollKey(account, nonce))
	}
}

// Cancel stops an outstanding poll for (account, nonce) if any.
func (p *Poller) Cancel(account string, nonce uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot, ok := p.inflight[pollKey(account, nonce)]; ok {
		slot.cancel()
		delete(p.inflight, pollKey(account, nonce))
	}
}
