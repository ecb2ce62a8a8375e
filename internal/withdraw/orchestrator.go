package withdraw

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/litebridge/bridge-agent/internal/auth"
	"github.com/litebridge/bridge-agent/internal/db"
	"github.com/litebridge/bridge-agent/internal/ledger"
	"github.com/litebridge/bridge-agent/internal/proof"
	"github.com/litebridge/bridge-agent/internal/relay"
	"github.com/litebridge/bridge-agent/internal/state"
	"github.com/litebridge/bridge-agent/internal/types"
	log "github.com/sirupsen/logrus"
)

// Contract is the on-chain surface the orchestrator needs. Implemented by
// chain.BridgeContract, faked in tests.
type Contract interface {
	Claim(ctx context.Context, amount *big.Int, nonce, batchId uint64, proofBlob []byte) (string, error)
	Deposit(ctx context.Context, amount *big.Int) (string, error)
}

// Result is the terminal outcome of one withdrawal flow.
type Result struct {
	RequestId string `json:"request_id"`
	Account   string `json:"account"`
	Nonce     uint64 `json:"nonce"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	TxHash    string `json:"tx_hash,omitempty"`
}

// Orchestrator drives the withdrawal state machine:
//
//	Idle -> Requested -> AwaitingBatch -> ProofReady -> Claiming -> Claimed
//
// with terminal error states request_failed, claim_failed and expired. One
// flow per (account, nonce) at a time; the commit point is relay acceptance,
// after which the (account, nonce, amount) tuple is never forgotten.
type Orchestrator struct {
	session  *auth.Session
	client   *relay.Client
	nonces   *relay.NonceManager
	poller   *proof.Poller
	ledger   *ledger.Ledger
	contract Contract
	state    *state.State

	mu       sync.Mutex
	inflight map[uint64]bool
	proofs   map[uint64]*types.Proof // claim-ready proofs, lets a failed claim retry without re-polling
}

func NewOrchestrator(session *auth.Session, client *relay.Client, nonces *relay.NonceManager, poller *proof.Poller, lg *ledger.Ledger, contract Contract, st *state.State) *Orchestrator {
	return &Orchestrator{
		session:  session,
		client:   client,
		nonces:   nonces,
		poller:   poller,
		ledger:   lg,
		contract: contract,
		state:    st,
		inflight: make(map[uint64]bool),
		proofs:   make(map[uint64]*types.Proof),
	}
}

// Withdraw runs a full withdrawal flow: validate, reserve nonce, dual-sign,
// submit to the relay, wait for batch inclusion and proof, claim on-chain.
// It blocks until a terminal state; callers that need fire-and-forget run it
// in a goroutine.
func (o *Orchestrator) Withdraw(ctx context.Context, amount *big.Int) (*Result, error) {
	account := o.session.Account()
	if amount == nil || amount.Sign() <= 0 {
		return nil, types.NewValidationError("amount", "must be positive")
	}

	// advisory only; the authoritative check is relay-side at submission
	if bal, err := o.client.GetBalance(ctx, account); err == nil {
		if reported, ok := new(big.Int).SetString(bal.Balance, 10); ok && amount.Cmp(reported) > 0 {
			return nil, types.NewValidationError("amount", "exceeds reported L2 balance")
		}
	} else {
		log.Warnf("Pre-flight balance check skipped for %s: %v", account, err)
	}

	requestId := uuid.New().String()

	reserved, degraded, _ := o.nonces.Reserve(ctx, account)
	var noncePtr *uint64
	if !degraded {
		noncePtr = &reserved
	}

	resp, err := o.submitSigned(ctx, requestId, account, amount, noncePtr)
	if err != nil {
		var rejected *types.RequestRejectedError
		if errors.As(err, &rejected) {
			o.record(requestId, account, 0, amount, db.WITHDRAW_STATUS_REQUEST_FAILED, rejected.Reason)
			return &Result{RequestId: requestId, Account: account, Amount: types.AmountString(amount), Status: db.WITHDRAW_STATUS_REQUEST_FAILED}, err
		}
		return nil, err
	}

	nonce := resp.Nonce
	if !degraded && nonce != reserved {
		// the signature binds the nonce, a different echo invalidates it;
		// restart authentication with the relay's nonce. Re-nonced acceptance
		// means the relay superseded the first binding, so only the
		// resubmission is live from here, there is no second request to void.
		log.Warnf("Relay bound nonce %d instead of reserved %d for %s, re-authenticating", nonce, reserved, account)
		resp, err = o.submitSigned(ctx, requestId, account, amount, &nonce)
		if err != nil {
			var rejected *types.RequestRejectedError
			if errors.As(err, &rejected) {
				// the relay already accepted (account, nonce, amount) once, so
				// the tuple must stay visible for manual follow-up
				detail := fmt.Sprintf("re-authentication rejected after relay bound nonce %d: %s", nonce, rejected.Reason)
				o.record(requestId, account, nonce, amount, db.WITHDRAW_STATUS_REQUEST_FAILED, detail)
				return &Result{RequestId: requestId, Account: account, Nonce: nonce, Amount: types.AmountString(amount), Status: db.WITHDRAW_STATUS_REQUEST_FAILED}, err
			}
			return nil, err
		}
		nonce = resp.Nonce
	}
	o.nonces.Confirm(account, nonce)

	o.record(requestId, account, nonce, amount, db.WITHDRAW_STATUS_REQUESTED, "")
	o.record(requestId, account, nonce, amount, db.WITHDRAW_STATUS_AWAITING_BATCH, "")
	log.Infof("Withdrawal accepted by relay, account %s, nonce %d, amount %s", account, nonce, amount.String())

	return o.driveClaim(ctx, requestId, account, amount, nonce)
}

func (o *Orchestrator) submitSigned(ctx context.Context, requestId, account string, amount *big.Int, noncePtr *uint64) (*relay.SubmitWithdrawalResponse, error) {
	ts := time.Now().Unix()
	signed, err := o.session.Authenticate(types.IntentWithdraw, auth.Fields{
		Amount:    amount,
		Nonce:     noncePtr,
		Timestamp: ts,
	})
	if err != nil {
		return nil, err
	}

	wireNonce := relay.NonceUnassigned
	if noncePtr != nil {
		wireNonce = int64(*noncePtr)
	}
	resp, err := o.client.SubmitWithdrawal(ctx, &relay.SubmitWithdrawalRequest{
		RequestId:       requestId,
		Account:         account,
		Amount:          types.AmountString(amount),
		Nonce:           wireNonce,
		Timestamp:       ts,
		Message:         signed.Message,
		SigSecondary:    signed.SigSecondary,
		SigChain:        signed.SigChain,
		PubKeySecondary: signed.PubKeySecondary,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Accepted {
		return nil, &types.RequestRejectedError{StatusCode: 200, Reason: resp.Reason}
	}
	return resp, nil
}

// driveClaim takes an accepted withdrawal from awaiting-batch to a terminal
// state. It is also the recovery re-entry: nothing in here needs the original
// signature, the relay already holds it.
func (o *Orchestrator) driveClaim(ctx context.Context, requestId, account string, amount *big.Int, nonce uint64) (*Result, error) {
	if !o.beginFlow(nonce) {
		return nil, fmt.Errorf("withdrawal flow already running for account %s nonce %d", account, nonce)
	}
	defer o.endFlow(nonce)

	result := &Result{RequestId: requestId, Account: account, Nonce: nonce, Amount: types.AmountString(amount)}

	pf := o.cachedProof(nonce)
	if pf == nil {
		var err error
		pf, err = o.poller.Poll(ctx, account, amount, nonce, func(batchId uint64, relayTxHash string) {
			// batch inclusion confirmed: capture the durable record before
			// the proof exists
			if lerr := o.ledger.Record(account, amount, nonce, batchId, relayTxHash); lerr != nil {
				log.Errorf("Failed to persist batch record for %s nonce %d: %v", account, nonce, lerr)
			}
			o.state.EventBus.Publish(state.BatchConfirmed, state.WithdrawalEvent{
				RequestId: requestId, Account: account, Nonce: nonce,
				Amount: types.AmountString(amount), Status: db.WITHDRAW_STATUS_AWAITING_BATCH,
				Detail: fmt.Sprintf("batch %d", batchId),
			})
		})
		switch {
		case err == nil:
			// proof implies batch inclusion, make sure the record exists even
			// if no intermediate pending response carried the batch id
			if lerr := o.ledger.Record(account, amount, nonce, pf.BatchId, ""); lerr != nil {
				log.Errorf("Failed to persist batch record for %s nonce %d: %v", account, nonce, lerr)
			}
			o.setCachedProof(nonce, pf)
			o.record(requestId, account, nonce, amount, db.WITHDRAW_STATUS_PROOF_READY, fmt.Sprintf("batch %d", pf.BatchId))
		case errors.Is(err, types.ErrAlreadyProcessed):
			return o.finishClaimed(result, requestId, account, nonce, amount, "already processed"), nil
		case errors.Is(err, types.ErrPollExpired):
			o.record(requestId, account, nonce, amount, db.WITHDRAW_STATUS_EXPIRED, "poll attempt budget exhausted")
			result.Status = db.WITHDRAW_STATUS_EXPIRED
			return result, err
		default:
			return nil, err
		}
	}

	// fail closed on any disagreement with the signed request
	if !pf.MatchesRequest(account, amount, nonce) {
		detail := fmt.Sprintf("proof mismatch: got amount %s nonce %d", types.AmountString(pf.Amount), pf.Nonce)
		o.record(requestId, account, nonce, amount, db.WITHDRAW_STATUS_CLAIM_FAILED, detail)
		result.Status = db.WITHDRAW_STATUS_CLAIM_FAILED
		return result, &types.ClaimRevertedError{Kind: types.RevertInvalidProof, Err: errors.New(detail)}
	}

	o.record(requestId, account, nonce, amount, db.WITHDRAW_STATUS_CLAIMING, "")
	txHash, err := o.contract.Claim(ctx, pf.Amount, nonce, pf.BatchId, pf.ProofBlob)
	if err != nil {
		if errors.Is(err, types.ErrAlreadyProcessed) {
			return o.finishClaimed(result, requestId, account, nonce, amount, "already processed"), nil
		}
		var reverted *types.ClaimRevertedError
		if errors.As(err, &reverted) && reverted.Kind == types.RevertAlreadyProcessed {
			return o.finishClaimed(result, requestId, account, nonce, amount, "already processed"), nil
		}
		// proof and batch inclusion stay valid, keep the record and the
		// cached proof for a retry with identical parameters
		o.record(requestId, account, nonce, amount, db.WITHDRAW_STATUS_CLAIM_FAILED, err.Error())
		result.Status = db.WITHDRAW_STATUS_CLAIM_FAILED
		result.TxHash = txHash
		return result, err
	}

	result.TxHash = txHash
	return o.finishClaimed(result, requestId, account, nonce, amount, ""), nil
}

func (o *Orchestrator) finishClaimed(result *Result, requestId, account string, nonce uint64, amount *big.Int, detail string) *Result {
	if err := o.ledger.Remove(account, nonce); err != nil {
		log.Errorf("Failed to retire batch record for %s nonce %d: %v", account, nonce, err)
	}
	o.clearCachedProof(nonce)
	o.record(requestId, account, nonce, amount, db.WITHDRAW_STATUS_CLAIMED, detail)
	result.Status = db.WITHDRAW_STATUS_CLAIMED
	return result
}

// TriggerBatch asks the relay to commit the pending set and captures batch
// records for every included withdrawal of this account.
func (o *Orchestrator) TriggerBatch(ctx context.Context) (*relay.TriggerBatchResponse, error) {
	resp, err := o.client.TriggerBatch(ctx)
	if err != nil {
		return nil, err
	}
	account := o.session.Account()
	for _, w := range resp.Included {
		if w.Account != account {
			continue
		}
		amount, perr := types.ParseAmount(w.Amount)
		if perr != nil {
			log.Errorf("Skipping included withdrawal with bad amount %q: %v", w.Amount, perr)
			continue
		}
		if lerr := o.ledger.Record(account, amount, w.Nonce, resp.BatchId, resp.TxHash); lerr != nil {
			log.Errorf("Failed to persist batch record for %s nonce %d: %v", account, w.Nonce, lerr)
		}
	}
	return resp, nil
}

// Transfer submits a dual-signed L2 to L2 move through the relay.
func (o *Orchestrator) Transfer(ctx context.Context, recipient string, amount *big.Int) (*relay.SubmitTransferResponse, error) {
	account := o.session.Account()
	normalized, err := types.NormalizeAddress(recipient)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, types.NewValidationError("amount", "must be positive")
	}

	reserved, degraded, _ := o.nonces.Reserve(ctx, account)
	var noncePtr *uint64
	if !degraded {
		noncePtr = &reserved
	}

	ts := time.Now().Unix()
	signed, err := o.session.Authenticate(types.IntentTransfer, auth.Fields{
		Amount:    amount,
		Nonce:     noncePtr,
		Recipient: normalized,
		Timestamp: ts,
	})
	if err != nil {
		return nil, err
	}

	wireNonce := relay.NonceUnassigned
	if noncePtr != nil {
		wireNonce = int64(*noncePtr)
	}
	resp, err := o.client.SubmitTransfer(ctx, &relay.SubmitTransferRequest{
		RequestId:       uuid.New().String(),
		Account:         account,
		Recipient:       normalized,
		Amount:          types.AmountString(amount),
		Nonce:           wireNonce,
		Timestamp:       ts,
		Message:         signed.Message,
		SigSecondary:    signed.SigSecondary,
		SigChain:        signed.SigChain,
		PubKeySecondary: signed.PubKeySecondary,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Accepted {
		return nil, &types.RequestRejectedError{StatusCode: 200, Reason: resp.Reason}
	}
	o.nonces.Confirm(account, resp.Nonce)
	log.Infof("Transfer accepted, %s -> %s, amount %s, nonce %d", account, normalized, amount.String(), resp.Nonce)
	return resp, nil
}

// Deposit moves value into the bridge on L1 and nudges the relay to index
// the deposit right away instead of waiting for its own event scan.
func (o *Orchestrator) Deposit(ctx context.Context, amount *big.Int) (string, error) {
	if amount == nil || amount.Sign() <= 0 {
		return "", types.NewValidationError("amount", "must be positive")
	}
	txHash, err := o.contract.Deposit(ctx, amount)
	if err != nil {
		return txHash, err
	}
	if _, serr := o.client.SyncDeposit(ctx, txHash); serr != nil {
		// relay will pick it up from its own L1 scan, sync is best effort
		log.Warnf("Deposit sync request failed for tx %s: %v", txHash, serr)
	}
	o.state.EventBus.Publish(state.DepositSynced, txHash)
	return txHash, nil
}

func (o *Orchestrator) record(requestId, account string, nonce uint64, amount *big.Int, status, detail string) {
	event := state.WithdrawalEvent{
		RequestId: requestId,
		Account:   account,
		Nonce:     nonce,
		Amount:    types.AmountString(amount),
		Status:    status,
		Detail:    detail,
	}
	if err := o.state.AppendWithdrawal(event); err != nil {
		log.Errorf("Failed to append withdrawal history (%s nonce %d status %s): %v", account, nonce, status, err)
	}
}

// CancelPoll stops an outstanding proof poll for the session account. The
// batch record stays, polling can be restarted with RetryClaim.
func (o *Orchestrator) CancelPoll(nonce uint64) {
	o.poller.Cancel(o.session.Account(), nonce)
}

// ProofStatus is a one-shot proof lookup for a ledgered withdrawal, for
// progress display without starting a poll loop.
func (o *Orchestrator) ProofStatus(ctx context.Context, nonce uint64) (*types.Proof, error) {
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
	return o.poller.Check(ctx, account, amount, nonce)
}

// LastReservedNonce exposes the most recent nonce seen for the session
// account, for status display.
func (o *Orchestrator) LastReservedNonce() uint64 {
	n, _ := o.nonces.LastReserved(o.session.Account())
	return n
}

func (o *Orchestrator) beginFlow(nonce uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[nonce] {
		return false
	}
	o.inflight[nonce] = true
	return true
}

func (o *Orchestrator) endFlow(nonce uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, nonce)
}

func (o *Orchestrator) cachedProof(nonce uint64) *types.Proof {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.proofs[nonce]
}

func (o *Orchestrator) setCachedProof(nonce uint64, pf *types.Proof) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.proofs[nonce] = pf
}

func (o *Orchestrator) clearCachedProof(nonce uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.proofs, nonce)
}
