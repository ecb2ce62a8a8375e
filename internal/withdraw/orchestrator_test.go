package withdraw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/litebridge/bridge-agent/internal/auth"
	"github.com/litebridge/bridge-agent/internal/chain"
	"github.com/litebridge/bridge-agent/internal/config"
	"github.com/litebridge/bridge-agent/internal/db"
	"github.com/litebridge/bridge-agent/internal/ledger"
	"github.com/litebridge/bridge-agent/internal/proof"
	"github.com/litebridge/bridge-agent/internal/relay"
	"github.com/litebridge/bridge-agent/internal/state"
	"github.com/litebridge/bridge-agent/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivKey = "e9ccd0ec6bb77c263dc46c0f81962c0b378a67befe089e90ef81e96a4a4c5bc5"

// fakeRelay scripts the relay REST surface for orchestrator tests.
type fakeRelay struct {
	mu sync.Mutex

	balance        string
	nonce          uint64
	nonceFail      bool
	rejectReason   string
	echoNonce      uint64 // nonce the relay binds accepted requests to
	rebindNonce    uint64 // first acceptance echoes this instead of the requested nonce
	rejectResubmit string // reject every submission after the first

	proofs     map[uint64][]relay.ProofResponse
	proofCalls map[uint64]int
	submitted  []relay.SubmitWithdrawalRequest
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		balance:    "10000000000000000000",
		proofs:     make(map[uint64][]relay.ProofResponse),
		proofCalls: make(map[uint64]int),
	}
}

func (f *fakeRelay) setProofs(nonce uint64, responses ...relay.ProofResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proofs[nonce] = responses
}

func (f *fakeRelay) proofCallCount(nonce uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.proofCalls[nonce]
}

func (f *fakeRelay) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/balance", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(relay.BalanceResponse{Account: r.URL.Query().Get("account"), Balance: f.balance})
	})
	mux.HandleFunc("/api/v1/nonce", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.nonceFail {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "nonce store down"})
			return
		}
		json.NewEncoder(w).Encode(relay.NonceResponse{Account: r.URL.Query().Get("account"), Nonce: f.nonce})
	})
	mux.HandleFunc("/api/v1/withdrawals", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req relay.SubmitWithdrawalRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.submitted = append(f.submitted, req)
		if f.rejectReason != "" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": f.rejectReason})
			return
		}
		if f.rejectResubmit != "" && len(f.submitted) >= 2 {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": f.rejectResubmit})
			return
		}
		bound := f.echoNonce
		if f.rebindNonce != 0 && len(f.submitted) == 1 {
			bound = f.rebindNonce
		}
		if bound == 0 && req.Nonce >= 0 {
			bound = uint64(req.Nonce)
		}
		json.NewEncoder(w).Encode(relay.SubmitWithdrawalResponse{Accepted: true, Nonce: bound})
	})
	mux.HandleFunc("/api/v1/proof", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		nonce, _ := strconv.ParseUint(r.URL.Query().Get("nonce"), 10, 64)
		f.proofCalls[nonce]++
		script := f.proofs[nonce]
		if len(script) == 0 {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "unknown withdrawal"})
			return
		}
		idx := f.proofCalls[nonce] - 1
		if idx >= len(script) {
			idx = len(script) - 1
		}
		json.NewEncoder(w).Encode(script[idx])
	})
	mux.HandleFunc("/api/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		var req relay.SubmitTransferRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(relay.SubmitTransferResponse{Accepted: true, Nonce: uint64(req.Nonce)})
	})
	mux.HandleFunc("/api/v1/batch", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(relay.TriggerBatchResponse{BatchId: 77, TxHash: "0xbatch"})
	})
	mux.HandleFunc("/api/v1/deposits/sync", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(relay.SyncDepositResponse{Synced: true})
	})
	return mux
}

// fakeContract records claims and lets tests script failures.
type fakeContract struct {
	mu         sync.Mutex
	claims     []claimCall
	claimErr   error
	claimErrs  int // fail this many claims, then succeed
	depositTxs []string
}

type claimCall struct {
	amount  *big.Int
	nonce   uint64
	batchId uint64
	proof   []byte
}

func (c *fakeContract) Claim(ctx context.Context, amount *big.Int, nonce, batchId uint64, proofBlob []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimErr != nil && c.claimErrs != 0 {
		if c.claimErrs > 0 {
			c.claimErrs--
		}
		return "", c.claimErr
	}
	c.claims = append(c.claims, claimCall{amount: amount, nonce: nonce, batchId: batchId, proof: proofBlob})
	return fmt.Sprintf("0xclaim%d", nonce), nil
}

func (c *fakeContract) Deposit(ctx context.Context, amount *big.Int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx := fmt.Sprintf("0xdeposit%d", len(c.depositTxs))
	c.depositTxs = append(c.depositTxs, tx)
	return tx, nil
}

func (c *fakeContract) claimCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

type testEnv struct {
	orch     *Orchestrator
	relay    *fakeRelay
	contract *fakeContract
	ledger   *ledger.Ledger
	state    *state.State
	session  *auth.Session
	account  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Setenv("DB_DIR", t.TempDir())
	t.Setenv("RELAY_RETRY_MAX", "0")
	t.Setenv("RELAY_TIMEOUT", "2s")
	config.InitConfig()

	fr := newFakeRelay()
	srv := httptest.NewServer(fr.handler())
	t.Cleanup(srv.Close)

	dbm := db.NewDatabaseManager()
	st := state.InitializeState(dbm)
	lg := ledger.NewLedger(dbm)

	signer, err := chain.NewLocalSigner(testPrivKey, big.NewInt(1))
	require.NoError(t, err)
	session := auth.NewSession(signer)
	require.NoError(t, session.DeriveKeys())

	client := relay.NewClientWithURL(srv.URL)
	nonces := relay.NewNonceManager(client)
	poller := proof.NewPollerWithClock(client, clockwork.NewRealClock(), 5*time.Millisecond, 5)
	contract := &fakeContract{}

	return &testEnv{
		orch:     NewOrchestrator(session, client, nonces, poller, lg, contract, st),
		relay:    fr,
		contract: contract,
		ledger:   lg,
		state:    st,
		session:  session,
		account:  session.Account(),
	}
}

// Scenario A: reserve nonce 7, relay accepts, batch 42 submitted, proof
// arrives, claim lands, ledger entry retired.
func TestWithdrawHappyPath(t *testing.T) {
	env := newTestEnv(t)
	env.relay.nonce = 7
	amount := "1500000000000000000"
	env.relay.setProofs(7,
		relay.ProofResponse{State: relay.PROOF_STATE_PENDING, Nonce: 7},
		relay.ProofResponse{State: relay.PROOF_STATE_PENDING, Nonce: 7, BatchId: 42, RelayTxHash: "0xbatchtx"},
		relay.ProofResponse{State: relay.PROOF_STATE_AVAILABLE, Amount: amount, Nonce: 7, BatchId: 42, Proof: []byte{0xaa, 0xbb}},
	)

	result, err := env.orch.Withdraw(context.Background(), big.NewInt(1500000000000000000))
	require.NoError(t, err)
	assert.Equal(t, db.WITHDRAW_STATUS_CLAIMED, result.Status)
	assert.Equal(t, uint64(7), result.Nonce)
	assert.Equal(t, "0xclaim7", result.TxHash)

	require.Equal(t, 1, env.contract.claimCount())
	call := env.contract.claims[0]
	assert.Equal(t, big.NewInt(1500000000000000000), call.amount)
	assert.Equal(t, uint64(7), call.nonce)
	assert.Equal(t, uint64(42), call.batchId)
	assert.Equal(t, []byte{0xaa, 0xbb}, call.proof)

	record, err := env.ledger.Get(env.account, 7)
	require.NoError(t, err)
	assert.Nil(t, record, "batch record must be retired after a successful claim")

	status, err := env.state.LatestWithdrawalStatus(env.account, 7)
	require.NoError(t, err)
	assert.Equal(t, db.WITHDRAW_STATUS_CLAIMED, status)
}

// Scenario B: relay reports already_processed before any claim attempt; flow
// ends claimed without touching the contract.
func TestWithdrawAlreadyProcessedShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	env.relay.nonce = 9
	env.relay.setProofs(9,
		relay.ProofResponse{State: relay.PROOF_STATE_ALREADY_PROCESSED, Nonce: 9, BatchId: 41},
	)

	result, err := env.orch.Withdraw(context.Background(), big.NewInt(2000000000000000000))
	require.NoError(t, err)
	assert.Equal(t, db.WITHDRAW_STATUS_CLAIMED, result.Status)
	assert.Equal(t, 0, env.contract.claimCount(), "claim must not be attempted")
}

// Scenario C: claim reverts out of gas; record survives, retry reuses the
// cached proof without polling again.
func TestClaimRevertKeepsRecordAndRetriesWithCachedProof(t *testing.T) {
	env := newTestEnv(t)
	env.relay.nonce = 4
	amount := "3000000000000000000"
	env.relay.setProofs(4,
		relay.ProofResponse{State: relay.PROOF_STATE_AVAILABLE, Amount: amount, Nonce: 4, BatchId: 50, Proof: []byte{0x01}},
	)
	env.contract.claimErr = &types.ClaimRevertedError{Kind: types.RevertInsufficientFunds, Err: errors.New("insufficient funds for gas")}
	env.contract.claimErrs = 1

	result, err := env.orch.Withdraw(context.Background(), big.NewInt(3000000000000000000))
	require.Error(t, err)
	assert.Equal(t, db.WITHDRAW_STATUS_CLAIM_FAILED, result.Status)

	record, rerr := env.ledger.Get(env.account, 4)
	require.NoError(t, rerr)
	require.NotNil(t, record, "batch record must survive a reverted claim")
	assert.Equal(t, uint64(50), record.BatchId)

	pollsAfterFailure := env.relay.proofCallCount(4)

	retry, err := env.orch.RetryClaim(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, db.WITHDRAW_STATUS_CLAIMED, retry.Status)
	assert.Equal(t, pollsAfterFailure, env.relay.proofCallCount(4), "retry must reuse the cached proof")

	record, rerr = env.ledger.Get(env.account, 4)
	require.NoError(t, rerr)
	assert.Nil(t, record)
}

// Recovery: a batch record persisted before a restart resumes without any
// re-signing; the session never derived keys.
func TestResumePendingClaimsWithoutResigning(t *testing.T) {
	env := newTestEnv(t)

	// a previous session captured this record
	require.NoError(t, env.ledger.Record(env.account, big.NewInt(500), 11, 60, "0xoldbatch"))
	env.relay.setProofs(11,
		relay.ProofResponse{State: relay.PROOF_STATE_AVAILABLE, Amount: "500", Nonce: 11, BatchId: 60, Proof: []byte{0x0c}},
	)

	// fresh session with no derived secondary keys: recovery must not sign
	signer, err := chain.NewLocalSigner(testPrivKey, big.NewInt(1))
	require.NoError(t, err)
	bareSession := auth.NewSession(signer)
	env.orch.session = bareSession

	env.orch.ResumePending(context.Background())

	assert.Equal(t, 1, env.contract.claimCount())
	record, err := env.ledger.Get(env.account, 11)
	require.NoError(t, err)
	assert.Nil(t, record, "exactly the recovered record is removed")
}

func TestWithdrawRejectedByRelay(t *testing.T) {
	env := newTestEnv(t)
	env.relay.nonce = 3
	env.relay.rejectReason = "insufficient balance"

	result, err := env.orch.Withdraw(context.Background(), big.NewInt(100))
	var rejected *types.RequestRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "insufficient balance", rejected.Reason)
	assert.Equal(t, db.WITHDRAW_STATUS_REQUEST_FAILED, result.Status)
	assert.Equal(t, 0, env.contract.claimCount())
}

func TestWithdrawValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.Withdraw(context.Background(), big.NewInt(0))
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)

	env.relay.balance = "50"
	_, err = env.orch.Withdraw(context.Background(), big.NewInt(100))
	assert.ErrorAs(t, err, &verr)
}

func TestWithdrawRequiresDerivedKeys(t *testing.T) {
	env := newTestEnv(t)
	env.relay.nonce = 2

	signer, err := chain.NewLocalSigner(testPrivKey, big.NewInt(1))
	require.NoError(t, err)
	env.orch.session = auth.NewSession(signer)

	_, err = env.orch.Withdraw(context.Background(), big.NewInt(10))
	assert.ErrorIs(t, err, types.ErrAuthenticationUnavailable)
}

// A re-nonced acceptance invalidates the signature: the flow authenticates
// again with the relay's nonce and only the resubmission is live.
func TestWithdrawReauthenticatesOnNonceRebind(t *testing.T) {
	env := newTestEnv(t)
	env.relay.nonce = 5
	env.relay.rebindNonce = 8
	env.relay.setProofs(8,
		relay.ProofResponse{State: relay.PROOF_STATE_AVAILABLE, Amount: "100", Nonce: 8, BatchId: 6, Proof: []byte{0x08}},
	)

	result, err := env.orch.Withdraw(context.Background(), big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, db.WITHDRAW_STATUS_CLAIMED, result.Status)
	assert.Equal(t, uint64(8), result.Nonce)

	require.Len(t, env.relay.submitted, 2, "rebind forces a second, freshly signed submission")
	assert.Equal(t, int64(5), env.relay.submitted[0].Nonce)
	assert.Equal(t, int64(8), env.relay.submitted[1].Nonce, "resubmission binds the relay's nonce")
}

// When the resubmission after a rebind is rejected, the once-accepted
// (account, nonce, amount) tuple stays visible in history and the result
// carries the terminal state.
func TestWithdrawReauthRejectionKeepsAcceptedTuple(t *testing.T) {
	env := newTestEnv(t)
	env.relay.nonce = 5
	env.relay.rebindNonce = 8
	env.relay.rejectResubmit = "signature does not match bound nonce"

	result, err := env.orch.Withdraw(context.Background(), big.NewInt(100))
	var rejected *types.RequestRejectedError
	require.ErrorAs(t, err, &rejected)
	require.NotNil(t, result)
	assert.Equal(t, db.WITHDRAW_STATUS_REQUEST_FAILED, result.Status)
	assert.Equal(t, uint64(8), result.Nonce)

	status, serr := env.state.LatestWithdrawalStatus(env.account, 8)
	require.NoError(t, serr)
	assert.Equal(t, db.WITHDRAW_STATUS_REQUEST_FAILED, status)
}

// Degraded nonce path: reservation fails, the request goes out unassigned and
// the relay's echoed nonce becomes the flow identity.
func TestWithdrawDegradedNonceFallback(t *testing.T) {
	env := newTestEnv(t)
	env.relay.nonceFail = true
	env.relay.echoNonce = 12
	env.relay.setProofs(12,
		relay.ProofResponse{State: relay.PROOF_STATE_AVAILABLE, Amount: "100", Nonce: 12, BatchId: 5, Proof: []byte{0x05}},
	)

	result, err := env.orch.Withdraw(context.Background(), big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, uint64(12), result.Nonce, "relay echo is ground truth")
	assert.Equal(t, db.WITHDRAW_STATUS_CLAIMED, result.Status)

	require.NotEmpty(t, env.relay.submitted)
	assert.Equal(t, relay.NonceUnassigned, env.relay.submitted[0].Nonce)
}

func TestDepositSyncsRelay(t *testing.T) {
	env := newTestEnv(t)

	tx, err := env.orch.Deposit(context.Background(), big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, "0xdeposit0", tx)
}

func TestTransferSubmitsDualSignedRequest(t *testing.T) {
	env := newTestEnv(t)
	env.relay.nonce = 6

	resp, err := env.orch.Transfer(context.Background(), "0xAbCd000000000000000000000000000000000002", big.NewInt(250))
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, uint64(6), resp.Nonce)
}
