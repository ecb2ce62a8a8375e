package http

import (
	"errors"
	"net/http"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/litebridge/bridge-agent/internal/types"
	log "github.com/sirupsen/logrus"
)

type withdrawRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type transferRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
}

type retryClaimRequest struct {
	Nonce uint64 `json:"nonce"`
}

type recoverRequest struct {
	Amount      string `json:"amount" binding:"required"`
	Nonce       uint64 `json:"nonce"`
	BatchId     uint64 `json:"batch_id" binding:"required"`
	RelayTxHash string `json:"relay_tx_hash"`
}

type escapeRequest struct {
	Amount  string `json:"amount" binding:"required"`
	Nonce   uint64 `json:"nonce"`
	Account string `json:"account"` // censorship proofs may target another account
}

func (s *Server) handleStatus(c *gin.Context) {
	account := s.session.Account()
	records, err := s.ledger.ListFor(account)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":             account,
		"chain_id":            s.session.Signer().ChainID().String(),
		"authenticated":       s.session.HasKeys(),
		"claimable_pending":   len(records),
		"last_reserved_nonce": s.orchestrator.LastReservedNonce(),
		"recent_events":       s.recorder.Recent(20),
	})
}

func (s *Server) handleBalance(c *gin.Context) {
	resp, err := s.client.GetBalance(c.Request.Context(), s.session.Account())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePendingWithdrawals(c *gin.Context) {
	pending, err := s.client.PendingWithdrawals(c.Request.Context(), s.session.Account())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}

func (s *Server) handleLedger(c *gin.Context) {
	records, err := s.ledger.ListFor(s.session.Account())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := s.state.ListWithdrawalHistory(s.session.Account(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": rows})
}

// handleRelayHistory proxies the relay's cross-account transaction history;
// the local /history endpoint stays authoritative for this client's own
// state transitions.
func (s *Server) handleRelayHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := s.client.History(c.Request.Context(), s.session.Account(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (s *Server) handleRelayHistoryByHash(c *gin.Context) {
	hash := c.Query("hash")
	if hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash query parameter required"})
		return
	}
	entry, err := s.client.HistoryByHash(c.Request.Context(), hash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// handleWithdraw drives a full withdrawal flow and blocks until a terminal
// state. A failed flow still carries a result body so the operator sees where
// it stopped.
func (s *Server) handleWithdraw(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := types.ParseAmount(req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := s.orchestrator.Withdraw(c.Request.Context(), amount)
	if err != nil {
		if result != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error(), "result": result})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRetryClaim(c *gin.Context) {
	var req retryClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.orchestrator.RetryClaim(c.Request.Context(), req.Nonce)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleProofStatus(c *gin.Context) {
	nonce, err := strconv.ParseUint(c.Query("nonce"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nonce query parameter required"})
		return
	}
	pf, err := s.orchestrator.ProofStatus(c.Request.Context(), nonce)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"nonce":    pf.Nonce,
		"batch_id": pf.BatchId,
		"amount":   types.AmountString(pf.Amount),
	})
}

func (s *Server) handleCancelPoll(c *gin.Context) {
	var req retryClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.orchestrator.CancelPoll(req.Nonce)
	c.JSON(http.StatusOK, gin.H{"cancelled": req.Nonce})
}

func (s *Server) handleRecover(c *gin.Context) {
	var req recoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.orchestrator.Recover(c.Request.Context(), req.Amount, req.Nonce, req.BatchId, req.RelayTxHash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleForceWithdraw(c *gin.Context) {
	var req escapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := types.ParseAmount(req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	log.Warnf("Force withdraw requested, amount %s, nonce %d", req.Amount, req.Nonce)
	txHash, err := s.escape.ForceWithdraw(c.Request.Context(), amount, req.Nonce)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_hash": txHash})
}

func (s *Server) handleCensorshipProof(c *gin.Context) {
	var req escapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := types.ParseAmount(req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	target := req.Account
	if target == "" {
		target = s.session.Account()
	}
	normalized, err := types.NormalizeAddress(target)
	if err != nil {
		writeError(c, err)
		return
	}
	txHash, err := s.escape.CensorshipProof(c.Request.Context(), ethcommon.HexToAddress(normalized), amount, req.Nonce)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_hash": txHash})
}

func (s *Server) handleTransfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := types.ParseAmount(req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	resp, err := s.orchestrator.Transfer(c.Request.Context(), req.Recipient, amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeposit(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := types.ParseAmount(req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	txHash, err := s.orchestrator.Deposit(c.Request.Context(), amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_hash": txHash})
}

// handleDepositSync replays a deposit notification for a tx the relay missed,
// without sending a new L1 transaction.
func (s *Server) handleDepositSync(c *gin.Context) {
	var req struct {
		TxHash string `json:"tx_hash" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.client.SyncDeposit(c.Request.Context(), req.TxHash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTriggerBatch(c *gin.Context) {
	resp, err := s.orchestrator.TriggerBatch(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleReconcile(c *gin.Context) {
	result, err := s.reconciler.Reconcile(c.Request.Context(), s.session.Account())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func writeError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

// errorStatus maps the error taxonomy onto HTTP codes: caller mistakes are
// 4xx, relay decisions keep their original status, everything downstream of
// the relay or the chain is a gateway problem.
func errorStatus(err error) int {
	var validation *types.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest
	}
	var rejected *types.RequestRejectedError
	if errors.As(err, &rejected) {
		if rejected.StatusCode >= 400 && rejected.StatusCode < 500 {
			return rejected.StatusCode
		}
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, types.ErrAuthenticationUnavailable):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrProofNotReady):
		return http.StatusNotFound
	case errors.Is(err, types.ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, types.ErrPollExpired):
		return http.StatusGatewayTimeout
	}
	var reverted *types.ClaimRevertedError
	if errors.As(err, &reverted) {
		return http.StatusBadGateway
	}
	if types.IsNetworkError(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
