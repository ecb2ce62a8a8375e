package http

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/litebridge/bridge-agent/internal/auth"
	"github.com/litebridge/bridge-agent/internal/config"
	"github.com/litebridge/bridge-agent/internal/ledger"
	"github.com/litebridge/bridge-agent/internal/reconcile"
	"github.com/litebridge/bridge-agent/internal/relay"
	"github.com/litebridge/bridge-agent/internal/state"
	"github.com/litebridge/bridge-agent/internal/withdraw"
	log "github.com/sirupsen/logrus"
)

// EscapeHatch is the censorship-resistance surface of the bridge contract,
// callable directly on L1 when the relay stops cooperating.
type EscapeHatch interface {
	ForceWithdraw(ctx context.Context, amount *big.Int, nonce uint64) (string, error)
	CensorshipProof(ctx context.Context, account common.Address, amount *big.Int, nonce uint64) (string, error)
}

// Server exposes the operator API over gin. All flows are driven by the
// orchestrator; the handlers only translate HTTP to calls and back.
type Server struct {
	orchestrator *withdraw.Orchestrator
	reconciler   *reconcile.Reconciler
	client       *relay.Client
	state        *state.State
	ledger       *ledger.Ledger
	session      *auth.Session
	escape       EscapeHatch
	recorder     *state.EventRecorder
}

func NewServer(orchestrator *withdraw.Orchestrator, reconciler *reconcile.Reconciler, client *relay.Client, st *state.State, lg *ledger.Ledger, session *auth.Session, escape EscapeHatch, recorder *state.EventRecorder) *Server {
	return &Server{
		orchestrator: orchestrator,
		reconciler:   reconciler,
		client:       client,
		state:        st,
		ledger:       lg,
		session:      session,
		escape:       escape,
		recorder:     recorder,
	}
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) {
	addr := ":" + config.AppConfig.HTTPPort
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("HTTP server shutdown: %v", err)
		}
	}()

	log.Infof("HTTP server is running on port %s", config.AppConfig.HTTPPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start HTTP server: %v", err)
	}
}

// Router builds the gin engine; split out so tests can drive it with httptest.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	api := r.Group("/api/v1")
	if secret := config.AppConfig.HTTPAuthSecret; secret != "" {
		api.Use(bearerAuth(secret))
	}

	api.GET("/status", s.handleStatus)
	api.GET("/balance", s.handleBalance)
	api.GET("/withdrawals/pending", s.handlePendingWithdrawals)
	api.GET("/withdrawals/ledger", s.handleLedger)
	api.GET("/withdrawals/proof", s.handleProofStatus)
	api.GET("/history", s.handleHistory)
	api.GET("/relay/history", s.handleRelayHistory)
	api.GET("/relay/history/tx", s.handleRelayHistoryByHash)

	api.POST("/withdraw", s.handleWithdraw)
	api.POST("/withdraw/retry", s.handleRetryClaim)
	api.POST("/withdraw/cancel", s.handleCancelPoll)
	api.POST("/withdraw/recover", s.handleRecover)
	api.POST("/withdraw/force", s.handleForceWithdraw)
	api.POST("/withdraw/censorship", s.handleCensorshipProof)
	api.POST("/transfer", s.handleTransfer)
	api.POST("/deposit", s.handleDeposit)
	api.POST("/deposit/sync", s.handleDepositSync)
	api.POST("/batch", s.handleTriggerBatch)
	api.POST("/reconcile", s.handleReconcile)

	return r
}
