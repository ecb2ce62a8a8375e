package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/litebridge/bridge-agent/internal/auth"
	"github.com/litebridge/bridge-agent/internal/chain"
	"github.com/litebridge/bridge-agent/internal/config"
	"github.com/litebridge/bridge-agent/internal/db"
	"github.com/litebridge/bridge-agent/internal/http"
	"github.com/litebridge/bridge-agent/internal/ledger"
	"github.com/litebridge/bridge-agent/internal/proof"
	"github.com/litebridge/bridge-agent/internal/reconcile"
	"github.com/litebridge/bridge-agent/internal/relay"
	"github.com/litebridge/bridge-agent/internal/state"
	"github.com/litebridge/bridge-agent/internal/withdraw"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	DatabaseManager *db.DatabaseManager
	State           *state.State
	Session         *auth.Session
	Orchestrator    *withdraw.Orchestrator
	Reconciler      *reconcile.Reconciler
	EventRecorder   *state.EventRecorder
	HTTPServer      *http.Server
}

func NewApplication() *Application {
	config.InitConfig()

	dbm := db.NewDatabaseManager()
	st := state.InitializeState(dbm)

	signer, err := chain.NewLocalSigner(config.AppConfig.AccountPrivateKey, config.AppConfig.L1ChainId)
	if err != nil {
		log.Fatalf("Failed to load account key: %v", err)
	}
	contract, err := chain.NewBridgeContract(signer)
	if err != nil {
		log.Fatalf("Failed to connect bridge contract: %v", err)
	}

	session := auth.NewSession(signer)
	if err := session.DeriveKeys(); err != nil {
		log.Fatalf("Failed to derive session keys: %v", err)
	}

	client := relay.NewClient()
	nonces := relay.NewNonceManager(client)
	poller := proof.NewPoller(client)
	lg := ledger.NewLedger(dbm)

	orchestrator := withdraw.NewOrchestrator(session, client, nonces, poller, lg, contract, st)
	reconciler := reconcile.NewReconciler(client, st)
	recorder := state.NewEventRecorder(st.EventBus, 64)
	httpServer := http.NewServer(orchestrator, reconciler, client, st, lg, session, contract, recorder)

	return &Application{
		DatabaseManager: dbm,
		State:           st,
		Session:         session,
		Orchestrator:    orchestrator,
		Reconciler:      reconciler,
		EventRecorder:   recorder,
		HTTPServer:      httpServer,
	}
}

func (app *Application) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Orchestrator.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.EventRecorder.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.HTTPServer.Start(ctx)
	}()

	<-stop
	log.Info("Receiving exit signal...")

	cancel()

	wg.Wait()
	app.Session.Close()
	log.Info("Server stopped")
}

func main() {
	app := NewApplication()
	app.Run()
}
