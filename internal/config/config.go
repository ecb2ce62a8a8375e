package config

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var AppConfig Config

func InitConfig() {
	// .env is optional, real env vars win either way
	_ = godotenv.Load()
	viper.AutomaticEnv()

	// Default config
	viper.SetDefault("HTTP_PORT", "8090")
	viper.SetDefault("HTTP_AUTH_SECRET", "")
	viper.SetDefault("RELAY_URL", "http://localhost:3001")
	viper.SetDefault("RELAY_TIMEOUT", "15s")
	viper.SetDefault("RELAY_RETRY_MAX", 3)
	viper.SetDefault("L1_RPC", "http://localhost:8545")
	viper.SetDefault("L1_CHAIN_ID", "1")
	viper.SetDefault("BRIDGE_CONTRACT", "")
	viper.SetDefault("ACCOUNT_PRIVATE_KEY", "")
	viper.SetDefault("PROOF_POLL_INTERVAL", "3s")
	viper.SetDefault("PROOF_POLL_MAX_ATTEMPTS", 40)
	viper.SetDefault("CLAIM_GAS_LIMIT", 300000)
	viper.SetDefault("DEPOSIT_GAS_LIMIT", 150000)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_DIR", "/app/db")

	logLevel, err := log.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	l1ChainId, err := strconv.ParseInt(viper.GetString("L1_CHAIN_ID"), 10, 64)
	if err != nil {
		log.Fatalf("Failed to parse L1 chain id: %v", err)
	}

	AppConfig = Config{
		HTTPPort:             viper.GetString("HTTP_PORT"),
		HTTPAuthSecret:       viper.GetString("HTTP_AUTH_SECRET"),
		RelayURL:             strings.TrimRight(viper.GetString("RELAY_URL"), "/"),
		RelayTimeout:         viper.GetDuration("RELAY_TIMEOUT"),
		RelayRetryMax:        viper.GetInt("RELAY_RETRY_MAX"),
		L1RPC:                viper.GetString("L1_RPC"),
		L1ChainId:            big.NewInt(l1ChainId),
		BridgeContract:       viper.GetString("BRIDGE_CONTRACT"),
		AccountPrivateKey:    viper.GetString("ACCOUNT_PRIVATE_KEY"),
		ProofPollInterval:    viper.GetDuration("PROOF_POLL_INTERVAL"),
		ProofPollMaxAttempts: viper.GetInt("PROOF_POLL_MAX_ATTEMPTS"),
		ClaimGasLimit:        viper.GetUint64("CLAIM_GAS_LIMIT"),
		DepositGasLimit:      viper.GetUint64("DEPOSIT_GAS_LIMIT"),
		DbDir:                viper.GetString("DB_DIR"),
		LogLevel:             logLevel,
	}

	if AppConfig.ProofPollInterval < time.Second {
		log.Warnf("Proof poll interval %v is too aggressive, set to 1s", AppConfig.ProofPollInterval)
		AppConfig.ProofPollInterval = time.Second
	}

	log.Infof("Init config, RelayURL %s, ProofPollInterval %v, ProofPollMaxAttempts %d",
		AppConfig.RelayURL, AppConfig.ProofPollInterval, AppConfig.ProofPollMaxAttempts)

	log.SetLevel(AppConfig.LogLevel)
}

type Config struct {
	HTTPPort             string
	HTTPAuthSecret       string
	RelayURL             string
	RelayTimeout         time.Duration
	RelayRetryMax        int
	L1RPC                string
	L1ChainId            *big.Int
	BridgeContract       string
	AccountPrivateKey    string
	ProofPollInterval    time.Duration
	ProofPollMaxAttempts int
	ClaimGasLimit        uint64
	DepositGasLimit      uint64
	DbDir                string
	LogLevel             log.Level
}
