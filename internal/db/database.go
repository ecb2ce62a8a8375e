package db

import (
	"os"
	"path/filepath"

	"github.com/litebridge/bridge-agent/internal/config"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type DatabaseManager struct {
	ledgerDb  *gorm.DB
	historyDb *gorm.DB
}

func NewDatabaseManager() *DatabaseManager {
	dm := &DatabaseManager{}
	dm.initDB()
	return dm
}

func (dm *DatabaseManager) initDB() {
	dbDir := config.AppConfig.DbDir
	if err := os.MkdirAll(dbDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	ledgerPath := filepath.Join(dbDir, "claim_ledger.db")
	ledgerDb, err := gorm.Open(sqlite.Open(ledgerPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect to ledger database: %v", err)
	}
	dm.ledgerDb = ledgerDb
	log.Debugf("Ledger database connected successfully, path: %s", ledgerPath)

	historyPath := filepath.Join(dbDir, "history.db")
	historyDb, err := gorm.Open(sqlite.Open(historyPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect to history database: %v", err)
	}
	dm.historyDb = historyDb
	log.Debugf("History database connected successfully, path: %s", historyPath)

	dm.autoMigrate()
	log.Debugf("Database migration completed successfully")
}

func (dm *DatabaseManager) GetLedgerDB() *gorm.DB {
	return dm.ledgerDb
}

func (dm *DatabaseManager) GetHistoryDB() *gorm.DB {
	return dm.historyDb
}
