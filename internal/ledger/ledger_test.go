package ledger

import (
	"math/big"
	"testing"

	"github.com/litebridge/bridge-agent/internal/config"
	"github.com/litebridge/bridge-agent/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "0xAbCd000000000000000000000000000000000001"

func newTestLedger(t *testing.T) *Ledger {
	t.Setenv("DB_DIR", t.TempDir())
	config.InitConfig()
	return NewLedger(db.NewDatabaseManager())
}

func TestRecordRoundTrip(t *testing.T) {
	l := newTestLedger(t)

	amount := big.NewInt(1500000000000000000)
	require.NoError(t, l.Record(testAccount, amount, 7, 42, "0xrelaytx"))

	records, err := l.ListFor(testAccount)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "0xabcd000000000000000000000000000000000001", r.Account)
	assert.Equal(t, uint64(7), r.Nonce)
	assert.Equal(t, "1500000000000000000", r.Amount)
	assert.Equal(t, uint64(42), r.BatchId)
	assert.Equal(t, "0xrelaytx", r.RelayTxHash)
	assert.Equal(t, db.RECORD_SOURCE_RELAY, r.Source)
	assert.False(t, r.CapturedAt.IsZero())

	require.NoError(t, l.Remove(testAccount, 7))
	records, err = l.ListFor(testAccount)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordOverwritesExistingKey(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Record(testAccount, big.NewInt(100), 3, 10, "0xaaa"))
	first, err := l.Get(testAccount, 3)
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, l.Record(testAccount, big.NewInt(100), 3, 11, "0xbbb"))

	records, err := l.ListFor(testAccount)
	require.NoError(t, err)
	require.Len(t, records, 1, "same key must overwrite, not duplicate")
	assert.Equal(t, uint64(11), records[0].BatchId)
	assert.Equal(t, "0xbbb", records[0].RelayTxHash)
	assert.False(t, records[0].CapturedAt.Before(first.CapturedAt))
}

func TestListForIsScopedByAccount(t *testing.T) {
	l := newTestLedger(t)
	other := "0xabcd000000000000000000000000000000000002"

	require.NoError(t, l.Record(testAccount, big.NewInt(1), 1, 5, ""))
	require.NoError(t, l.Record(other, big.NewInt(2), 1, 5, ""))

	records, err := l.ListFor(testAccount)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].Amount)
}

func TestRemoveAbsentKeyIsNoop(t *testing.T) {
	l := newTestLedger(t)
	assert.NoError(t, l.Remove(testAccount, 99))
}

func TestRecoverRecordMarksManualSource(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.RecoverRecord(testAccount, big.NewInt(500), 8, 43, ""))

	r, err := l.Get(testAccount, 8)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, db.RECORD_SOURCE_MANUAL, r.Source)
	assert.Equal(t, uint64(43), r.BatchId)
}

func TestRecordRejectsBadAmount(t *testing.T) {
	l := newTestLedger(t)
	assert.Error(t, l.Record(testAccount, big.NewInt(0), 1, 1, ""))
	assert.Error(t, l.Record(testAccount, nil, 1, 1, ""))
}
