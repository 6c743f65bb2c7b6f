package indexer

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"crowdsale/core/events"
	"crowdsale/core/types"
	"crowdsale/native/sale"
)

type payloadEvent struct{ evt *types.Event }

func (p payloadEvent) EventType() string   { return p.evt.Type }
func (p payloadEvent) Event() *types.Event { return p.evt }

func newTestIndexer(t *testing.T) (*Indexer, *events.Log) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	log := events.NewLog()
	return New(db, log, nil), log
}

var (
	buyerA   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	buyerB   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	currency = common.HexToAddress("0x0000000000000000000000000000000000000020")
	referrer = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func emitPurchase(log *events.Log, buyer common.Address, value int64, referral common.Address) {
	log.Emit(payloadEvent{sale.NewTokenBoughtEvent(buyer, currency, big.NewInt(value), big.NewInt(value*50), referral)})
}

func TestSyncIndexesPurchasesAndWithdrawals(t *testing.T) {
	ix, log := newTestIndexer(t)
	ctx := context.Background()

	emitPurchase(log, buyerA, 10, referrer)
	emitPurchase(log, buyerB, 3, common.Address{})
	log.Emit(payloadEvent{sale.NewTokenWithdrewEvent(buyerA, big.NewInt(100))})
	log.Emit(payloadEvent{&types.Event{Type: "token.transfer", Attributes: map[string]string{"amount": "1"}}})

	applied, err := ix.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, applied)

	cursor, err := ix.Cursor(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(4), cursor)

	purchases, err := ix.Purchases(ctx, buyerA.Hex())
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	require.Equal(t, "500", purchases[0].Amount)
	require.Equal(t, referrer.Hex(), purchases[0].Referral)

	all, err := ix.Purchases(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "", all[1].Referral)

	withdrawals, err := ix.Withdrawals(ctx, buyerA.Hex())
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)
	require.Equal(t, "100", withdrawals[0].Amount)

	recent, err := ix.Events(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, uint64(4), recent[0].Sequence)

	// A second sync is a no-op.
	applied, err = ix.Sync(ctx)
	require.NoError(t, err)
	require.Zero(t, applied)
}

func TestRunFollowsLog(t *testing.T) {
	ix, log := newTestIndexer(t)
	emitPurchase(log, buyerA, 1, common.Address{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx) }()

	emitPurchase(log, buyerB, 2, common.Address{})
	require.Eventually(t, func() bool {
		cursor, err := ix.Cursor(context.Background())
		return err == nil && cursor == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestExportPurchases(t *testing.T) {
	ix, log := newTestIndexer(t)
	ctx := context.Background()
	emitPurchase(log, buyerA, 10, referrer)
	emitPurchase(log, buyerB, 3, common.Address{})
	_, err := ix.Sync(ctx)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "purchases.parquet")
	rows, err := ix.ExportPurchases(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 2, rows)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportPurchasesText(t *testing.T) {
	ix, log := newTestIndexer(t)
	ctx := context.Background()
	emitPurchase(log, buyerA, 10, referrer)
	_, err := ix.Sync(ctx)
	require.NoError(t, err)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "purchases.csv")
	rows, err := ix.ExportPurchases(ctx, csvPath)
	require.NoError(t, err)
	require.Equal(t, 1, rows)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "sequence,buyer,"))

	jsonlPath := filepath.Join(dir, "purchases.jsonl")
	rows, err = ix.ExportPurchases(ctx, jsonlPath)
	require.NoError(t, err)
	require.Equal(t, 1, rows)
	data, err = os.ReadFile(jsonlPath)
	require.NoError(t, err)
	require.Contains(t, string(data), `"sequence":1`)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
}
