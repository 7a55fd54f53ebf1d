package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/point-ledger/ledger"
	"github.com/warp/point-ledger/ledger/store"
)

// now is the fixed clock of every ledger test: 2025-03-15 10:00 UTC.
var now = time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)

var testRoster = []ledger.Employee{
	{ID: "E0001", Name: "山田 太郎", Team: "A"},
	{ID: "E0002", Name: "佐藤 花子", Team: "A"},
	{ID: "E0003", Name: "鈴木 次郎", Team: "B"},
}

func admin() ledger.Capability {
	return ledger.Capability{Subject: "admin", Role: ledger.RoleAdmin, ExpiresAt: now.Add(time.Hour)}
}

func viewer() ledger.Capability {
	return ledger.Capability{Subject: "viewer", Role: ledger.RoleViewer, ExpiresAt: now.Add(time.Hour)}
}

// newLedger returns a ledger over a fresh memory store seeded with
// testRoster and the default shifts.
func newLedger(t *testing.T, policy ledger.KeyPolicy) (*ledger.Ledger, *store.TxMemory) {
	t.Helper()
	s := store.NewTxMemory(policy)
	l := ledger.New(s, policy, ledger.WithClock(func() time.Time { return now }))
	require.NoError(t, l.Bootstrap(context.Background(), ledger.Seed{Employees: testRoster}))
	return l, s
}

func day(y int, m time.Month, d int) ledger.Date { return ledger.NewDate(y, m, d) }

func pts(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func allRecords(t *testing.T, l *ledger.Ledger) []ledger.Record {
	t.Helper()
	rs, err := l.AllRecords(context.Background())
	require.NoError(t, err)
	return rs
}

func mustAdd(t *testing.T, l *ledger.Ledger, in ledger.NewRecord) ledger.Record {
	t.Helper()
	res, err := l.AddRecord(context.Background(), in)
	require.NoError(t, err)
	return res.Record
}
