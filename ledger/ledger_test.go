/*
ledger_test.go - Tests for record writes, reads and locks

Tests for:
- Locked months reject every mutation and leave the ledger unchanged
- Daily key policy upserts (last write wins, team re-snapshotted)
- Per-shift key policy rejects duplicates
- Half-open range queries
- Lock/unlock round trip
- Capability checks on administrative calls
*/
package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/point-ledger/ledger"
)

// =============================================================================
// ADD RECORD
// =============================================================================

func TestAddRecord_SnapshotsTeamFromRoster(t *testing.T) {
	// GIVEN: A ledger with E0003 in team B
	l, _ := newLedger(t, ledger.KeyDaily)

	// WHEN: A record is added for E0003
	res, err := l.AddRecord(context.Background(), ledger.NewRecord{
		Date: day(2025, 3, 10), EmployeeID: " E0003 ", Points: pts(4), Memo: " 助っ人 ",
	})

	// THEN: The record carries the roster team and trimmed fields
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCreated, res.Status)
	assert.Equal(t, "B", res.Record.Team)
	assert.Equal(t, ledger.EmployeeID("E0003"), res.Record.EmployeeID)
	assert.Equal(t, "助っ人", res.Record.Memo)
	assert.NotEmpty(t, res.Record.ID)
}

func TestAddRecord_LockedMonthFailsAndLeavesLedgerUnchanged(t *testing.T) {
	// GIVEN: One record in March, and March locked
	l, _ := newLedger(t, ledger.KeyDaily)
	ctx := context.Background()
	mustAdd(t, l, ledger.NewRecord{Date: day(2025, 3, 1), EmployeeID: "E0001", Points: pts(1)})
	require.NoError(t, l.Lock(ctx, admin(), day(2025, 3, 20)))
	before := allRecords(t, l)

	for _, in := range []ledger.NewRecord{
		{Date: day(2025, 3, 1), EmployeeID: "E0001", Points: pts(9)}, // would upsert
		{Date: day(2025, 3, 31), EmployeeID: "E0002", Points: pts(2)},
	} {
		// WHEN: A record is added in the locked month
		_, err := l.AddRecord(ctx, in)

		// THEN: It fails with the locked month and nothing changed
		var locked *ledger.LockedPeriodError
		require.ErrorAs(t, err, &locked)
		assert.Equal(t, "2025-03", locked.Month.String())
		assert.ErrorIs(t, err, ledger.ErrLockedPeriod)
	}
	assert.Equal(t, before, allRecords(t, l))

	// AND: The neighbouring month is still open
	_, err := l.AddRecord(ctx, ledger.NewRecord{Date: day(2025, 4, 1), EmployeeID: "E0001", Points: pts(1)})
	assert.NoError(t, err)
}

func TestAddRecord_LockedMonthWinsOverInvalidFields(t *testing.T) {
	// GIVEN: February locked, under both key policies
	for _, policy := range []ledger.KeyPolicy{ledger.KeyDaily, ledger.KeyPerShift} {
		l, _ := newLedger(t, policy)
		ctx := context.Background()
		require.NoError(t, l.Lock(ctx, admin(), day(2025, 2, 1)))

		for _, in := range []ledger.NewRecord{
			{Date: day(2025, 2, 10), EmployeeID: "E0001", Shift: "早番", Points: pts(-1)},
			{Date: day(2025, 2, 10), EmployeeID: "E9999", Shift: "早番", Points: pts(1)},
			{Date: day(2025, 2, 10), EmployeeID: "E0001", Points: pts(1)},
		} {
			// WHEN: An otherwise invalid record targets February
			_, err := l.AddRecord(ctx, in)

			// THEN: The lock is what is reported
			assert.ErrorIs(t, err, ledger.ErrLockedPeriod, "policy %s, %+v", policy, in)
			assert.NotErrorIs(t, err, ledger.ErrValidation)
		}
		assert.Empty(t, allRecords(t, l))
	}
}

func TestAddRecord_UnknownEmployee(t *testing.T) {
	// GIVEN: A ledger without E9999
	l, _ := newLedger(t, ledger.KeyDaily)

	// WHEN: A record is added for E9999
	_, err := l.AddRecord(context.Background(), ledger.NewRecord{
		Date: day(2025, 3, 1), EmployeeID: "E9999", Points: pts(1),
	})

	// THEN: It fails with the unknown ID
	var unknown *ledger.UnknownEmployeeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, ledger.EmployeeID("E9999"), unknown.EmployeeID)
	assert.Empty(t, allRecords(t, l))
}

func TestAddRecord_Validation(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyDaily)

	tests := []struct {
		name  string
		in    ledger.NewRecord
		field string
	}{
		{"missing date", ledger.NewRecord{EmployeeID: "E0001", Points: pts(1)}, "date"},
		{"blank employee", ledger.NewRecord{Date: day(2025, 3, 1), EmployeeID: "  ", Points: pts(1)}, "employee_id"},
		{"negative points", ledger.NewRecord{Date: day(2025, 3, 1), EmployeeID: "E0001", Points: pts(-1)}, "points"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.AddRecord(context.Background(), tt.in)

			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Empty(t, allRecords(t, l))
}

func TestAddRecord_ZeroPointsAllowed(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyDaily)

	res, err := l.AddRecord(context.Background(), ledger.NewRecord{
		Date: day(2025, 3, 1), EmployeeID: "E0001", Points: pts(0),
	})

	require.NoError(t, err)
	assert.True(t, res.Record.Points.IsZero())
}

// =============================================================================
// KEY POLICIES
// =============================================================================

func TestAddRecord_DailyPolicyUpsertsLastWriteWins(t *testing.T) {
	// GIVEN: A daily ledger with one record for E0001 on 3/10
	l, _ := newLedger(t, ledger.KeyDaily)
	ctx := context.Background()
	first := mustAdd(t, l, ledger.NewRecord{Date: day(2025, 3, 10), EmployeeID: "E0001", Points: pts(3), Memo: "朝"})

	// AND: E0001 moved to team C since
	_, err := l.ReplaceRoster(ctx, admin(), []ledger.Employee{
		{ID: "E0001", Name: "山田 太郎", Team: "C"},
		{ID: "E0002", Name: "佐藤 花子", Team: "A"},
	})
	require.NoError(t, err)

	// WHEN: A second record is added for the same day and employee
	res, err := l.AddRecord(ctx, ledger.NewRecord{Date: day(2025, 3, 10), EmployeeID: "E0001", Points: pts(7)})

	// THEN: Exactly one record remains with the second points and new team
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusUpdated, res.Status)

	all := allRecords(t, l)
	require.Len(t, all, 1)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, "7", all[0].Points.String())
	assert.Equal(t, "C", all[0].Team)
	assert.Equal(t, "朝", all[0].Memo, "empty memo keeps the previous one")

	// AND: A later write with a memo replaces it but keeps the shift
	_, err = l.AddRecord(ctx, ledger.NewRecord{Date: day(2025, 3, 10), EmployeeID: "E0001", Shift: "遅番",
		Points: pts(8), Memo: "夜"})
	require.NoError(t, err)
	all = allRecords(t, l)
	require.Len(t, all, 1)
	assert.Equal(t, "夜", all[0].Memo)
	assert.Empty(t, all[0].Shift)
}

func TestAddRecord_ShiftPolicyRejectsDuplicate(t *testing.T) {
	// GIVEN: A per-shift ledger with E0001 on 早番 3/10
	l, _ := newLedger(t, ledger.KeyPerShift)
	ctx := context.Background()
	first := mustAdd(t, l, ledger.NewRecord{
		Date: day(2025, 3, 10), Shift: "早番", EmployeeID: "E0001", Points: pts(3),
	})

	// WHEN: The same key is written again
	_, err := l.AddRecord(ctx, ledger.NewRecord{
		Date: day(2025, 3, 10), Shift: "早番", EmployeeID: "E0001", Points: pts(8),
	})

	// THEN: It fails and the first record is unchanged
	var dup *ledger.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)

	all := allRecords(t, l)
	require.Len(t, all, 1)
	assert.Equal(t, first, all[0])

	// AND: Another shift on the same day is a different key
	_, err = l.AddRecord(ctx, ledger.NewRecord{
		Date: day(2025, 3, 10), Shift: "遅番", EmployeeID: "E0001", Points: pts(2),
	})
	assert.NoError(t, err)
}

func TestAddRecord_ShiftPolicyRequiresKnownShift(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyPerShift)
	ctx := context.Background()

	_, err := l.AddRecord(ctx, ledger.NewRecord{Date: day(2025, 3, 10), EmployeeID: "E0001", Points: pts(1)})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.AddRecord(ctx, ledger.NewRecord{Date: day(2025, 3, 10), Shift: "夜勤", EmployeeID: "E0001", Points: pts(1)})
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "shift", verr.Field)
}

// =============================================================================
// QUERY RANGE
// =============================================================================

func TestQueryRange_HalfOpen(t *testing.T) {
	// GIVEN: Records on 2/28, 3/1, 3/31 and 4/1
	l, _ := newLedger(t, ledger.KeyDaily)
	for _, d := range []ledger.Date{day(2025, 2, 28), day(2025, 3, 1), day(2025, 3, 31), day(2025, 4, 1)} {
		mustAdd(t, l, ledger.NewRecord{Date: d, EmployeeID: "E0001", Points: pts(1)})
	}

	// WHEN: March is queried
	rs, err := l.QueryRange(context.Background(), ledger.MonthRange(ledger.YearMonth{Year: 2025, Month: time.March}))

	// THEN: The start is included and the end excluded
	require.NoError(t, err)
	var dates []string
	for _, r := range rs {
		dates = append(dates, r.Date.String())
	}
	assert.ElementsMatch(t, []string{"2025-03-01", "2025-03-31"}, dates)
}

func TestQueryRange_InvertedIsEmpty(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyDaily)
	mustAdd(t, l, ledger.NewRecord{Date: day(2025, 3, 5), EmployeeID: "E0001", Points: pts(1)})

	rs, err := l.QueryRange(context.Background(), ledger.Period{Start: day(2025, 3, 10), End: day(2025, 3, 1)})

	require.NoError(t, err)
	assert.Empty(t, rs)
}

// =============================================================================
// UPDATE / DELETE
// =============================================================================

func TestUpdateRecord(t *testing.T) {
	// GIVEN: One record
	l, _ := newLedger(t, ledger.KeyDaily)
	ctx := context.Background()
	rec := mustAdd(t, l, ledger.NewRecord{Date: day(2025, 3, 10), EmployeeID: "E0001", Points: pts(3)})

	// WHEN: An admin edits every field
	updated, err := l.UpdateRecord(ctx, admin(), rec.ID, ledger.RecordEdit{
		Date: day(2025, 3, 11), EmployeeID: "E0002", Team: "Z", Points: pts(5), Memo: "修正",
	})

	// THEN: The stored record follows the edit, team included
	require.NoError(t, err)
	got, err := l.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
	assert.Equal(t, "Z", got.Team)
	assert.Equal(t, "2025-03-11", got.Date.String())
}

func TestUpdateRecord_LockedSourceOrDestination(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyDaily)
	ctx := context.Background()
	march := mustAdd(t, l, ledger.NewRecord{Date: day(2025, 3, 10), EmployeeID: "E0001", Points: pts(3)})
	require.NoError(t, l.Lock(ctx, admin(), day(2025, 2, 1)))

	// Moving an open record into a locked month fails
	_, err := l.UpdateRecord(ctx, admin(), march.ID, ledger.RecordEdit{
		Date: day(2025, 2, 10), EmployeeID: "E0001", Team: "A", Points: pts(3),
	})
	var locked *ledger.LockedPeriodError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, "2025-02", locked.Month.String())

	// Editing a record of a locked month fails
	require.NoError(t, l.Lock(ctx, admin(), day(2025, 3, 1)))
	_, err = l.UpdateRecord(ctx, admin(), march.ID, ledger.RecordEdit{
		Date: day(2025, 3, 10), EmployeeID: "E0001", Team: "A", Points: pts(4),
	})
	assert.ErrorIs(t, err, ledger.ErrLockedPeriod)

	got, err := l.GetRecord(ctx, march.ID)
	require.NoError(t, err)
	assert.Equal(t, march, got)
}

func TestUpdateRecord_RequiresAdmin(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyDaily)
	rec := mustAdd(t, l, ledger.NewRecord{Date: day(2025, 3, 10), EmployeeID: "E0001", Points: pts(3)})
	edit := ledger.RecordEdit{Date: day(2025, 3, 10), EmployeeID: "E0001", Team: "A", Points: pts(1)}

	for name, c := range map[string]ledger.Capability{
		"none":    {},
		"viewer":  viewer(),
		"expired": {Subject: "admin", Role: ledger.RoleAdmin, ExpiresAt: now.Add(-time.Second)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := l.UpdateRecord(context.Background(), c, rec.ID, edit)
			assert.ErrorIs(t, err, ledger.ErrUnauthorized)
		})
	}
}

func TestDeleteRecord(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyDaily)
	ctx := context.Background()
	rec := mustAdd(t, l, ledger.NewRecord{Date: day(2025, 3, 10), EmployeeID: "E0001", Points: pts(3)})

	require.NoError(t, l.DeleteRecord(ctx, admin(), rec.ID))
	assert.Empty(t, allRecords(t, l))

	err := l.DeleteRecord(ctx, admin(), rec.ID)
	assert.True(t, ledger.IsNotFound(err))
}

func TestDeleteRecord_Locked(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyDaily)
	ctx := context.Background()
	rec := mustAdd(t, l, ledger.NewRecord{Date: day(2025, 3, 10), EmployeeID: "E0001", Points: pts(3)})
	require.NoError(t, l.Lock(ctx, admin(), rec.Date))

	err := l.DeleteRecord(ctx, admin(), rec.ID)

	assert.ErrorIs(t, err, ledger.ErrLockedPeriod)
	assert.Len(t, allRecords(t, l), 1)
}

// =============================================================================
// LOCKS
// =============================================================================

func TestLockUnlock_RoundTripIsNoOp(t *testing.T) {
	// GIVEN: Records in March
	l, _ := newLedger(t, ledger.KeyDaily)
	ctx := context.Background()
	mustAdd(t, l, ledger.NewRecord{Date: day(2025, 3, 10), EmployeeID: "E0001", Points: pts(3)})
	before := allRecords(t, l)

	// WHEN: March is locked twice, then unlocked twice
	require.NoError(t, l.Lock(ctx, admin(), day(2025, 3, 1)))
	require.NoError(t, l.Lock(ctx, admin(), day(2025, 3, 31)))
	locked, err := l.IsLocked(ctx, day(2025, 3, 15))
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, l.Unlock(ctx, admin(), day(2025, 3, 1)))
	require.NoError(t, l.Unlock(ctx, admin(), day(2025, 3, 1)))

	// THEN: The month is open and no record was touched
	locked, err = l.IsLocked(ctx, day(2025, 3, 15))
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Equal(t, before, allRecords(t, l))
}

func TestLocks_SortedAndAdminOnly(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyDaily)
	ctx := context.Background()

	err := l.Lock(ctx, viewer(), day(2025, 1, 1))
	assert.True(t, errors.Is(err, ledger.ErrUnauthorized))

	for _, d := range []ledger.Date{day(2025, 5, 1), day(2024, 12, 3), day(2025, 1, 9)} {
		require.NoError(t, l.Lock(ctx, admin(), d))
	}

	months, err := l.Locks(ctx)
	require.NoError(t, err)
	var got []string
	for _, ym := range months {
		got = append(got, ym.String())
	}
	assert.Equal(t, []string{"2024-12", "2025-01", "2025-05"}, got)
}
