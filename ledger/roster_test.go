package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/point-ledger/ledger"
)

// =============================================================================
// ROSTER
// =============================================================================

func TestReplaceRoster_DuplicateIDKeepsPreviousRoster(t *testing.T) {
	// GIVEN: The seeded roster
	l, _ := newLedger(t, ledger.KeyDaily)
	ctx := context.Background()

	// WHEN: A new roster repeats an ID
	_, err := l.ReplaceRoster(ctx, admin(), []ledger.Employee{
		{ID: "E0100", Name: "新人 一郎", Team: "A"},
		{ID: "E0100", Name: "新人 二郎", Team: "B"},
	})

	// THEN: It fails on row 2 and the previous roster is intact
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, verr.Row)
	assert.Equal(t, "id", verr.Field)
	assert.Contains(t, verr.Message, "row 1")

	roster, err := l.Roster(ctx)
	require.NoError(t, err)
	assert.Equal(t, testRoster, roster)
}

func TestReplaceRoster_KeepsRecordTeams(t *testing.T) {
	// GIVEN: A record for E0001 in team A
	l, _ := newLedger(t, ledger.KeyDaily)
	ctx := context.Background()
	rec := mustAdd(t, l, ledger.NewRecord{Date: day(2025, 3, 1), EmployeeID: "E0001", Points: pts(2)})

	// WHEN: E0001 moves to team B
	roster, err := l.ReplaceRoster(ctx, admin(), []ledger.Employee{
		{ID: " E0001 ", Name: "山田 太郎 ", Team: "B"},
		{}, // blank rows are dropped
	})

	// THEN: The roster changes but the record keeps its snapshot
	require.NoError(t, err)
	assert.Equal(t, []ledger.Employee{{ID: "E0001", Name: "山田 太郎", Team: "B"}}, roster)

	got, err := l.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Team)
}

func TestValidateRoster(t *testing.T) {
	tests := []struct {
		name    string
		entries []ledger.Employee
		field   string
		row     int
	}{
		{"missing name", []ledger.Employee{{ID: "E1", Team: "A"}}, "name", 1},
		{"missing team", []ledger.Employee{{ID: "E1", Name: "x"}}, "team", 1},
		{"missing id", []ledger.Employee{{ID: "E1", Name: "x", Team: "A"}, {Name: "y", Team: "A"}}, "id", 2},
		{"duplicate name", []ledger.Employee{{ID: "E1", Name: "x", Team: "A"}, {ID: "E2", Name: " x", Team: "B"}}, "name", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.ValidateRoster(tt.entries)

			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.row, verr.Row)
		})
	}
}

func TestValidateRoster_CaseSensitive(t *testing.T) {
	roster, err := ledger.ValidateRoster([]ledger.Employee{
		{ID: "e1", Name: "x", Team: "A"},
		{ID: "E1", Name: "X", Team: "A"},
	})

	require.NoError(t, err)
	assert.Len(t, roster, 2)
}

func TestAddEmployee_Conflicts(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyDaily)
	ctx := context.Background()

	_, err := l.AddEmployee(ctx, admin(), ledger.Employee{ID: "E0001", Name: "別人", Team: "A"})
	var conflict *ledger.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "id", conflict.Field)

	_, err = l.AddEmployee(ctx, admin(), ledger.Employee{ID: "E0009", Name: "佐藤 花子", Team: "C"})
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "name", conflict.Field)

	e, err := l.AddEmployee(ctx, admin(), ledger.Employee{ID: " E0009 ", Name: "伊藤 五郎", Team: "C"})
	require.NoError(t, err)
	assert.Equal(t, ledger.EmployeeID("E0009"), e.ID)

	found, err := l.LookupEmployee(ctx, "E0009")
	require.NoError(t, err)
	assert.Equal(t, "C", found.Team)
}

func TestAddEmployee_RequiresAdmin(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyDaily)

	_, err := l.AddEmployee(context.Background(), viewer(), ledger.Employee{ID: "E0009", Name: "x", Team: "C"})

	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestLookupEmployee_Unknown(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyDaily)

	_, err := l.LookupEmployee(context.Background(), "nobody")

	assert.ErrorIs(t, err, ledger.ErrUnknownEmployee)
}

// =============================================================================
// SHIFTS & BOOTSTRAP
// =============================================================================

func TestBootstrap_DefaultShiftsAndNoOverwrite(t *testing.T) {
	// GIVEN: A bootstrapped ledger
	l, _ := newLedger(t, ledger.KeyPerShift)
	ctx := context.Background()

	shifts, err := l.Shifts(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, ledger.DefaultShifts, shifts)

	// WHEN: Bootstrap runs again with a different seed
	err = l.Bootstrap(ctx, ledger.Seed{
		Employees: []ledger.Employee{{ID: "X", Name: "x", Team: "X"}},
		Shifts:    []string{"夜勤"},
	})

	// THEN: Nothing is overwritten
	require.NoError(t, err)
	roster, err := l.Roster(ctx)
	require.NoError(t, err)
	assert.Equal(t, testRoster, roster)
	shifts, err = l.Shifts(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, ledger.DefaultShifts, shifts)
}

func TestReplaceShifts(t *testing.T) {
	l, _ := newLedger(t, ledger.KeyPerShift)
	ctx := context.Background()

	shifts, err := l.ReplaceShifts(ctx, admin(), []string{" 夜勤 ", "日勤", "", "夜勤"})
	require.NoError(t, err)
	assert.Equal(t, []string{"夜勤", "日勤"}, ledger.NormalizeShifts(shifts))
	assert.Len(t, shifts, 2)

	_, err = l.ReplaceShifts(ctx, viewer(), []string{"x"})
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}
