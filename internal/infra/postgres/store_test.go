package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/rewards/internal/domain"
)

var ts = time.Date(2025, 7, 1, 12, 30, 0, 0, time.UTC)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func q(query string) string {
	return regexp.QuoteMeta(query)
}

func TestMigrate(t *testing.T) {
	mock, store := newMock(t)
	for _, m := range migrations {
		mock.ExpectExec(q(m)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Error(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectExec(q(migrations[0])).WillReturnError(errors.New("permission denied"))
	assert.Error(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

var ledgerCols = []string{"id", "user_id", "amount", "type", "source", "description", "timestamp", "metadata"}

func TestSnapshot(t *testing.T) {
	mock, store := newMock(t)
	ctx := context.Background()

	t.Run("stored aggregate and ledger", func(t *testing.T) {
		mock.ExpectBeginTx(snapshotTx)
		mock.ExpectQuery(q(loadQuery)).
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows([]string{"data"}).
				AddRow([]byte(`{"user_id":"u1","total_points":25,"balance":25,"level":1,"version":3}`)))
		mock.ExpectQuery(q(ledgerQuery)).
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows(ledgerCols).
				AddRow("b", "u1", int64(10), "bonus", "achievement", "first habit", ts, []byte(nil)).
				AddRow("a", "u1", int64(15), "earned", "habit", "habit a", ts, []byte(`{"habit":"a"}`)))
		mock.ExpectCommit()

		p, txs, err := store.Snapshot(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(25), p.TotalPoints)
		assert.Equal(t, int64(3), p.Version)
		require.Len(t, txs, 2)
		assert.Equal(t, "b", txs[0].ID)
		assert.Equal(t, domain.TxBonus, txs[0].Type)
		assert.Nil(t, txs[0].Metadata)
		assert.Equal(t, domain.SourceHabit, txs[1].Source)
		assert.Equal(t, "a", txs[1].Metadata["habit"])
		assert.True(t, txs[1].Timestamp.Equal(ts))
	})
	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectBeginTx(snapshotTx)
		mock.ExpectQuery(q(loadQuery)).
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(q(ledgerQuery)).
			WithArgs("ghost").
			WillReturnRows(pgxmock.NewRows(ledgerCols))
		mock.ExpectCommit()

		p, txs, err := store.Snapshot(ctx, "ghost")
		require.NoError(t, err)
		assert.Equal(t, domain.NewUserProgress("ghost"), p)
		assert.Empty(t, txs)
	})
	t.Run("db error rolls back", func(t *testing.T) {
		mock.ExpectBeginTx(snapshotTx)
		mock.ExpectQuery(q(loadQuery)).
			WithArgs("u1").
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, _, err := store.Snapshot(ctx, "u1")
		assert.Error(t, err)
	})
	t.Run("ledger error rolls back", func(t *testing.T) {
		mock.ExpectBeginTx(snapshotTx)
		mock.ExpectQuery(q(loadQuery)).
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte(`{"user_id":"u1","version":1}`)))
		mock.ExpectQuery(q(ledgerQuery)).
			WithArgs("u1").
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, _, err := store.Snapshot(ctx, "u1")
		assert.Error(t, err)
	})
	t.Run("begin fails", func(t *testing.T) {
		mock.ExpectBeginTx(snapshotTx).WillReturnError(errors.New("too many connections"))
		_, _, err := store.Snapshot(ctx, "u1")
		assert.Error(t, err)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave(t *testing.T) {
	mock, store := newMock(t)
	ctx := context.Background()

	p := domain.NewUserProgress("u1")
	p.Version = 1
	p.TotalPoints = 15
	p.Balance = 15
	p.UpdatedAt = ts
	p.Challenges = []domain.ChallengeState{
		{ID: "sprint", Progress: 4, MaxProgress: 10, Started: true},
		{ID: "idle", MaxProgress: 5},
	}
	entry := domain.PointsTransaction{
		ID: "a", UserID: "u1", Amount: 15,
		Type: domain.TxEarned, Source: domain.SourceHabit,
		Description: "habit a", Timestamp: ts,
		Metadata: map[string]string{"habit": "a"},
	}

	expectUpsert := func(affected int64) {
		mock.ExpectExec(q(upsertProgressQuery)).
			WithArgs("u1", int64(1), int64(15), int64(15), 1, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", affected))
	}
	expectLedger := func() *pgxmock.ExpectedExec {
		return mock.ExpectExec(q(insertLedgerQuery)).
			WithArgs("a", "u1", int64(15), "earned", "habit", "habit a", pgxmock.AnyArg(), pgxmock.AnyArg())
	}

	t.Run("success", func(t *testing.T) {
		mock.ExpectBegin()
		expectUpsert(1)
		expectLedger().WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(q(clearChallengesQuery)).
			WithArgs("u1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec(q(insertChallengeQuery)).
			WithArgs("sprint", "u1", 4, false, pgxmock.AnyArg(), 1).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		assert.NoError(t, store.Save(ctx, p, []domain.PointsTransaction{entry}))
	})
	t.Run("version conflict", func(t *testing.T) {
		mock.ExpectBegin()
		expectUpsert(0)
		mock.ExpectRollback()

		err := store.Save(ctx, p, []domain.PointsTransaction{entry})
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})
	t.Run("duplicate entry", func(t *testing.T) {
		mock.ExpectBegin()
		expectUpsert(1)
		expectLedger().WillReturnError(&pgconn.PgError{Code: uniqueViolation})
		mock.ExpectRollback()

		err := store.Save(ctx, p, []domain.PointsTransaction{entry})
		assert.ErrorIs(t, err, domain.ErrInvalidTransaction)
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectBegin()
		expectUpsert(1)
		expectLedger().WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := store.Save(ctx, p, []domain.PointsTransaction{entry})
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrVersionConflict)
	})
	t.Run("begin fails", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
		assert.Error(t, store.Save(ctx, p, nil))
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboard(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectQuery(q(leaderboardQuery)).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "total_points", "level"}).
			AddRow("bob", int64(500), 4).
			AddRow("alice", int64(300), 3))

	board, err := store.Leaderboard(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.LeaderboardEntry{
		{Rank: 1, UserID: "bob", Score: 500, Level: 4},
		{Rank: 2, UserID: "alice", Score: 300, Level: 3},
	}, board)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeLeaderboard(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectQuery(q(participantsQuery)).
		WithArgs("sprint").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(q(challengeBoardQuery)).
		WithArgs("sprint", nil).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "progress", "level"}).
			AddRow("carol", int64(9), 2).
			AddRow("alice", int64(4), 3).
			AddRow("bob", int64(0), 4))

	board, n, err := store.ChallengeLeaderboard(context.Background(), "sprint", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, board, 3)
	assert.Equal(t, "carol", board[0].UserID)
	assert.Equal(t, int64(9), board[0].Score)
	assert.Equal(t, 3, board[2].Rank)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	_, store := newMock(t)
	assert.NoError(t, store.Ping(context.Background()))
}
