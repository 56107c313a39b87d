package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"iesb-saude-portal/internal/db"
	"iesb-saude-portal/internal/model"
)

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: conn,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func newSQLiteStore(t *testing.T) Store {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return NewGormStore(gormDB)
}

func TestSessions_RoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)

	sess := &model.Session{
		ID:        "5f0c6d1e-2d8b-4d55-9a77-8f2f7d1b0c11",
		UserID:    10,
		Role:      "patient",
		Name:      "Ana",
		Email:     "ana@iesb.edu.br",
		Token:     "tok-1",
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.UserID)
	assert.Equal(t, "tok-1", got.Token)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))

	require.NoError(t, s.UpdateSessionToken(ctx, sess.ID, "tok-2", now.Add(2*time.Hour)))
	got, err = s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.Token)

	assert.ErrorIs(t, s.UpdateSessionToken(ctx, "missing", "x", now), ErrNotFound)

	require.NoError(t, s.DeleteSession(ctx, sess.ID))
	_, err = s.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteExpiredSessions(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)

	for i, exp := range []time.Time{now.Add(-time.Minute), now, now.Add(time.Minute)} {
		require.NoError(t, s.CreateSession(ctx, &model.Session{
			ID:        string(rune('a' + i)),
			UserID:    int64(i + 1),
			Role:      "patient",
			Token:     "tok",
			ExpiresAt: exp,
		}))
	}

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.GetSession(ctx, "c")
	assert.NoError(t, err)
}

func TestSubscriptions(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	subs := []model.PushSubscription{
		{Endpoint: "https://push.example/a", UserID: 10, Role: "patient", P256DH: "p", Auth: "a"},
		{Endpoint: "https://push.example/b", UserID: 1, Role: "manager", P256DH: "p", Auth: "a"},
		{Endpoint: "https://push.example/c", UserID: 2, Role: "manager", P256DH: "p", Auth: "a"},
	}
	for _, sub := range subs {
		require.NoError(t, s.UpsertSubscription(ctx, sub))
	}

	managers, err := s.SubscriptionsFor(ctx, 0, "manager")
	require.NoError(t, err)
	assert.Len(t, managers, 2)

	one, err := s.SubscriptionsFor(ctx, 10, "patient")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "https://push.example/a", one[0].Endpoint)

	// The same browser endpoint signing in as someone else moves over.
	require.NoError(t, s.UpsertSubscription(ctx, model.PushSubscription{
		Endpoint: "https://push.example/a", UserID: 11, Role: "patient", P256DH: "p2", Auth: "a2",
	}))
	_, err = s.GetSubscription(ctx, 10, "https://push.example/a")
	assert.ErrorIs(t, err, ErrNotFound)
	moved, err := s.GetSubscription(ctx, 11, "https://push.example/a")
	require.NoError(t, err)
	assert.Equal(t, "p2", moved.P256DH)

	assert.ErrorIs(t, s.DeleteSubscription(ctx, 10, "https://push.example/a"), ErrNotFound)
	require.NoError(t, s.DeleteSubscription(ctx, 11, "https://push.example/a"))
	require.NoError(t, s.DeleteSubscriptionByEndpoint(ctx, "https://push.example/b"))

	managers, err = s.SubscriptionsFor(ctx, 0, "manager")
	require.NoError(t, err)
	assert.Len(t, managers, 1)
}

func TestGormStore_PostgresSQL(t *testing.T) {
	testCases := []struct {
		name             string
		run              func(s Store) error
		mockExpectations func(mock sqlmock.Sqlmock)
	}{
		{
			name: "upsert subscription uses ON CONFLICT on endpoint",
			run: func(s Store) error {
				return s.UpsertSubscription(context.Background(), model.PushSubscription{
					Endpoint: "https://push.example/a", UserID: 10, Role: "patient", P256DH: "p", Auth: "a",
				})
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO "push_subscriptions" .* ON CONFLICT \("endpoint"\) DO UPDATE SET`).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "expired sessions are deleted by expiry",
			run: func(s Store) error {
				_, err := s.DeleteExpiredSessions(context.Background(), time.Now())
				return err
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "sessions" WHERE expires_at <= $1`)).
					WithArgs(sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 3))
				mock.ExpectCommit()
			},
		},
		{
			name: "manager broadcast filters by role only",
			run: func(s Store) error {
				_, err := s.SubscriptionsFor(context.Background(), 0, "manager")
				return err
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "push_subscriptions" WHERE role = $1 ORDER BY created_at`)).
					WithArgs("manager").
					WillReturnRows(sqlmock.NewRows([]string{"endpoint", "user_id", "role"}))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newMockDB(t)
			tc.mockExpectations(mock)

			require.NoError(t, tc.run(NewGormStore(gormDB)))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
