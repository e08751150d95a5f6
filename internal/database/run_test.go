package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockExecer struct {
	mock.Mock
}

func (m *MockExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	called := m.Called(ctx, sql, args)
	return pgconn.NewCommandTag(called.String(0)), called.Error(1)
}

func TestRunRepository_EnsureSchema(t *testing.T) {
	db := new(MockExecer)
	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "CREATE TABLE IF NOT EXISTS scrape_runs")
	}), mock.Anything).Return("CREATE TABLE", nil)

	require.NoError(t, NewRunRepository(db).EnsureSchema(context.Background()))
	db.AssertExpectations(t)
}

func TestRunRepository_Insert(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("succeeded run", func(t *testing.T) {
		db := new(MockExecer)
		var args []any
		db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
			return strings.Contains(sql, "INSERT INTO scrape_runs")
		}), mock.Anything).Run(func(a mock.Arguments) {
			args = a.Get(2).([]any)
		}).Return("INSERT 0 1", nil)

		run := &Run{
			URL:          "https://shop.test/reviews",
			Domain:       "shop.test",
			Status:       RunSucceeded,
			ReviewsCount: 12,
			Pages:        3,
			StopReason:   "no_next_page",
			StartedAt:    started,
			Duration:     2500 * time.Millisecond,
		}
		require.NoError(t, NewRunRepository(db).Insert(context.Background(), run))

		assert.NotEqual(t, uuid.Nil, run.ID)
		require.Len(t, args, 10)
		assert.Equal(t, run.ID, args[0])
		assert.Equal(t, "succeeded", args[3])
		assert.Equal(t, 12, args[4])
		assert.Equal(t, "no_next_page", *args[6].(*string))
		assert.Nil(t, args[7])
		assert.Equal(t, int64(2500), args[9])
	})

	t.Run("keeps existing id", func(t *testing.T) {
		db := new(MockExecer)
		db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return("INSERT 0 1", nil)

		id := uuid.New()
		run := &Run{ID: id, Status: RunFailed, ErrorMessage: "boom", StartedAt: started}
		require.NoError(t, NewRunRepository(db).Insert(context.Background(), run))
		assert.Equal(t, id, run.ID)
	})

	t.Run("exec error is wrapped", func(t *testing.T) {
		db := new(MockExecer)
		db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

		err := NewRunRepository(db).Insert(context.Background(), &Run{StartedAt: started})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert run")
	})
}
