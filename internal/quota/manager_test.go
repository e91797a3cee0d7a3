package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) UsedOn(ctx context.Context, t time.Time) (int, int, error) {
	args := m.Called(ctx, t)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *mockRepository) IncrementQuota(ctx context.Context, t time.Time, quotaCost int, operationType string) error {
	args := m.Called(ctx, t, quotaCost, operationType)
	return args.Error(0)
}

var day = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newManager(repo Repository) *Manager {
	m := NewManager(repo, 1000, 90, nil)
	m.now = func() time.Time { return day }
	return m
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(&mockRepository{}, 0, 150, nil)
	assert.Equal(t, DefaultDailyLimit, m.dailyLimit)
	assert.Equal(t, DefaultThresholdPercent, m.thresholdPercent)
}

func TestManager_CheckQuotaAvailable(t *testing.T) {
	tests := []struct {
		name     string
		used     int
		required int
		want     bool
	}{
		{name: "plenty left", used: 100, required: 1, want: true},
		{name: "exactly at threshold", used: 899, required: 1, want: true},
		{name: "would cross threshold", used: 899, required: 2, want: false},
		{name: "already over", used: 950, required: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{}
			repo.On("UsedOn", mock.Anything, day).Return(tt.used, 3, nil)

			ok, info, err := newManager(repo).CheckQuotaAvailable(context.Background(), tt.required)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, 1000-tt.used, info.QuotaRemaining)
		})
	}
}

func TestManager_Spend(t *testing.T) {
	ctx := context.Background()

	t.Run("records cost after call", func(t *testing.T) {
		repo := &mockRepository{}
		repo.On("UsedOn", mock.Anything, day).Return(0, 0, nil)
		repo.On("IncrementQuota", mock.Anything, day, 1, "videos.list").Return(nil)

		called := false
		err := newManager(repo).Spend(ctx, 1, "videos.list", func() error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
		repo.AssertExpectations(t)
	})

	t.Run("failed call is still charged", func(t *testing.T) {
		repo := &mockRepository{}
		repo.On("UsedOn", mock.Anything, day).Return(0, 0, nil)
		repo.On("IncrementQuota", mock.Anything, day, 1, "channels.list").Return(nil)

		boom := errors.New("boom")
		err := newManager(repo).Spend(ctx, 1, "channels.list", func() error { return boom })
		assert.ErrorIs(t, err, boom)
		repo.AssertExpectations(t)
	})

	t.Run("exhausted quota skips the call", func(t *testing.T) {
		repo := &mockRepository{}
		repo.On("UsedOn", mock.Anything, day).Return(900, 10, nil)

		err := newManager(repo).Spend(ctx, 1, "videos.list", func() error {
			t.Fatal("call must not run")
			return nil
		})
		assert.ErrorIs(t, err, ErrExhausted)
		repo.AssertNotCalled(t, "IncrementQuota", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
