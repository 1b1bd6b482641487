package biz

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"JobGuard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSendLogRepo is a mock implementation of SendLogRepo for testing.
type MockSendLogRepo struct {
	mock.Mock
}

func (m *MockSendLogRepo) CountSuccessfulSince(ctx context.Context, since time.Time) (int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(int64), args.Error(1)
}

// Helper function to create a test quota tracker
func newTestQuotaTracker(repo SendLogRepo, limit int32) *QuotaTrackerUseCase {
	logger := log.NewStdLogger(os.Stdout)
	c := &conf.Guard{Quota: &conf.Guard_Quota{
		Limit:    limit,
		Window:   durationOf(24 * time.Hour),
		CacheTtl: durationOf(time.Minute),
	}}
	return NewQuotaTrackerUseCase(c, repo, NewNoopGuardEventLogger(), logger)
}

// Test GetUsage - partial usage
func TestGetUsage(t *testing.T) {
	mockRepo := new(MockSendLogRepo)
	uc := newTestQuotaTracker(mockRepo, 20)
	ctx := context.Background()

	mockRepo.On("CountSuccessfulSince", ctx, mock.AnythingOfType("time.Time")).Return(int64(15), nil)

	usage, err := uc.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, usage.Limit)
	assert.Equal(t, 15, usage.SentInWindow)
	assert.Equal(t, 5, usage.Remaining)
	assert.Equal(t, 24*time.Hour, usage.Window)
	mockRepo.AssertExpectations(t)
}

// Test GetUsage - exactly at the limit
func TestGetUsage_AtLimit(t *testing.T) {
	mockRepo := new(MockSendLogRepo)
	uc := newTestQuotaTracker(mockRepo, 20)
	ctx := context.Background()

	mockRepo.On("CountSuccessfulSince", ctx, mock.AnythingOfType("time.Time")).Return(int64(20), nil)

	usage, err := uc.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Remaining)
}

// Test GetUsage - over the limit never goes negative
func TestGetUsage_OverLimitClamped(t *testing.T) {
	mockRepo := new(MockSendLogRepo)
	uc := newTestQuotaTracker(mockRepo, 20)
	ctx := context.Background()

	mockRepo.On("CountSuccessfulSince", ctx, mock.AnythingOfType("time.Time")).Return(int64(25), nil)

	usage, err := uc.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, usage.SentInWindow)
	assert.Equal(t, 0, usage.Remaining)
}

// Test GetUsage - empty window gives the full allowance
func TestGetUsage_EmptyWindow(t *testing.T) {
	mockRepo := new(MockSendLogRepo)
	uc := newTestQuotaTracker(mockRepo, 20)
	ctx := context.Background()

	mockRepo.On("CountSuccessfulSince", ctx, mock.AnythingOfType("time.Time")).Return(int64(0), nil)

	usage, err := uc.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, usage.Remaining)
}

// Test GetUsage - send log read errors propagate
func TestGetUsage_RepoErrorPropagates(t *testing.T) {
	mockRepo := new(MockSendLogRepo)
	uc := newTestQuotaTracker(mockRepo, 20)
	ctx := context.Background()

	repoErr := errors.New("database gone")
	mockRepo.On("CountSuccessfulSince", ctx, mock.AnythingOfType("time.Time")).Return(int64(0), repoErr)

	_, err := uc.GetUsage(ctx)
	assert.ErrorIs(t, err, repoErr)

	// An unreadable log must also block the allowance check.
	err = uc.CheckAllowance(ctx)
	assert.ErrorIs(t, err, repoErr)
}

// Test GetUsage - repeated reads within the cache TTL hit the log once
func TestGetUsage_Memoized(t *testing.T) {
	mockRepo := new(MockSendLogRepo)
	uc := newTestQuotaTracker(mockRepo, 20)
	ctx := context.Background()

	mockRepo.On("CountSuccessfulSince", ctx, mock.AnythingOfType("time.Time")).Return(int64(3), nil).Once()

	for i := 0; i < 5; i++ {
		usage, err := uc.GetUsage(ctx)
		require.NoError(t, err)
		assert.Equal(t, 17, usage.Remaining)
	}
	mockRepo.AssertExpectations(t)
}

// Test Invalidate - the next read goes back to the send log
func TestQuotaInvalidate(t *testing.T) {
	mockRepo := new(MockSendLogRepo)
	uc := newTestQuotaTracker(mockRepo, 20)
	ctx := context.Background()

	mockRepo.On("CountSuccessfulSince", ctx, mock.AnythingOfType("time.Time")).Return(int64(3), nil).Once()
	mockRepo.On("CountSuccessfulSince", ctx, mock.AnythingOfType("time.Time")).Return(int64(4), nil).Once()

	usage, err := uc.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, usage.SentInWindow)

	uc.Invalidate()

	usage, err = uc.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, usage.SentInWindow)
	mockRepo.AssertExpectations(t)
}

// Test CheckAllowance - allowed while remaining is positive
func TestCheckAllowance_Allowed(t *testing.T) {
	mockRepo := new(MockSendLogRepo)
	uc := newTestQuotaTracker(mockRepo, 20)
	ctx := context.Background()

	mockRepo.On("CountSuccessfulSince", ctx, mock.AnythingOfType("time.Time")).Return(int64(19), nil)

	assert.NoError(t, uc.CheckAllowance(ctx))
}

// Test CheckAllowance - exhausted allowance returns the typed error
func TestCheckAllowance_Exhausted(t *testing.T) {
	mockRepo := new(MockSendLogRepo)
	uc := newTestQuotaTracker(mockRepo, 20)
	ctx := context.Background()

	mockRepo.On("CountSuccessfulSince", ctx, mock.AnythingOfType("time.Time")).Return(int64(20), nil)

	err := uc.CheckAllowance(ctx)
	var quotaErr *QuotaExhaustedError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 20, quotaErr.Usage.SentInWindow)
	assert.Equal(t, 0, quotaErr.Usage.Remaining)
}
