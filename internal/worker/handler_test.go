package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/offspring2k5/neveralone/internal/domain"
	"github.com/offspring2k5/neveralone/internal/repository/mocks"
	"github.com/offspring2k5/neveralone/internal/tasks"
	"github.com/offspring2k5/neveralone/internal/worker"
)

func TestPointLedgerHandler_ProcessTask(t *testing.T) {
	mockLedgerRepo := new(mocks.LedgerRepository)
	handler := worker.NewPointLedgerHandler(mockLedgerRepo)
	ctx := context.Background()

	entry := domain.PointLedgerEntry{
		UserID:    1,
		RoomID:    "room-1",
		Delta:     10,
		Reason:    domain.PointReasonTaskComplete,
		AwardedAt: time.Now().Truncate(time.Second),
	}
	payload, err := tasks.NewPointLedgerTask(entry)
	require.NoError(t, err)

	mockLedgerRepo.On("Save", ctx, mock.MatchedBy(func(saved *domain.PointLedgerEntry) bool {
		return saved.UserID == entry.UserID &&
			saved.RoomID == entry.RoomID &&
			saved.Delta == entry.Delta &&
			saved.Reason == entry.Reason
	})).Return(nil).Once()

	err = handler.ProcessTask(ctx, asynq.NewTask(tasks.TypePointLedger, payload))

	assert.NoError(t, err)
	mockLedgerRepo.AssertExpectations(t)
}

func TestPointLedgerHandler_MalformedPayloadSkipsRetry(t *testing.T) {
	handler := worker.NewPointLedgerHandler(new(mocks.LedgerRepository))

	err := handler.ProcessTask(context.Background(), asynq.NewTask(tasks.TypePointLedger, []byte("{not json")))

	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry), "坏负载重试也救不回来，应跳过重试")
}

func TestPointLedgerHandler_SaveFailureIsRetryable(t *testing.T) {
	mockLedgerRepo := new(mocks.LedgerRepository)
	handler := worker.NewPointLedgerHandler(mockLedgerRepo)
	ctx := context.Background()

	payload, err := tasks.NewPointLedgerTask(domain.PointLedgerEntry{UserID: 1, Delta: 10})
	require.NoError(t, err)

	mockLedgerRepo.On("Save", ctx, mock.AnythingOfType("*domain.PointLedgerEntry")).
		Return(errors.New("db down")).Once()

	err = handler.ProcessTask(ctx, asynq.NewTask(tasks.TypePointLedger, payload))

	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "数据库故障应保留重试机会")
}

func TestSweepCodesHandler_ProcessTask(t *testing.T) {
	mockSessionRepo := new(mocks.SessionRepository)
	handler := worker.NewSweepCodesHandler(mockSessionRepo)
	ctx := context.Background()

	mockSessionRepo.On("SweepDanglingCodes", ctx).Return(3, nil).Once()

	payload, err := tasks.NewSweepCodesTask()
	require.NoError(t, err)

	err = handler.ProcessTask(ctx, asynq.NewTask(tasks.TypeSweepCodes, payload))

	assert.NoError(t, err)
	mockSessionRepo.AssertExpectations(t)
}
