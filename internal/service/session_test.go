package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/offspring2k5/neveralone/internal/domain"
	"github.com/offspring2k5/neveralone/internal/repository"
	"github.com/offspring2k5/neveralone/internal/repository/mocks"
	"github.com/offspring2k5/neveralone/internal/service"
)

func newSessionService(t *testing.T) (*service.SessionService, *mocks.SessionRepository, *mocks.UserRepository) {
	t.Helper()
	mockSessionRepo := new(mocks.SessionRepository)
	mockUserRepo := new(mocks.UserRepository)
	// asynq client 为 nil：测试中不验证流水入队，计分只打到 UserRepository
	svc := service.NewSessionService(mockSessionRepo, mockUserRepo, nil)
	return svc, mockSessionRepo, mockUserRepo
}

func userInDb(id uint, name string, points int) *domain.User {
	return &domain.User{ID: id, Username: name, Points: points}
}

func roomWith(t *testing.T, cfg domain.RoomConfig, host domain.Profile) *domain.Room {
	t.Helper()
	room, err := domain.NewRoom(host, cfg)
	require.NoError(t, err)
	return room
}

// --- CreateRoom / JoinRoom ---

func TestSessionService_CreateRoom_Success(t *testing.T) {
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	mockUserRepo.On("FindByID", ctx, uint(1)).Return(userInDb(1, "alice", 120), nil).Once()
	mockSessionRepo.On("SaveRoom", ctx, mock.AnythingOfType("*domain.Room")).Return(nil).Once()

	room, err := svc.CreateRoom(ctx, 1, domain.RoomConfig{
		Theme:         "theme_forest",
		TimerDuration: 50,
	})

	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, "theme_forest", room.Settings().Theme())
	assert.Equal(t, 50, room.TimerDuration())
	assert.Equal(t, uint(1), room.HostID())
	assert.False(t, svc.HasPendingCompletion(room.RoomID()), "未开计时器不应挂完成回调")

	mockSessionRepo.AssertExpectations(t)
	mockUserRepo.AssertExpectations(t)
}

func TestSessionService_CreateRoom_AutoStartSchedulesCompletion(t *testing.T) {
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	mockUserRepo.On("FindByID", ctx, uint(1)).Return(userInDb(1, "alice", 0), nil).Once()
	mockSessionRepo.On("SaveRoom", ctx, mock.AnythingOfType("*domain.Room")).Return(nil).Once()

	room, err := svc.CreateRoom(ctx, 1, domain.RoomConfig{AutoStartTimer: true})

	require.NoError(t, err)
	assert.True(t, room.TimerRunning())
	assert.True(t, svc.HasPendingCompletion(room.RoomID()), "autoStart 应立即挂完成回调")
}

func TestSessionService_CreateRoom_UnknownHost(t *testing.T) {
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	mockUserRepo.On("FindByID", ctx, uint(9)).Return(nil, repository.ErrUserNotFound).Once()

	_, err := svc.CreateRoom(ctx, 9, domain.RoomConfig{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrUserNotFound))
	mockSessionRepo.AssertNotCalled(t, "SaveRoom", mock.Anything, mock.Anything)
}

func TestSessionService_JoinRoom_Success(t *testing.T) {
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice"})
	mockSessionRepo.On("ResolveCode", ctx, room.RoomCode()).Return(room.RoomID(), nil).Once()
	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()
	mockUserRepo.On("FindByID", ctx, uint(2)).Return(userInDb(2, "bob", 30), nil).Once()
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil).Once()

	joined, err := svc.JoinRoom(ctx, 2, room.RoomCode(), "Reading")

	require.NoError(t, err)
	require.NotNil(t, joined.Participant(2))
	assert.Equal(t, "Reading", joined.Participant(2).CurrentTask)
	assert.Equal(t, 30, joined.Participant(2).Points)
	mockSessionRepo.AssertExpectations(t)
}

func TestSessionService_JoinRoom_InvalidCode(t *testing.T) {
	svc, mockSessionRepo, _ := newSessionService(t)
	ctx := context.Background()

	mockSessionRepo.On("ResolveCode", ctx, "ZZZZZZ").Return("", repository.ErrCodeNotFound).Once()

	_, err := svc.JoinRoom(ctx, 2, "ZZZZZZ", "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidRoomCode))
}

func TestSessionService_JoinRoom_ExpiredRoomBehindCode(t *testing.T) {
	// 分享码索引还在、主记录已过期：同样按无效分享码处理
	svc, mockSessionRepo, _ := newSessionService(t)
	ctx := context.Background()

	mockSessionRepo.On("ResolveCode", ctx, "ABC123").Return("room-gone", nil).Once()
	mockSessionRepo.On("GetRoom", ctx, "room-gone").Return(nil, repository.ErrRoomNotFound).Once()

	_, err := svc.JoinRoom(ctx, 2, "ABC123", "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidRoomCode))
}

func TestSessionService_JoinRoom_Full(t *testing.T) {
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{MaxUsers: 1}, domain.Profile{UserID: 1, Username: "alice"})
	mockSessionRepo.On("ResolveCode", ctx, room.RoomCode()).Return(room.RoomID(), nil).Once()
	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()

	_, err := svc.JoinRoom(ctx, 2, room.RoomCode(), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomFull))
	mockUserRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	mockSessionRepo.AssertNotCalled(t, "SaveRoom", mock.Anything, mock.Anything)
}

func TestSessionService_JoinRoom_RejoinWhenFullIsIdempotent(t *testing.T) {
	// 已在场的用户重连时房间可能正好满员，幂等重加入不应被容量检查拦下
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{MaxUsers: 1}, domain.Profile{UserID: 1, Username: "alice"})
	mockSessionRepo.On("ResolveCode", ctx, room.RoomCode()).Return(room.RoomID(), nil).Once()
	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()
	mockUserRepo.On("FindByID", ctx, uint(1)).Return(userInDb(1, "alice", 0), nil).Once()
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil).Once()

	joined, err := svc.JoinRoom(ctx, 1, room.RoomCode(), "")

	require.NoError(t, err)
	assert.Len(t, joined.Participants(), 1)
}

// --- 离开与踢人 ---

func TestSessionService_RemoveUser_EarlyLeavePenalty(t *testing.T) {
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice"})
	room.AddParticipant(domain.Profile{UserID: 2, Username: "bob"}, "")
	require.NoError(t, room.StartTimer())

	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()
	mockUserRepo.On("AdjustPoints", ctx, uint(2), -20).Return(0, nil).Once()
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil).Once()

	updated, err := svc.RemoveUser(ctx, room.RoomID(), 2)

	require.NoError(t, err)
	assert.Nil(t, updated.Participant(2))
	mockUserRepo.AssertExpectations(t)
}

func TestSessionService_RemoveUser_NoPenaltyWhenIdle(t *testing.T) {
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice"})
	room.AddParticipant(domain.Profile{UserID: 2, Username: "bob"}, "")

	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil).Once()

	_, err := svc.RemoveUser(ctx, room.RoomID(), 2)

	require.NoError(t, err)
	mockUserRepo.AssertNotCalled(t, "AdjustPoints", mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionService_RemoveUser_HostLeavesPromotesNext(t *testing.T) {
	svc, mockSessionRepo, _ := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice"})
	room.AddParticipant(domain.Profile{UserID: 2, Username: "bob"}, "")

	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil).Once()

	updated, err := svc.RemoveUser(ctx, room.RoomID(), 1)

	require.NoError(t, err)
	assert.Equal(t, uint(2), updated.HostID())
}

func TestSessionService_KickUser_OnlyHost(t *testing.T) {
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice"})
	room.AddParticipant(domain.Profile{UserID: 2, Username: "bob"}, "")
	room.AddParticipant(domain.Profile{UserID: 3, Username: "carol"}, "")

	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()

	_, err := svc.KickUser(ctx, room.RoomID(), 2, 3)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrNotHost))
	assert.NotNil(t, room.Participant(3), "越权踢人不应产生任何变更")
	mockSessionRepo.AssertNotCalled(t, "SaveRoom", mock.Anything, mock.Anything)

	// 被踢不是主动离场，不吃提前离场扣分
	require.NoError(t, room.StartTimer())
	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil).Once()

	updated, err := svc.KickUser(ctx, room.RoomID(), 1, 3)
	require.NoError(t, err)
	assert.Nil(t, updated.Participant(3))
	mockUserRepo.AssertNotCalled(t, "AdjustPoints", mock.Anything, mock.Anything, mock.Anything)
}

// --- 位置 ---

func TestSessionService_MoveAvatar(t *testing.T) {
	svc, mockSessionRepo, _ := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice"})
	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil).Once()

	updated, err := svc.MoveAvatar(ctx, room.RoomID(), 1, 33, 44)

	require.NoError(t, err)
	assert.Equal(t, 33.0, updated.Participant(1).X)
	assert.Equal(t, 44.0, updated.Participant(1).Y)
}

func TestSessionService_MoveAvatar_MissingRoomIsSoftNoop(t *testing.T) {
	// 拖拽事件撞上过期房间引用时保持安静，不返回错误
	svc, mockSessionRepo, _ := newSessionService(t)
	ctx := context.Background()

	mockSessionRepo.On("GetRoom", ctx, "gone").Return(nil, repository.ErrRoomNotFound).Once()

	room, err := svc.MoveAvatar(ctx, "gone", 1, 10, 10)

	assert.NoError(t, err)
	assert.Nil(t, room)
	mockSessionRepo.AssertNotCalled(t, "SaveRoom", mock.Anything, mock.Anything)
}

// --- 计时器与完成回调 ---

func TestSessionService_TimerStartStop_SchedulesAndCancels(t *testing.T) {
	svc, mockSessionRepo, _ := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{TimerDuration: 25}, domain.Profile{UserID: 1, Username: "alice"})
	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil)
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil)

	_, err := svc.StartTimer(ctx, room.RoomID(), 1)
	require.NoError(t, err)
	assert.True(t, room.TimerRunning())
	assert.True(t, svc.HasPendingCompletion(room.RoomID()), "启动后应有待触发的完成回调")

	// 重复启动报错，回调保持原样
	_, err = svc.StartTimer(ctx, room.RoomID(), 1)
	assert.True(t, errors.Is(err, service.ErrTimerAlreadyRunning))
	assert.True(t, svc.HasPendingCompletion(room.RoomID()))

	_, segment, err := svc.StopTimer(ctx, room.RoomID())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, segment, int64(0))
	assert.False(t, room.TimerRunning())
	assert.False(t, svc.HasPendingCompletion(room.RoomID()), "停止应取消完成回调")

	// Idle 下停止报错
	_, _, err = svc.StopTimer(ctx, room.RoomID())
	assert.True(t, errors.Is(err, service.ErrTimerNotRunning))
}

func TestSessionService_ResetTimer_CancelsCompletion(t *testing.T) {
	svc, mockSessionRepo, _ := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice"})
	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil)
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil)

	_, err := svc.StartTimer(ctx, room.RoomID(), 1)
	require.NoError(t, err)

	_, err = svc.ResetTimer(ctx, room.RoomID())
	require.NoError(t, err)
	assert.False(t, room.TimerRunning())
	assert.Zero(t, room.ElapsedTime())
	assert.False(t, svc.HasPendingCompletion(room.RoomID()))
}

func TestSessionService_UpdateSettings_ForcesIdleAndCancels(t *testing.T) {
	svc, mockSessionRepo, _ := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice"})
	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil)
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil)

	_, err := svc.StartTimer(ctx, room.RoomID(), 1)
	require.NoError(t, err)

	updated, err := svc.UpdateSettings(ctx, room.RoomID(), 50)
	require.NoError(t, err)
	assert.Equal(t, 50, updated.TimerDuration())
	assert.False(t, updated.TimerRunning(), "改时长应把运行中的计时器强制回 Idle")
	assert.False(t, svc.HasPendingCompletion(room.RoomID()))
}

// --- 任务与计分 ---

func TestSessionService_CompleteTask_AwardsOwnerExactlyOnce(t *testing.T) {
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice", Points: 120})
	task := room.AddTask(1, "Finish report")

	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()
	mockUserRepo.On("AdjustPoints", ctx, uint(1), 10).Return(130, nil).Once()
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil).Once()

	updated, err := svc.CompleteTask(ctx, room.RoomID(), task.ID)

	require.NoError(t, err)
	assert.Empty(t, updated.Tasks())
	assert.Equal(t, 130, updated.Participant(1).Points, "房间内积分也应 +10")
	mockUserRepo.AssertExpectations(t)
	mockUserRepo.AssertNumberOfCalls(t, "AdjustPoints", 1)
}

func TestSessionService_CompleteTask_UnknownTaskNoAward(t *testing.T) {
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice"})
	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil).Once()

	_, err := svc.CompleteTask(ctx, room.RoomID(), "no-such-task")

	assert.NoError(t, err, "未知任务不报错")
	mockUserRepo.AssertNotCalled(t, "AdjustPoints", mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionService_CompleteTask_BalanceFailureDoesNotBlockRoomUpdate(t *testing.T) {
	// 计分是尽力而为：余额调整失败只记日志，任务照常销毁
	svc, mockSessionRepo, mockUserRepo := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice"})
	task := room.AddTask(1, "Flaky task")

	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil).Once()
	mockUserRepo.On("AdjustPoints", ctx, uint(1), 10).Return(0, errors.New("db down")).Once()
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil).Once()

	updated, err := svc.CompleteTask(ctx, room.RoomID(), task.ID)

	require.NoError(t, err)
	assert.Empty(t, updated.Tasks())
}

func TestSessionService_CreateAndMoveTask(t *testing.T) {
	svc, mockSessionRepo, _ := newSessionService(t)
	ctx := context.Background()

	room := roomWith(t, domain.RoomConfig{}, domain.Profile{UserID: 1, Username: "alice"})
	mockSessionRepo.On("GetRoom", ctx, room.RoomID()).Return(room, nil)
	mockSessionRepo.On("SaveRoom", ctx, room).Return(nil)

	_, task, err := svc.CreateTask(ctx, room.RoomID(), 1, "Write tests")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "Write tests", task.Text)

	updated, err := svc.MoveTask(ctx, room.RoomID(), task.ID, 60, 65)
	require.NoError(t, err)
	assert.Equal(t, 60.0, updated.Tasks()[0].X)
	assert.Equal(t, 65.0, updated.Tasks()[0].Y)
}

// --- 仓库故障的错误映射 ---

func TestSessionService_GetRoom_ErrorMapping(t *testing.T) {
	svc, mockSessionRepo, _ := newSessionService(t)
	ctx := context.Background()

	mockSessionRepo.On("GetRoom", ctx, "missing").Return(nil, repository.ErrRoomNotFound).Once()
	_, err := svc.GetRoom(ctx, "missing")
	assert.True(t, errors.Is(err, service.ErrRoomNotFound))

	mockSessionRepo.On("GetRoom", ctx, "broken").Return(nil, errors.New("redis down")).Once()
	_, err = svc.GetRoom(ctx, "broken")
	assert.True(t, errors.Is(err, service.ErrInternalServer))
}
