package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/offspring2k5/neveralone/internal/domain"
	"github.com/offspring2k5/neveralone/internal/repository"
	"github.com/offspring2k5/neveralone/internal/tasks"
)

// 积分策略（见设计文档；改动需同步前端文案）。
// 余额由用户仓库以 0 为下限钳制，超出下限的负值不报错。
const (
	PointsTaskComplete  = 10
	PointsTimerComplete = 50
	PointsEarlyLeave    = -20
)

// Notifier 是实时扇出的抽象：给定房间标识，把事件多播给该房间的所有
// 连接客户端。由 hub 实现，Service 在每次变更后推送最新状态。
type Notifier interface {
	// RoomUpdated 广播完整的房间快照。
	RoomUpdated(roomID string, snapshot domain.RoomSnapshot)
	// TimerFinished 广播计时器自然结束的独立通知（用于奖励提示）。
	TimerFinished(roomID string, bonus int)
	// UserKicked 广播被踢用户的 userId。
	UserKicked(roomID string, targetUserID uint)
	// TaskCompleted 广播任务完成动画事件。
	TaskCompleted(roomID string, taskID string)
}

// SessionService 负责房间会话的业务逻辑，是 Room 状态唯一的写入方。
// 每个操作都遵循同一个循环：从 Store 取快照 -> 重建 Room -> 调用一个
// 实体变更方法 -> 带刷新 TTL 写回 -> 通过 Notifier 推送新快照。
//
// 并发说明：两个并发操作可能基于同一个过期快照各自计算变更，后写者
// 会悄悄覆盖先写者的效果（lost update）。对本领域（位置、近似计分）
// 这是接受的取舍，不引入跨实例锁；详见 DESIGN.md。
type SessionService struct {
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	asynqClient *asynq.Client // 可为 nil（测试），仅用于异步流水落库
	notifier    Notifier

	// 每个房间最多挂一个待触发的完成回调；进程内状态，重启即丢
	// （会话本就短命，可接受，但要知道这点）。
	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// NewSessionService 创建 SessionService 实例。
// notifier 因为与 hub 相互依赖，由组装方在 hub 建好之后通过 SetNotifier 注入。
func NewSessionService(sessionRepo repository.SessionRepository, userRepo repository.UserRepository, asynqClient *asynq.Client) *SessionService {
	if sessionRepo == nil {
		panic("SessionRepository cannot be nil for SessionService")
	}
	if userRepo == nil {
		panic("UserRepository cannot be nil for SessionService")
	}
	return &SessionService{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		asynqClient: asynqClient,
		timers:      make(map[string]*time.Timer),
	}
}

// SetNotifier 注入实时扇出实现。必须在开始处理请求前调用一次。
func (s *SessionService) SetNotifier(n Notifier) {
	s.notifier = n
}

// --- 房间生命周期 ---

// CreateRoom 构造新房间并持久化（主记录 + 分享码索引，一次原子写）。
// autoStartTimer 打开时房间在创建瞬间就处于 Running，这里顺带挂上完成回调。
func (s *SessionService) CreateRoom(ctx context.Context, hostID uint, cfg domain.RoomConfig) (*domain.Room, error) {
	logCtx := logrus.WithField("host_id", hostID)

	host, err := s.resolveProfile(ctx, hostID)
	if err != nil {
		logCtx.WithError(err).Warn("CreateRoom: failed to resolve host profile")
		return nil, err
	}

	room, err := domain.NewRoom(host, cfg)
	if err != nil {
		logCtx.WithError(err).Warn("CreateRoom: invalid room config")
		return nil, err
	}
	logCtx = logCtx.WithFields(logrus.Fields{"room_id": room.RoomID(), "room_code": room.RoomCode()})

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("CreateRoom: failed to persist room")
		return nil, ErrInternalServer
	}

	if room.TimerRunning() {
		s.scheduleCompletion(room.RoomID(), room.RemainingMillis())
	}

	logCtx.Info("Room created")
	return room, nil
}

// JoinRoom 通过分享码加入房间。分享码索引和主记录会各自独立过期，
// 任何一环缺失都视为无效分享码。容量满员时拒绝（重复加入除外，保持幂等）。
func (s *SessionService) JoinRoom(ctx context.Context, userID uint, code, taskText string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_code": code})

	roomID, err := s.sessionRepo.ResolveCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			logCtx.Warn("JoinRoom: unknown or expired room code")
			return nil, ErrInvalidRoomCode
		}
		logCtx.WithError(err).Error("JoinRoom: failed to resolve room code")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("room_id", roomID)

	room, err := s.sessionRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("JoinRoom: room record expired while code survived")
			return nil, ErrInvalidRoomCode
		}
		logCtx.WithError(err).Error("JoinRoom: failed to fetch room")
		return nil, ErrInternalServer
	}

	if room.Participant(userID) == nil && room.IsFull() {
		logCtx.Warn("JoinRoom: room is at capacity")
		return nil, ErrRoomFull
	}

	profile, err := s.resolveProfile(ctx, userID)
	if err != nil {
		logCtx.WithError(err).Warn("JoinRoom: failed to resolve profile")
		return nil, err
	}

	room.AddParticipant(profile, taskText)

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("JoinRoom: failed to persist room")
		return nil, ErrInternalServer
	}

	s.notifyRoomUpdated(room)
	logCtx.Info("User joined room")
	return room, nil
}

// GetRoom 按 roomId 读取房间（供 HTTP 查询和 WebSocket 握手校验使用）。
func (s *SessionService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.sessionRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("GetRoom: repository error")
		return nil, ErrInternalServer
	}
	return room, nil
}

// RemoveUser 处理主动离开和连接断开。计时器运行中离场的参与者先吃
// EARLY_LEAVE 扣分（只动外部余额，人都走了房间内积分无所谓），再移除。
// 宿主离开时由实体把最早的剩余参与者提升为新宿主。
func (s *SessionService) RemoveUser(ctx context.Context, roomID string, userID uint) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	room, err := s.fetchRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if room.TimerRunning() && room.Participant(userID) != nil {
		s.awardPoints(ctx, userID, roomID, PointsEarlyLeave, domain.PointReasonEarlyLeave)
		logCtx.Info("Early-leave penalty applied")
	}

	room.RemoveParticipant(userID)

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("RemoveUser: failed to persist room")
		return nil, ErrInternalServer
	}

	s.notifyRoomUpdated(room)
	logCtx.Info("User removed from room")
	return room, nil
}

// KickUser 把 targetUserID 踢出房间；仅宿主可操作，越权尝试按安全事件记录。
// 被踢不算主动离场，不吃 EARLY_LEAVE 扣分。
func (s *SessionService) KickUser(ctx context.Context, roomID string, requesterID, targetUserID uint) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":      roomID,
		"requester_id": requesterID,
		"target_id":    targetUserID,
	})

	room, err := s.fetchRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if room.HostID() != requesterID {
		logCtx.Warn("KickUser: non-host attempted to kick a participant")
		return nil, ErrNotHost
	}

	room.RemoveParticipant(targetUserID)

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("KickUser: failed to persist room")
		return nil, ErrInternalServer
	}

	if s.notifier != nil {
		s.notifier.UserKicked(roomID, targetUserID)
	}
	s.notifyRoomUpdated(room)
	logCtx.Info("User kicked from room")
	return room, nil
}

// MoveAvatar 更新参与者位置。拖拽手势高频触发，撞上过期房间引用时
// 保持安静：房间不存在返回 (nil, nil) 而不是错误。
func (s *SessionService) MoveAvatar(ctx context.Context, roomID string, userID uint, x, y float64) (*domain.Room, error) {
	room, err := s.sessionRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, nil
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("MoveAvatar: repository error")
		return nil, ErrInternalServer
	}

	room.UpdateParticipantPosition(userID, x, y)

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("MoveAvatar: failed to persist room")
		return nil, ErrInternalServer
	}

	s.notifyRoomUpdated(room)
	return room, nil
}

// --- 计时器 ---

// StartTimer 启动共享计时器并挂上一次性的完成回调（按剩余时长计）。
// 同一房间最多只有一个待触发回调，旧的先取消。
func (s *SessionService) StartTimer(ctx context.Context, roomID string, userID uint) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	room, err := s.fetchRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if err := room.StartTimer(); err != nil {
		logCtx.Warn("StartTimer: timer already running")
		return nil, ErrTimerAlreadyRunning
	}

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("StartTimer: failed to persist room")
		return nil, ErrInternalServer
	}

	s.scheduleCompletion(roomID, room.RemainingMillis())
	s.notifyRoomUpdated(room)
	logCtx.Info("Timer started")
	return room, nil
}

// StopTimer 停止计时器，返回本段运行时长（毫秒），并取消完成回调。
func (s *SessionService) StopTimer(ctx context.Context, roomID string) (*domain.Room, int64, error) {
	logCtx := logrus.WithField("room_id", roomID)

	room, err := s.fetchRoom(ctx, roomID)
	if err != nil {
		return nil, 0, err
	}

	segment, err := room.StopTimer()
	if err != nil {
		logCtx.Warn("StopTimer: timer not running")
		return nil, 0, ErrTimerNotRunning
	}

	s.cancelCompletion(roomID)

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("StopTimer: failed to persist room")
		return nil, 0, ErrInternalServer
	}

	s.notifyRoomUpdated(room)
	logCtx.WithField("segment_ms", segment).Info("Timer stopped")
	return room, segment, nil
}

// ResetTimer 无条件把计时器清回 Idle 并取消完成回调。
func (s *SessionService) ResetTimer(ctx context.Context, roomID string) (*domain.Room, error) {
	logCtx := logrus.WithField("room_id", roomID)

	room, err := s.fetchRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	room.ResetTimer()
	s.cancelCompletion(roomID)

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("ResetTimer: failed to persist room")
		return nil, ErrInternalServer
	}

	s.notifyRoomUpdated(room)
	logCtx.Info("Timer reset")
	return room, nil
}

// UpdateSettings 目前只承载计时器时长。SetTimerDuration 成功即隐含一次
// 完整重置（包括运行中的计时器被强制拉回 Idle），所以完成回调一并取消。
func (s *SessionService) UpdateSettings(ctx context.Context, roomID string, duration int) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "duration": duration})

	room, err := s.fetchRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	room.SetTimerDuration(duration)
	s.cancelCompletion(roomID)

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("UpdateSettings: failed to persist room")
		return nil, ErrInternalServer
	}

	s.notifyRoomUpdated(room)
	logCtx.Info("Room settings updated")
	return room, nil
}

// --- 任务 ---

// CreateTask 在地板上创建一个任务。
func (s *SessionService) CreateTask(ctx context.Context, roomID string, ownerID uint, text string) (*domain.Room, *domain.Task, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "owner_id": ownerID})

	room, err := s.fetchRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	task := room.AddTask(ownerID, text)

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("CreateTask: failed to persist room")
		return nil, nil, ErrInternalServer
	}

	s.notifyRoomUpdated(room)
	logCtx.WithField("task_id", task.ID).Info("Task created")
	return room, task, nil
}

// MoveTask 更新任务位置。
func (s *SessionService) MoveTask(ctx context.Context, roomID, taskID string, x, y float64) (*domain.Room, error) {
	room, err := s.fetchRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	room.UpdateTaskPosition(taskID, x, y)

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"room_id": roomID, "task_id": taskID}).Error("MoveTask: failed to persist room")
		return nil, ErrInternalServer
	}

	s.notifyRoomUpdated(room)
	return room, nil
}

// CompleteTask 完成并销毁任务，给返回的 owner 恰好计分一次
// （外部余额 + 房间内可见积分）。未知 taskId 不报错、不计分。
func (s *SessionService) CompleteTask(ctx context.Context, roomID, taskID string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "task_id": taskID})

	room, err := s.fetchRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	ownerID, found := room.CompleteTask(taskID)
	if found {
		s.awardPoints(ctx, ownerID, roomID, PointsTaskComplete, domain.PointReasonTaskComplete)
		room.AdjustParticipantScore(ownerID, PointsTaskComplete)
	} else {
		logCtx.Debug("CompleteTask: task not found, nothing to do")
	}

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("CompleteTask: failed to persist room")
		return nil, ErrInternalServer
	}

	if found && s.notifier != nil {
		s.notifier.TaskCompleted(roomID, taskID)
	}
	s.notifyRoomUpdated(room)
	return room, nil
}

// --- 完成回调调度 ---

// scheduleCompletion 给房间挂一个一次性完成回调，旧回调先取消。
// remaining <= 0 时不调度（时长已被耗尽，等用户手动处理）。
func (s *SessionService) scheduleCompletion(roomID string, remainingMs int64) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if t, ok := s.timers[roomID]; ok {
		t.Stop()
		delete(s.timers, roomID)
	}
	if remainingMs <= 0 {
		return
	}
	s.timers[roomID] = time.AfterFunc(time.Duration(remainingMs)*time.Millisecond, func() {
		s.handleTimerCompletion(roomID)
	})
	logrus.WithFields(logrus.Fields{"room_id": roomID, "remaining_ms": remainingMs}).Debug("Timer completion scheduled")
}

// cancelCompletion 取消房间的待触发完成回调（没有则为空操作）。
func (s *SessionService) cancelCompletion(roomID string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if t, ok := s.timers[roomID]; ok {
		t.Stop()
		delete(s.timers, roomID)
	}
}

// HasPendingCompletion 报告房间是否有待触发的完成回调（运维/测试用）。
func (s *SessionService) HasPendingCompletion(roomID string) bool {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	_, ok := s.timers[roomID]
	return ok
}

// handleTimerCompletion 是计时器自然走完时的后台回调：停表、给所有
// 在场参与者发 TIMER_COMPLETE 奖励（外部余额 + 房间内积分）、持久化、
// 广播 room_update 和独立的 timer_finished 通知。
// 这是无调用方的后台任务：任何失败只记日志，绝不让进程崩溃，
// 也不把回调表留在不一致状态。
func (s *SessionService) handleTimerCompletion(roomID string) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("room_id", roomID).Errorf("Timer completion panicked: %v", r)
		}
	}()
	s.cancelCompletion(roomID)

	logCtx := logrus.WithField("room_id", roomID)
	ctx := context.Background()

	room, err := s.sessionRepo.GetRoom(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Warn("Timer completion: room gone, skipping")
		return
	}

	if _, err := room.StopTimer(); err != nil {
		// 回调和手动 stop/reset 赛跑输了，对方已经停表
		logCtx.Debug("Timer completion: timer no longer running, skipping")
		return
	}

	for _, p := range room.Participants() {
		s.awardPoints(ctx, p.UserID, roomID, PointsTimerComplete, domain.PointReasonTimerComplete)
		room.AdjustParticipantScore(p.UserID, PointsTimerComplete)
	}

	if err := s.sessionRepo.SaveRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("Timer completion: failed to persist room")
		return
	}

	s.notifyRoomUpdated(room)
	if s.notifier != nil {
		s.notifier.TimerFinished(roomID, PointsTimerComplete)
	}
	logCtx.WithField("participants", len(room.Participants())).Info("Timer completed, bonus awarded")
}

// --- 私有辅助函数 ---

// fetchRoom 读取房间并把仓库错误映射为业务错误。
func (s *SessionService) fetchRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.sessionRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to fetch room from store")
		return nil, ErrInternalServer
	}
	return room, nil
}

// resolveProfile 在进入房间时从用户目录解析展示信息。
func (s *SessionService) resolveProfile(ctx context.Context, userID uint) (domain.Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.Profile{}, ErrUserNotFound
		}
		return domain.Profile{}, ErrInternalServer
	}
	return user.Profile(), nil
}

// awardPoints 调整外部积分余额并异步记一条流水。计分是尽力而为的近似
// 语义：余额调整失败只记日志，不回滚房间变更。
func (s *SessionService) awardPoints(ctx context.Context, userID uint, roomID string, delta int, reason string) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID, "delta": delta, "reason": reason})

	if _, err := s.userRepo.AdjustPoints(ctx, userID, delta); err != nil {
		logCtx.WithError(err).Error("Failed to adjust point balance")
		return
	}

	if s.asynqClient != nil {
		payload, err := tasks.NewPointLedgerTask(domain.PointLedgerEntry{
			UserID:    userID,
			RoomID:    roomID,
			Delta:     delta,
			Reason:    reason,
			AwardedAt: time.Now(),
		})
		if err != nil {
			logCtx.WithError(err).Error("Failed to build ledger task payload")
			return
		}
		if _, err := s.asynqClient.Enqueue(asynq.NewTask(tasks.TypePointLedger, payload)); err != nil {
			logCtx.WithError(err).Warn("Failed to enqueue ledger task")
		}
	}
}

// notifyRoomUpdated 把最新快照广播给房间的所有客户端。
func (s *SessionService) notifyRoomUpdated(room *domain.Room) {
	if s.notifier == nil {
		return
	}
	s.notifier.RoomUpdated(room.RoomID(), room.Snapshot())
}
