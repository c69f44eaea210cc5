package domain

import "time"

// RoomSnapshot 是 Room 的持久化形态。字段名保持稳定（兼容既有存量数据），
// 缺失字段在 RoomFromSnapshot 里按新建房间的同一组默认值补齐——
// 这是刻意声明的兼容契约：快照结构演进过，旧数据必须还能还原。
type RoomSnapshot struct {
	RoomID   string            `json:"roomId"`
	RoomCode string            `json:"roomCode"`
	Name     string            `json:"name"`
	Host     Participant       `json:"host"`
	Settings *SettingsSnapshot `json:"settings,omitempty"`

	ActiveParticipants []*Participant `json:"activeParticipants"`

	TimerDuration  int    `json:"timerDuration"`
	TimerStartedAt *int64 `json:"timerStartedAt"` // Unix 毫秒，停止时为 null
	TimerRunning   bool   `json:"timerRunning"`
	ElapsedTime    int64  `json:"elapsedTime"` // 毫秒

	Tasks []*Task `json:"tasks"`
}

// Snapshot 导出完整、保序的房间快照。
func (r *Room) Snapshot() RoomSnapshot {
	settings := r.settings.Snapshot()

	var startedAt *int64
	if r.timerStart != nil {
		ms := r.timerStart.UnixMilli()
		startedAt = &ms
	}

	var host Participant
	if h := r.Host(); h != nil {
		host = *h
	}

	return RoomSnapshot{
		RoomID:             r.roomID,
		RoomCode:           r.roomCode,
		Name:               r.name,
		Host:               host,
		Settings:           &settings,
		ActiveParticipants: r.participants,
		TimerDuration:      r.timerDuration,
		TimerStartedAt:     startedAt,
		TimerRunning:       r.timerRunning,
		ElapsedTime:        r.elapsedTime,
		Tasks:              r.tasks,
	}
}

// RoomFromSnapshot 从快照重建一个完全等价的 Room，包括重新构造并校验
// 内嵌的 Settings。宽容反序列化规则（集中声明在这里，勿散落各处）：
//   - settings 缺失        -> 默认配置（public / 10 人 / default 主题 / 不自动开始）
//   - name 缺失            -> DefaultRoomName
//   - timerDuration <= 0   -> DefaultTimerDuration
//   - activeParticipants / tasks 缺失 -> 空列表
//   - timerRunning 与 timerStartedAt 不一致 -> 视为停止（防御旧数据）
func RoomFromSnapshot(s RoomSnapshot) (*Room, error) {
	settingsSnap := s.Settings
	if settingsSnap == nil {
		settingsSnap = &SettingsSnapshot{
			IsPrivate:      false,
			MaxUsers:       DefaultMaxUsers,
			Theme:          DefaultTheme,
			AutoStartTimer: false,
		}
	}
	settings, err := NewSettings(settingsSnap.IsPrivate, settingsSnap.MaxUsers, settingsSnap.Theme, settingsSnap.AutoStartTimer)
	if err != nil {
		return nil, err
	}

	name := s.Name
	if name == "" {
		name = DefaultRoomName
	}
	duration := s.TimerDuration
	if duration <= 0 {
		duration = DefaultTimerDuration
	}

	running := s.TimerRunning && s.TimerStartedAt != nil
	var timerStart *time.Time
	if running {
		t := time.UnixMilli(*s.TimerStartedAt)
		timerStart = &t
	}

	participants := s.ActiveParticipants
	if participants == nil {
		participants = []*Participant{}
	}
	tasks := s.Tasks
	if tasks == nil {
		tasks = []*Task{}
	}

	elapsed := s.ElapsedTime
	if elapsed < 0 {
		elapsed = 0
	}

	return &Room{
		roomID:        s.RoomID,
		roomCode:      s.RoomCode,
		name:          name,
		hostID:        s.Host.UserID,
		settings:      settings,
		participants:  participants,
		timerDuration: duration,
		timerStart:    timerStart,
		timerRunning:  running,
		elapsedTime:   elapsed,
		tasks:         tasks,
	}, nil
}
