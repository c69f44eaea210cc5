package domain

import (
	"crypto/rand"
	"errors"
	mathrand "math/rand"
	"time"

	"github.com/google/uuid"
)

// 计时器状态错误（实体级，同步抛出，由 Service 决定如何上报）。
var (
	ErrTimerAlreadyRunning = errors.New("timer already running")
	ErrTimerNotRunning     = errors.New("timer not running")
)

// 新建房间时的默认值。旧快照缺字段时沿用同一组默认值（见 RoomFromSnapshot）。
const (
	DefaultRoomName      = "Productivity Session"
	DefaultTheme         = "default"
	DefaultMaxUsers      = 10
	DefaultTimerDuration = 25 // 分钟
	DefaultTask          = "Working"
	DefaultHostTask      = "Hosting"
)

// roomCodeAlphabet 即 base-36 大写字符集，生成 6 位分享码。
// 注意：这里不做唯一性重试，按目标规模把碰撞概率当作可忽略（已知缺口）。
const roomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
const roomCodeLength = 6

// Profile 是进入房间时从用户目录解析出来的展示信息。
type Profile struct {
	UserID    uint   `json:"userId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Points    int    `json:"points"`
}

// Participant 是用户在某个房间内的在场记录（位置、当前任务、房间内积分）。
// 位置为地板百分比坐标；前端会把拖拽钳制在 [5,95]，实体本身不做边界校验
// （调用方契约，而非实体不变量）。
type Participant struct {
	UserID      uint    `json:"userId"`
	Username    string  `json:"username"`
	AvatarURL   string  `json:"avatarUrl,omitempty"`
	CurrentTask string  `json:"currentTask"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Points      int     `json:"points"`
}

// Task 是钉在地板上的共享待办。完成即销毁，并把 OwnerID 返回给调用方计分。
type Task struct {
	ID        string  `json:"id"`
	OwnerID   uint    `json:"ownerId"`
	Text      string  `json:"text"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Completed bool    `json:"completed"`
	CreatedAt int64   `json:"createdAt"` // Unix 毫秒
}

// RoomConfig 是创建房间时宿主提交的配置；零值字段取默认值。
type RoomConfig struct {
	RoomName       string
	HostTask       string
	Theme          string
	TimerDuration  int // 分钟
	IsPrivate      bool
	MaxUsers       int
	AutoStartTimer bool
}

// Room 是一次共同工作会话的聚合根：身份、分享码、宿主、参与者列表、
// 配置、计时器状态和任务列表。所有保持不变量的变更都必须经过它的方法；
// Room 本身不做任何 I/O。
type Room struct {
	roomID   string
	roomCode string
	name     string
	hostID   uint
	settings Settings

	// 按加入顺序排列，userId 在列表内唯一。
	participants []*Participant

	timerDuration int // 分钟
	timerStart    *time.Time
	timerRunning  bool
	elapsedTime   int64 // 已累计的运行毫秒数（跨多个暂停段）

	tasks []*Task
}

// NewRoom 生成新身份与分享码、按默认值补全配置、把宿主放进参与者列表
// （随机地板位置），并在 autoStartTimer 打开时立刻启动计时器。
func NewRoom(host Profile, cfg RoomConfig) (*Room, error) {
	name := cfg.RoomName
	if name == "" {
		name = DefaultRoomName
	}
	theme := cfg.Theme
	if theme == "" {
		theme = DefaultTheme
	}
	maxUsers := cfg.MaxUsers
	if maxUsers == 0 {
		maxUsers = DefaultMaxUsers
	}
	duration := cfg.TimerDuration
	if duration <= 0 {
		duration = DefaultTimerDuration
	}

	settings, err := NewSettings(cfg.IsPrivate, maxUsers, theme, cfg.AutoStartTimer)
	if err != nil {
		return nil, err
	}

	r := &Room{
		roomID:        uuid.NewString(),
		roomCode:      generateRoomCode(),
		name:          name,
		hostID:        host.UserID,
		settings:      settings,
		timerDuration: duration,
	}

	hostTask := cfg.HostTask
	if hostTask == "" {
		hostTask = DefaultHostTask
	}
	r.appendParticipant(host, hostTask)

	if settings.AutoStartTimer() {
		// 新房间的计时器必然处于 Idle，这里不会失败
		_ = r.StartTimer()
	}
	return r, nil
}

// generateRoomCode 用 crypto/rand 生成 6 位 base-36 大写分享码。
func generateRoomCode() string {
	b := make([]byte, roomCodeLength)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand 失败极罕见，退化为时间种子的伪随机
		src := mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
		for i := range b {
			b[i] = roomCodeAlphabet[src.Intn(len(roomCodeAlphabet))]
		}
		return string(b)
	}
	for i := range b {
		b[i] = roomCodeAlphabet[int(b[i])%len(roomCodeAlphabet)]
	}
	return string(b)
}

// --- Getter ---

func (r *Room) RoomID() string     { return r.roomID }
func (r *Room) RoomCode() string   { return r.roomCode }
func (r *Room) Name() string       { return r.name }
func (r *Room) Settings() Settings { return r.settings }
func (r *Room) TimerDuration() int { return r.timerDuration }
func (r *Room) TimerRunning() bool { return r.timerRunning }
func (r *Room) ElapsedTime() int64 { return r.elapsedTime }
func (r *Room) Tasks() []*Task     { return r.tasks }

// TimerStartedAt 返回当前运行段的开始时间；计时器停止时为 nil。
func (r *Room) TimerStartedAt() *time.Time { return r.timerStart }

// Host 返回宿主的参与者记录；宿主始终是 participants 的成员。
func (r *Room) Host() *Participant { return r.Participant(r.hostID) }

// HostID 返回当前宿主的 userId。
func (r *Room) HostID() uint { return r.hostID }

// Participants 返回按加入顺序排列的参与者列表（只读视图）。
func (r *Room) Participants() []*Participant { return r.participants }

// Participant 按 userId 查找参与者，不存在时返回 nil。
func (r *Room) Participant(userID uint) *Participant {
	for _, p := range r.participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// IsFull 报告参与者数量是否已达容量上限。
func (r *Room) IsFull() bool {
	return len(r.participants) >= r.settings.MaxUsers()
}

// --- 参与者 ---

// AddParticipant 把用户加入房间。userId 已存在时为幂等空操作，
// 不会覆盖既有参与者的任务或位置。
func (r *Room) AddParticipant(profile Profile, taskText string) {
	if r.Participant(profile.UserID) != nil {
		return
	}
	if taskText == "" {
		taskText = DefaultTask
	}
	r.appendParticipant(profile, taskText)
}

func (r *Room) appendParticipant(profile Profile, taskText string) {
	r.participants = append(r.participants, &Participant{
		UserID:      profile.UserID,
		Username:    profile.Username,
		AvatarURL:   profile.AvatarURL,
		CurrentTask: taskText,
		// 随机落在地板中部：x ∈ [10,80)，y ∈ [20,80)
		X:      float64(mathrand.Intn(70) + 10),
		Y:      float64(mathrand.Intn(60) + 20),
		Points: profile.Points,
	})
}

// RemoveParticipant 按 userId 移除参与者；不存在时为幂等空操作。
// 被移除的是宿主时，把最早加入的剩余参与者提升为新宿主；
// 房间被清空则保留原宿主 ID，等待 TTL 过期回收。
func (r *Room) RemoveParticipant(userID uint) {
	idx := -1
	for i, p := range r.participants {
		if p.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	r.participants = append(r.participants[:idx], r.participants[idx+1:]...)

	if userID == r.hostID && len(r.participants) > 0 {
		r.hostID = r.participants[0].UserID
	}
}

// UpdateParticipantPosition 原地更新位置；参与者不存在时为空操作。
func (r *Room) UpdateParticipantPosition(userID uint, x, y float64) {
	if p := r.Participant(userID); p != nil {
		p.X = x
		p.Y = y
	}
}

// AdjustParticipantScore 给参与者的房间内积分加上 delta，下限为 0；
// 参与者不存在时为空操作。
func (r *Room) AdjustParticipantScore(userID uint, delta int) {
	if p := r.Participant(userID); p != nil {
		p.Points += delta
		if p.Points < 0 {
			p.Points = 0
		}
	}
}

// --- 计时器状态机：{Idle, Running} ---

// StartTimer 把计时器从 Idle 切到 Running；已在运行时返回 ErrTimerAlreadyRunning。
func (r *Room) StartTimer() error {
	if r.timerRunning {
		return ErrTimerAlreadyRunning
	}
	now := time.Now()
	r.timerStart = &now
	r.timerRunning = true
	return nil
}

// StopTimer 结束当前运行段，把段时长累加进 elapsedTime 并返回该段毫秒数；
// 计时器未运行时返回 ErrTimerNotRunning。
func (r *Room) StopTimer() (int64, error) {
	if !r.timerRunning {
		return 0, ErrTimerNotRunning
	}
	segment := time.Since(*r.timerStart).Milliseconds()
	r.elapsedTime += segment
	r.timerStart = nil
	r.timerRunning = false
	return segment, nil
}

// ResetTimer 无条件回到 Idle 并清零累计时间（Running 和 Idle 下都允许）。
func (r *Room) ResetTimer() {
	r.timerRunning = false
	r.timerStart = nil
	r.elapsedTime = 0
}

// SetTimerDuration 设置时长（分钟）。只接受正整数，非法输入静默忽略；
// 设置成功时连带执行一次完整的 ResetTimer——即使计时器正在运行，
// 改时长也总是把它强制回 Idle。
func (r *Room) SetTimerDuration(minutes int) {
	if minutes <= 0 {
		return
	}
	r.timerDuration = minutes
	r.ResetTimer()
}

// RemainingMillis 返回按当前时长和累计时间计算的剩余毫秒数，可能为负。
func (r *Room) RemainingMillis() int64 {
	return int64(r.timerDuration)*60*1000 - r.elapsedTime
}

// --- 任务 ---

// AddTask 创建一个随机落点的任务并返回它。
func (r *Room) AddTask(ownerID uint, text string) *Task {
	t := &Task{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Text:    text,
		// 任务落在地板的固定子区域：x ∈ [20,70)，y ∈ [30,70)
		X:         float64(mathrand.Intn(50) + 20),
		Y:         float64(mathrand.Intn(40) + 30),
		CreatedAt: time.Now().UnixMilli(),
	}
	r.tasks = append(r.tasks, t)
	return t
}

// UpdateTaskPosition 原地更新任务位置；任务不存在时为空操作。
func (r *Room) UpdateTaskPosition(taskID string, x, y float64) {
	for _, t := range r.tasks {
		if t.ID == taskID {
			t.X = x
			t.Y = y
			return
		}
	}
}

// CompleteTask 移除任务并返回其 ownerId；任务不存在时 found 为 false，
// 任务列表保持不变。调用方依据返回的 owner 恰好计分一次。
// 注意：参与者离开不会回收其任务（接受孤儿任务，见设计记录）。
func (r *Room) CompleteTask(taskID string) (ownerID uint, found bool) {
	for i, t := range r.tasks {
		if t.ID == taskID {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			return t.OwnerID, true
		}
	}
	return 0, false
}
