// Package dto 定义 WebSocket 事件信封和各事件的负载结构。
package dto

import "encoding/json"

// 客户端 -> 服务端 事件类型
const (
	EventLeaveRoom      = "leave_room"
	EventMoveAvatar     = "move_avatar"
	EventCreateTask     = "create_task"
	EventMoveTask       = "move_task"
	EventCompleteTask   = "complete_task"
	EventKickUser       = "kick_user"
	EventSendReaction   = "send_reaction"
	EventStartTimer     = "start_timer"
	EventStopTimer      = "stop_timer"
	EventResetTimer     = "reset_timer"
	EventUpdateSettings = "update_settings"
)

// 服务端 -> 客户端 事件类型
const (
	EventRoomUpdate         = "room_update"
	EventTimerFinished      = "timer_finished"
	EventKickedNotification = "kicked_notification"
	EventTaskCompletedAnim  = "task_completed_anim"
	EventReactionReceived   = "reaction_received"
	EventError              = "error"
)

// Envelope 是所有 WebSocket 消息的外层信封。
// Payload 延迟解析，按 Type 分派后再解到具体结构。
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MoveAvatarPayload 是 move_avatar 事件的负载（百分比坐标）。
type MoveAvatarPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CreateTaskPayload 是 create_task 事件的负载。
type CreateTaskPayload struct {
	Text string `json:"text"`
}

// MoveTaskPayload 是 move_task 事件的负载。
type MoveTaskPayload struct {
	TaskID string  `json:"taskId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// CompleteTaskPayload 是 complete_task 事件的负载。
type CompleteTaskPayload struct {
	TaskID string `json:"taskId"`
}

// KickUserPayload 是 kick_user 事件的负载。
type KickUserPayload struct {
	UserID uint `json:"userId"`
}

// SendReactionPayload 是 send_reaction 事件的负载，原样转发给房间。
type SendReactionPayload struct {
	Emoji string `json:"emoji"`
}

// UpdateSettingsPayload 是 update_settings 事件的负载。
type UpdateSettingsPayload struct {
	TimerDuration int `json:"timerDuration"`
}

// ReactionBroadcast 是 reaction_received 事件的负载。
type ReactionBroadcast struct {
	UserID uint   `json:"userId"`
	Emoji  string `json:"emoji"`
}

// TimerFinishedPayload 是 timer_finished 事件的负载。
type TimerFinishedPayload struct {
	Bonus int `json:"bonus"`
}

// KickedNotificationPayload 是 kicked_notification 事件的负载。
type KickedNotificationPayload struct {
	UserID uint `json:"userId"`
}

// TaskCompletedAnimPayload 是 task_completed_anim 事件的负载。
type TaskCompletedAnimPayload struct {
	TaskID string `json:"taskId"`
}

// ErrorPayload 是 error 事件的负载。
type ErrorPayload struct {
	Message string `json:"message"`
}
