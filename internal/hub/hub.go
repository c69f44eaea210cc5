// Package hub 维护每个房间的 WebSocket 客户端集合，把入站事件分派给
// 业务层，并把业务层的变更扇出给房间内的所有连接。
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/offspring2k5/neveralone/internal/domain"
	"github.com/offspring2k5/neveralone/internal/dto"
	"github.com/offspring2k5/neveralone/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// HubMessage 是 Hub 内部通道传递的消息。
type HubMessage struct {
	Type    string // "register", "unregister", "event"
	RoomID  string
	UserID  uint
	Client  *Client
	RawData []byte // 仅用于 event（原始 WebSocket 消息）
}

// Hub 维护活跃客户端集合并协调消息处理。
// 它同时是业务层的扇出出口（实现 service.Notifier）。
type Hub struct {
	messageChan chan HubMessage

	// 客户端集合，按 roomID 组织
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	sessionService *service.SessionService
}

// NewHub 创建 Hub 实例。
func NewHub(sessionService *service.SessionService) *Hub {
	if sessionService == nil {
		panic("SessionService cannot be nil for Hub")
	}
	return &Hub{
		messageChan:    make(chan HubMessage, 512),
		rooms:          make(map[string]map[*Client]bool),
		sessionService: sessionService,
	}
}

// Run 启动 Hub 的主事件处理循环。应该在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "event":
			// 异步处理，避免单个慢操作阻塞 Hub 主循环。
			// 事件之间不保证顺序，领域语义（最后写入者胜）允许这点。
			go h.handleClientEvent(msg)
		default:
			log.Warnf("Hub: Received unknown message type: %s from user %d in room %s", msg.Type, msg.UserID, msg.RoomID)
		}
	}
	log.Info("Hub is shutting down...")
}

// registerClient 把客户端挂进房间，并立即推一份当前快照给它。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": client.UserID(),
		"action":  "registerClient",
	})

	h.roomsMu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	go h.sendInitialSnapshot(client)
}

// unregisterClient 把客户端从房间摘除，并走一次离开流程
// （断线视同离开：计时器运行中会吃提前离场扣分）。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	roomID := client.RoomID()
	userID := client.UserID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
		"action":  "unregisterClient",
	})

	removed := false
	h.roomsMu.Lock()
	if roomClients, roomExists := h.rooms[roomID]; roomExists {
		if _, clientExists := roomClients[client]; clientExists {
			delete(roomClients, client)
			removed = true

			select {
			case <-client.send:
				logCtx.Warn("Client send channel already closed or has data during unregister")
			default:
				close(client.send)
			}

			if len(roomClients) == 0 {
				delete(h.rooms, roomID)
				logCtx.Info("Room empty, removed from Hub")
			}
		}
	}
	h.roomsMu.Unlock()

	if !removed {
		logCtx.Warn("Client not found during unregister")
		return
	}
	logCtx.Info("Client unregistered from Hub")

	// 会话层面的离开（状态变更 + 扣分判定）放在锁外执行
	if _, err := h.sessionService.RemoveUser(context.Background(), roomID, userID); err != nil {
		logCtx.WithError(err).Warn("Failed to remove user from room session on disconnect")
	}
}

// sendInitialSnapshot 给新连接的客户端推送当前房间快照。
func (h *Hub) sendInitialSnapshot(client *Client) {
	if client == nil {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   client.RoomID(),
		"user_id":   client.UserID(),
		"operation": "sendInitialSnapshot",
	})

	room, err := h.sessionService.GetRoom(context.Background(), client.RoomID())
	if err != nil {
		logCtx.WithError(err).Error("Failed to load room for initial snapshot")
		h.sendTo(client, dto.EventError, dto.ErrorPayload{Message: "Failed to load room state"})
		return
	}

	h.sendTo(client, dto.EventRoomUpdate, room.Snapshot())
	logCtx.Debug("Initial snapshot sent")
}

// handleClientEvent 解析入站事件信封并分派给业务层。
// 成功的变更由业务层通过 Notifier 回调广播，这里只处理错误反馈
// 和不经过业务层的中继型事件（表情）。
func (h *Hub) handleClientEvent(msg HubMessage) {
	ctx := context.Background()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": msg.RoomID,
		"user_id": msg.UserID,
	})

	var env dto.Envelope
	if err := json.Unmarshal(msg.RawData, &env); err != nil {
		logCtx.WithError(err).Warn("Malformed event envelope")
		h.sendTo(msg.Client, dto.EventError, dto.ErrorPayload{Message: "malformed event"})
		return
	}
	logCtx = logCtx.WithField("event", env.Type)

	var err error
	switch env.Type {
	case dto.EventLeaveRoom:
		_, err = h.sessionService.RemoveUser(ctx, msg.RoomID, msg.UserID)

	case dto.EventMoveAvatar:
		var p dto.MoveAvatarPayload
		if err = json.Unmarshal(env.Payload, &p); err == nil {
			_, err = h.sessionService.MoveAvatar(ctx, msg.RoomID, msg.UserID, p.X, p.Y)
		}

	case dto.EventCreateTask:
		var p dto.CreateTaskPayload
		if err = json.Unmarshal(env.Payload, &p); err == nil {
			_, _, err = h.sessionService.CreateTask(ctx, msg.RoomID, msg.UserID, p.Text)
		}

	case dto.EventMoveTask:
		var p dto.MoveTaskPayload
		if err = json.Unmarshal(env.Payload, &p); err == nil {
			_, err = h.sessionService.MoveTask(ctx, msg.RoomID, p.TaskID, p.X, p.Y)
		}

	case dto.EventCompleteTask:
		var p dto.CompleteTaskPayload
		if err = json.Unmarshal(env.Payload, &p); err == nil {
			_, err = h.sessionService.CompleteTask(ctx, msg.RoomID, p.TaskID)
		}

	case dto.EventKickUser:
		var p dto.KickUserPayload
		if err = json.Unmarshal(env.Payload, &p); err == nil {
			_, err = h.sessionService.KickUser(ctx, msg.RoomID, msg.UserID, p.UserID)
		}

	case dto.EventSendReaction:
		// 表情是纯中继，不进状态，不落库
		var p dto.SendReactionPayload
		if err = json.Unmarshal(env.Payload, &p); err == nil {
			h.broadcastEvent(msg.RoomID, dto.EventReactionReceived, dto.ReactionBroadcast{UserID: msg.UserID, Emoji: p.Emoji}, nil)
		}

	case dto.EventStartTimer:
		_, err = h.sessionService.StartTimer(ctx, msg.RoomID, msg.UserID)

	case dto.EventStopTimer:
		_, _, err = h.sessionService.StopTimer(ctx, msg.RoomID)

	case dto.EventResetTimer:
		_, err = h.sessionService.ResetTimer(ctx, msg.RoomID)

	case dto.EventUpdateSettings:
		var p dto.UpdateSettingsPayload
		if err = json.Unmarshal(env.Payload, &p); err == nil {
			_, err = h.sessionService.UpdateSettings(ctx, msg.RoomID, p.TimerDuration)
		}

	default:
		logCtx.Warn("Unknown event type")
		h.sendTo(msg.Client, dto.EventError, dto.ErrorPayload{Message: "unknown event type: " + env.Type})
		return
	}

	if err != nil {
		logCtx.WithError(err).Warn("Event processing failed")
		h.sendTo(msg.Client, dto.EventError, dto.ErrorPayload{Message: err.Error()})
	}
}

// --- service.Notifier 实现 ---

// RoomUpdated 把完整快照广播给房间所有客户端。
func (h *Hub) RoomUpdated(roomID string, snapshot domain.RoomSnapshot) {
	h.broadcastEvent(roomID, dto.EventRoomUpdate, snapshot, nil)
}

// TimerFinished 广播计时器自然结束的通知。
func (h *Hub) TimerFinished(roomID string, bonus int) {
	h.broadcastEvent(roomID, dto.EventTimerFinished, dto.TimerFinishedPayload{Bonus: bonus}, nil)
}

// UserKicked 广播被踢通知；被踢用户的客户端据此自行断开。
func (h *Hub) UserKicked(roomID string, targetUserID uint) {
	h.broadcastEvent(roomID, dto.EventKickedNotification, dto.KickedNotificationPayload{UserID: targetUserID}, nil)
}

// TaskCompleted 广播任务完成动画事件。
func (h *Hub) TaskCompleted(roomID string, taskID string) {
	h.broadcastEvent(roomID, dto.EventTaskCompletedAnim, dto.TaskCompletedAnimPayload{TaskID: taskID}, nil)
}

// --- 发送原语 ---

// broadcastEvent 把事件发给房间的所有客户端（sender 为 nil 时不排除任何人）。
func (h *Hub) broadcastEvent(roomID string, eventType string, payload interface{}, sender *Client) {
	message, err := marshalEvent(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", eventType).Error("Failed to marshal outbound event")
		return
	}

	h.roomsMu.RLock()
	roomClients, ok := h.rooms[roomID]
	clientsToSend := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			if client != sender {
				clientsToSend = append(clientsToSend, client)
			}
		}
	}
	h.roomsMu.RUnlock()

	if len(clientsToSend) == 0 {
		return
	}

	for _, client := range clientsToSend {
		select {
		case client.send <- message:
		default:
			// 慢客户端不拖累广播；它的 WritePump/读超时会善后
			logrus.WithFields(logrus.Fields{
				"room_id":          roomID,
				"receiver_user_id": client.UserID(),
				"event":            eventType,
			}).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// sendTo 把事件发给单个客户端（非阻塞）。
func (h *Hub) sendTo(client *Client, eventType string, payload interface{}) {
	if client == nil {
		return
	}
	message, err := marshalEvent(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", eventType).Error("Failed to marshal outbound event")
		return
	}
	select {
	case client.send <- message:
	default:
		logrus.WithFields(logrus.Fields{
			"room_id": client.RoomID(),
			"user_id": client.UserID(),
			"event":   eventType,
		}).Warn("Client send channel full, message dropped")
	}
}

func marshalEvent(eventType string, payload interface{}) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(dto.Envelope{Type: eventType, Payload: payloadBytes})
}

// QueueMessage 把消息放入 Hub 的处理队列（非阻塞）。
// 返回 false 表示队列已满，消息被丢弃。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"room_id":      msg.RoomID,
			"user_id":      msg.UserID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}
