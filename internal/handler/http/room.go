package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/offspring2k5/neveralone/internal/domain"
	"github.com/offspring2k5/neveralone/internal/service"
)

// RoomHandler 封装与房间会话相关的 HTTP 处理逻辑。
type RoomHandler struct {
	sessionService *service.SessionService
}

// NewRoomHandler 创建 RoomHandler 实例。
func NewRoomHandler(sessionService *service.SessionService) *RoomHandler {
	return &RoomHandler{sessionService: sessionService}
}

// CreateRoomRequest 定义创建房间的请求体。所有字段都可省略，走默认值。
type CreateRoomRequest struct {
	RoomName       string `json:"roomName"`
	HostTask       string `json:"hostTask"`
	Theme          string `json:"theme"`
	TimerDuration  int    `json:"timerDuration"`
	IsPrivate      bool   `json:"isPrivate"`
	MaxUsers       int    `json:"maxUsers"`
	AutoStartTimer bool   `json:"autoStartTimer"`
}

// CreateRoom 处理创建新房间的请求。
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input")
		return
	}

	room, err := h.sessionService.CreateRoom(c.Request.Context(), userID, domain.RoomConfig{
		RoomName:       req.RoomName,
		HostTask:       req.HostTask,
		Theme:          req.Theme,
		TimerDuration:  req.TimerDuration,
		IsPrivate:      req.IsPrivate,
		MaxUsers:       req.MaxUsers,
		AutoStartTimer: req.AutoStartTimer,
	})
	if err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Failed to create room")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithFields(logrus.Fields{"room_id": room.RoomID(), "room_code": room.RoomCode()}).Info("Handler.CreateRoom: Room created")
	SuccessResponse(c, http.StatusOK, room.Snapshot())
}

// JoinRoomRequest 定义加入房间的请求体。
type JoinRoomRequest struct {
	RoomCode string `json:"roomCode" binding:"required,len=6"`
	Task     string `json:"task"`
}

// JoinRoom 处理通过分享码加入房间的请求。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: roomCode is required")
		return
	}
	logCtx = logCtx.WithField("room_code", req.RoomCode)

	room, err := h.sessionService.JoinRoom(c.Request.Context(), userID, req.RoomCode, req.Task)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Failed to join room")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("room_id", room.RoomID()).Info("Handler.JoinRoom: User joined room")
	SuccessResponse(c, http.StatusOK, room.Snapshot())
}

// GetRoom 返回房间当前快照。
func (h *RoomHandler) GetRoom(c *gin.Context) {
	if _, ok := mustUserID(c); !ok {
		return
	}
	roomID := c.Param("roomId")

	room, err := h.sessionService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room.Snapshot())
}

// StartTimer 启动房间的共享计时器。
func (h *RoomHandler) StartTimer(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	roomID := c.Param("roomId")

	room, err := h.sessionService.StartTimer(c.Request.Context(), roomID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room.Snapshot())
}

// StopTimer 停止房间的共享计时器。
func (h *RoomHandler) StopTimer(c *gin.Context) {
	if _, ok := mustUserID(c); !ok {
		return
	}
	roomID := c.Param("roomId")

	room, segment, err := h.sessionService.StopTimer(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"segmentMs": segment,
		"room":      room.Snapshot(),
	})
}

// ResetTimer 重置房间的共享计时器。
func (h *RoomHandler) ResetTimer(c *gin.Context) {
	if _, ok := mustUserID(c); !ok {
		return
	}
	roomID := c.Param("roomId")

	room, err := h.sessionService.ResetTimer(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room.Snapshot())
}

// UpdateSettingsRequest 定义更新房间设置的请求体。
type UpdateSettingsRequest struct {
	TimerDuration int `json:"timerDuration" binding:"required,min=1"`
}

// UpdateSettings 更新计时器时长（隐含一次完整的计时器重置）。
func (h *RoomHandler) UpdateSettings(c *gin.Context) {
	if _, ok := mustUserID(c); !ok {
		return
	}
	roomID := c.Param("roomId")

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: timerDuration must be a positive integer")
		return
	}

	room, err := h.sessionService.UpdateSettings(c.Request.Context(), roomID, req.TimerDuration)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room.Snapshot())
}
