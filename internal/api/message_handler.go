package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gracefellowship/fellowship/internal/auth"
	"github.com/gracefellowship/fellowship/internal/service"
)

// MessageHandler handles chat room and message endpoints.
type MessageHandler struct {
	service *service.MessageService
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(svc *service.MessageService) *MessageHandler {
	return &MessageHandler{service: svc}
}

// ListRooms handles GET /api/v1/rooms.
func (h *MessageHandler) ListRooms(c echo.Context) error {
	rooms, err := h.service.ListRooms(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, rooms)
}

type createRoomRequest struct {
	Name string `json:"name"`
}

// CreateRoom handles POST /api/v1/rooms.
func (h *MessageHandler) CreateRoom(c echo.Context) error {
	var req createRoomRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}

	room, err := h.service.CreateRoom(c.Request().Context(), auth.GetUserID(c), req.Name)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, room)
}

type sendMessageRequest struct {
	Content   string `json:"content"`
	ReplyToID string `json:"reply_to_id"`
}

// SendMessage handles POST /api/v1/rooms/:id/messages.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	roomID, ok := paramID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid room ID")
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}

	var replyTo *int64
	if req.ReplyToID != "" {
		id, err := strconv.ParseInt(req.ReplyToID, 10, 64)
		if err != nil {
			return Error(c, http.StatusBadRequest, "INVALID_REPLY", "invalid reply_to_id")
		}
		replyTo = &id
	}

	msg, err := h.service.SendMessage(c.Request().Context(), roomID, auth.GetUserID(c), req.Content, replyTo)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// GetMessages handles GET /api/v1/rooms/:id/messages. Messages come back
// oldest first.
func (h *MessageHandler) GetMessages(c echo.Context) error {
	roomID, ok := paramID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid room ID")
	}

	before, limit, err := pageParams(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	messages, err := h.service.ListMessages(c.Request().Context(), roomID, before, limit)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, messages)
}

// GetMessage handles GET /api/v1/rooms/:id/messages/:message_id.
func (h *MessageHandler) GetMessage(c echo.Context) error {
	roomID, ok := paramID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid room ID")
	}
	msgID, ok := paramID(c, "message_id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid message ID")
	}

	msg, err := h.service.GetMessage(c.Request().Context(), roomID, msgID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}

// DeleteMessage handles DELETE /api/v1/rooms/:id/messages/:message_id. The
// response is the tombstone, with its content already cleared.
func (h *MessageHandler) DeleteMessage(c echo.Context) error {
	roomID, ok := paramID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid room ID")
	}
	msgID, ok := paramID(c, "message_id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid message ID")
	}

	msg, err := h.service.DeleteMessage(c.Request().Context(), roomID, msgID, auth.GetUserID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}
