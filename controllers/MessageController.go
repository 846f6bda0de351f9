package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"neuro-match/services"
	"neuro-match/utils"
)

// MessageController 私信的 REST 接口；返回裸 JSON（消息对象或数组）
type MessageController struct {
	store  services.MessageStore
	relay  *services.Relay
	logger *slog.Logger
}

// NewMessageController builds the controller; relay may be nil, in which case
// messages created over REST are stored but not pushed to open sockets.
func NewMessageController(store services.MessageStore, relay *services.Relay, logger *slog.Logger) *MessageController {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageController{store: store, relay: relay, logger: logger}
}

// GetConversation GET /api/messages?with=<userId>
func (mc *MessageController) GetConversation(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	with := strings.TrimSpace(c.Query("with"))
	if with == "" {
		utils.RespondError(c, http.StatusBadRequest, "validation_error", "with: is required")
		return
	}

	messages, err := mc.store.ListConversation(c.Request.Context(), user.ID, with)
	if err != nil {
		respondServiceError(c, mc.logger, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// 发送消息
func (mc *MessageController) SendMessage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var input struct {
		RecipientID string  `json:"recipientId" binding:"required"`
		Text        string  `json:"text" binding:"required"`
		MomentID    *string `json:"momentId"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	message, err := mc.store.Append(c.Request.Context(), user.ID, input.RecipientID, input.Text, input.MomentID)
	if err != nil {
		respondServiceError(c, mc.logger, err)
		return
	}
	if mc.relay != nil {
		mc.relay.Deliver(c.Request.Context(), message)
	}
	c.JSON(http.StatusCreated, message)
}
