package controllers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"neuro-match/services"
	"neuro-match/utils"
)

type ConversationController struct {
	conversations *services.ConversationService
	logger        *slog.Logger
}

func NewConversationController(conversations *services.ConversationService, logger *slog.Logger) *ConversationController {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationController{conversations: conversations, logger: logger}
}

// GetConversations 当前用户的会话列表，只返回对方用户信息和最后一条消息
func (cc *ConversationController) GetConversations(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	conversations, err := cc.conversations.List(c.Request.Context(), user.ID)
	if err != nil {
		respondServiceError(c, cc.logger, err)
		return
	}
	utils.RespondSuccess(c, conversations, gin.H{"count": len(conversations)})
}
