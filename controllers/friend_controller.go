package controllers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"neuro-match/services"
	"neuro-match/utils"
)

type FriendController struct {
	friends *services.FriendService
	logger  *slog.Logger
}

func NewFriendController(friends *services.FriendService, logger *slog.Logger) *FriendController {
	if logger == nil {
		logger = slog.Default()
	}
	return &FriendController{friends: friends, logger: logger}
}

func (fc *FriendController) SendRequest(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var input struct {
		TargetID string `json:"targetId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	if err := fc.friends.SendRequest(c.Request.Context(), user.ID, input.TargetID); err != nil {
		respondServiceError(c, fc.logger, err)
		return
	}
	utils.RespondFields(c, http.StatusOK, gin.H{"message": "Friend request sent"})
}

func (fc *FriendController) AcceptRequest(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var input struct {
		RequesterID string `json:"requesterId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	if err := fc.friends.AcceptRequest(c.Request.Context(), user.ID, input.RequesterID); err != nil {
		respondServiceError(c, fc.logger, err)
		return
	}
	utils.RespondFields(c, http.StatusOK, gin.H{"message": "Friend request accepted"})
}

func (fc *FriendController) Search(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	users, err := fc.friends.Search(c.Request.Context(), user.ID, c.Query("query"))
	if err != nil {
		respondServiceError(c, fc.logger, err)
		return
	}
	utils.RespondFields(c, http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (fc *FriendController) ListFriends(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	friends, err := fc.friends.ListFriends(c.Request.Context(), user.ID)
	if err != nil {
		respondServiceError(c, fc.logger, err)
		return
	}
	utils.RespondFields(c, http.StatusOK, gin.H{"friends": friends, "count": len(friends)})
}
