package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"neuro-match/middlewares"
	"neuro-match/models"
	"neuro-match/services"
	"neuro-match/utils"
)

// respondServiceError 把 service 层的错误转换为 HTTP 响应
func respondServiceError(c *gin.Context, logger *slog.Logger, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		utils.RespondError(c, http.StatusBadRequest, "validation_error", ve.Error())
	case errors.Is(err, services.ErrUserExists):
		utils.RespondError(c, http.StatusConflict, "user_exists", "User already exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.RespondError(c, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
	case errors.Is(err, services.ErrInvalidToken), errors.Is(err, services.ErrExpiredToken):
		utils.RespondError(c, http.StatusBadRequest, "invalid_token", "Invalid or expired token")
	case errors.Is(err, services.ErrUserNotFound):
		utils.RespondError(c, http.StatusNotFound, "user_not_found", "User not found")
	case errors.Is(err, services.ErrSelfRequest):
		utils.RespondError(c, http.StatusBadRequest, "self_request", "Cannot send a friend request to yourself")
	case errors.Is(err, services.ErrAlreadyFriends):
		utils.RespondError(c, http.StatusConflict, "already_friends", "Already friends")
	case errors.Is(err, services.ErrRequestExists):
		utils.RespondError(c, http.StatusConflict, "request_exists", "Friend request already sent")
	case errors.Is(err, services.ErrRequestNotFound):
		utils.RespondError(c, http.StatusNotFound, "request_not_found", "No such friend request")
	default:
		logger.Error("request failed", "path", c.FullPath(), "error", err)
		utils.RespondError(c, http.StatusInternalServerError, "internal_error", "Something went wrong")
	}
}

// requireUser 取当前用户；TokenAuthMiddleware 之后不应失败
func requireUser(c *gin.Context) (*models.User, bool) {
	user, ok := middlewares.CurrentUser(c)
	if !ok {
		utils.RespondError(c, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return nil, false
	}
	return user, true
}

func bindError(c *gin.Context, err error) {
	utils.RespondError(c, http.StatusBadRequest, "validation_error", err.Error())
}
