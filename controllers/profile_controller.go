package controllers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"neuro-match/models"
	"neuro-match/services"
)

// UserController 查看其他用户的个人主页，返回裸 JSON
type UserController struct {
	users  *services.UserService
	logger *slog.Logger
}

func NewUserController(users *services.UserService, logger *slog.Logger) *UserController {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserController{users: users, logger: logger}
}

// GetByID GET /api/users/id/:id
func (uc *UserController) GetByID(c *gin.Context) {
	uc.respond(c, func() (*models.User, error) {
		return uc.users.ByID(c.Request.Context(), c.Param("id"))
	})
}

// GetByUsername GET /api/users/username/:username
func (uc *UserController) GetByUsername(c *gin.Context) {
	uc.respond(c, func() (*models.User, error) {
		return uc.users.ByUsername(c.Request.Context(), c.Param("username"))
	})
}

func (uc *UserController) respond(c *gin.Context, find func() (*models.User, error)) {
	user, err := find()
	if err != nil {
		respondServiceError(c, uc.logger, err)
		return
	}
	c.JSON(http.StatusOK, user.Profile())
}
