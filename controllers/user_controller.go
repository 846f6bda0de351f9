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

// AuthController 注册、登录、登出、邮箱验证
type AuthController struct {
	auth         *services.AuthService
	cookieSecure bool
	logger       *slog.Logger
}

func NewAuthController(auth *services.AuthService, cookieSecure bool, logger *slog.Logger) *AuthController {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthController{auth: auth, cookieSecure: cookieSecure, logger: logger}
}

func (ac *AuthController) setSessionCookie(c *gin.Context, token string) {
	maxAge := int(ac.auth.Tokens().TTL().Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middlewares.SessionCookie, token, maxAge, "/", "", ac.cookieSecure, true)
}

// 用户注册
func (ac *AuthController) Register(c *gin.Context) {
	var input struct {
		Username  string `json:"username" binding:"required"`
		Firstname string `json:"firstname" binding:"required"`
		Lastname  string `json:"lastname" binding:"required"`
		Email     string `json:"email" binding:"required,email"`
		Password  string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	user, token, err := ac.auth.Register(c.Request.Context(), services.RegisterInput{
		Username:  input.Username,
		Firstname: input.Firstname,
		Lastname:  input.Lastname,
		Email:     input.Email,
		Password:  input.Password,
	})
	if err != nil {
		respondServiceError(c, ac.logger, err)
		return
	}

	ac.setSessionCookie(c, token)
	utils.RespondFields(c, http.StatusCreated, gin.H{
		"message":              "User registered. Verification email sent.",
		"user":                 user,
		"requiresVerification": !user.IsVerified,
	})
}

// 用户登录
func (ac *AuthController) Login(c *gin.Context) {
	var input struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	user, token, err := ac.auth.Login(c.Request.Context(), input.Username, input.Password)
	if errors.Is(err, services.ErrNotVerified) {
		c.JSON(http.StatusForbidden, gin.H{
			"success":              false,
			"error":                "not_verified",
			"message":              "Please verify your email before logging in",
			"requiresVerification": true,
		})
		return
	}
	if err != nil {
		respondServiceError(c, ac.logger, err)
		return
	}

	ac.setSessionCookie(c, token)
	utils.RespondFields(c, http.StatusOK, gin.H{"user": user})
}

func (ac *AuthController) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middlewares.SessionCookie, "", -1, "/", "", ac.cookieSecure, true)
	utils.RespondFields(c, http.StatusOK, gin.H{"message": "Logged out"})
}

// GetUserInfo 当前登录用户，包含好友和好友请求
func (ac *AuthController) GetUserInfo(c *gin.Context) {
	current, ok := requireUser(c)
	if !ok {
		return
	}
	user, err := ac.auth.CurrentUser(c.Request.Context(), current.ID)
	if err != nil {
		respondServiceError(c, ac.logger, err)
		return
	}
	utils.RespondFields(c, http.StatusOK, gin.H{"user": user})
}

// UpdateProfile PUT /api/auth/me，只修改请求中出现的字段
func (ac *AuthController) UpdateProfile(c *gin.Context) {
	current, ok := requireUser(c)
	if !ok {
		return
	}
	var input struct {
		Age            *int                `json:"age"`
		Height         *int                `json:"height"`
		Bio            *string             `json:"bio"`
		Gender         *string             `json:"gender"`
		Pronouns       *string             `json:"pronouns"`
		Preferences    *models.Preferences `json:"preferences"`
		ProfilePicture *string             `json:"profilePicture"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	user, err := ac.auth.UpdateProfile(c.Request.Context(), current.ID, services.ProfileUpdate{
		Age:            input.Age,
		Height:         input.Height,
		Bio:            input.Bio,
		Gender:         input.Gender,
		Pronouns:       input.Pronouns,
		Preferences:    input.Preferences,
		ProfilePicture: input.ProfilePicture,
	})
	if err != nil {
		respondServiceError(c, ac.logger, err)
		return
	}
	utils.RespondFields(c, http.StatusOK, gin.H{"user": user})
}

// VerifyEmail GET /api/auth/verify/:token
func (ac *AuthController) VerifyEmail(c *gin.Context) {
	user, err := ac.auth.VerifyEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondServiceError(c, ac.logger, err)
		return
	}
	utils.RespondFields(c, http.StatusOK, gin.H{"message": "Email verified successfully", "user": user})
}
