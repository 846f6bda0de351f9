package routes

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"neuro-match/controllers"
	"neuro-match/middlewares"
)

// Handlers 路由需要的所有 controller
type Handlers struct {
	Auth          *controllers.AuthController
	Friends       *controllers.FriendController
	Messages      *controllers.MessageController
	Conversations *controllers.ConversationController
	Users         *controllers.UserController
	WS            *controllers.WSController
	Health        *controllers.HealthController
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(h Handlers, auth middlewares.Authenticator, allowedOrigins []string, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestLogger(logger))

	// 配置跨域中间件；携带 cookie 时不能使用 *
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	r.Use(cors.New(corsConfig))

	requireAuth := middlewares.TokenAuthMiddleware(auth)

	r.GET("/health", h.Health.Health)
	r.GET("/ws", requireAuth, h.WS.HandleWebSocket)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/logout", h.Auth.Logout)
		authGroup.GET("/verify/:token", h.Auth.VerifyEmail)
		authGroup.GET("/me", requireAuth, h.Auth.GetUserInfo)
		authGroup.PUT("/me", requireAuth, h.Auth.UpdateProfile)
	}

	friends := api.Group("/friends", requireAuth)
	{
		friends.GET("", h.Friends.ListFriends)
		friends.POST("/send-request", h.Friends.SendRequest)
		friends.POST("/accept-request", h.Friends.AcceptRequest)
		friends.GET("/search", h.Friends.Search)
	}

	users := api.Group("/users", requireAuth)
	{
		users.GET("/id/:id", h.Users.GetByID)
		users.GET("/username/:username", h.Users.GetByUsername)
	}

	messages := api.Group("/messages", requireAuth)
	{
		messages.GET("", h.Messages.GetConversation)
		messages.POST("", h.Messages.SendMessage)
		messages.GET("/conversations", h.Conversations.GetConversations)
	}

	return r
}
