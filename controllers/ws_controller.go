package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"neuro-match/services"
)

// WSController 把已认证的 HTTP 请求升级为 websocket 并交给 Relay
type WSController struct {
	relay    *services.Relay
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSController(relay *services.Relay, allowedOrigins []string, logger *slog.Logger) *WSController {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSController{
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger: logger,
	}
}

// checkOrigin 未配置或配置了 * 时允许所有来源
func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

func (wc *WSController) HandleWebSocket(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	conn, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		wc.logger.Warn("websocket upgrade failed", "user", user.ID, "error", err)
		return
	}
	wc.relay.Serve(c.Request.Context(), conn, user.ID)
}
