package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pingInterval   = 10 * time.Second // 发送 Ping 的间隔
	pongTimeout    = 15 * time.Second // 超过 15 秒未收到 Pong 断开连接
	writeWait      = 10 * time.Second
	maxMessageSize = 16 * 1024
	sendBufferSize = 64
)

// Client 一个 websocket 连接；同一用户可以有多个连接
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
}

// readPump 读取客户端消息并交给 handle，连接断开或出错时返回
func (c *Client) readPump(ctx context.Context, handle func(ctx context.Context, raw []byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil
		}
		// 兼容文本心跳
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		if string(msg) == "pong" {
			continue
		}
		handle(ctx, msg)
	}
}

// writePump 把 send 中的消息写入连接，并定时发送 Ping；send 被关闭后发送 Close 帧
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				return
			}
		}
	}
}
