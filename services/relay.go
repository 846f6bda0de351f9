package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/gorilla/websocket"

	"neuro-match/models"
)

// 客户端与服务端之间的事件名
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventSendAck        = "send_message_ack"
	EventJoined         = "joined"
	EventLeft           = "left"
	EventError          = "error"
)

// Envelope 所有 websocket 消息的外层结构
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SendMessagePayload struct {
	Ref         string  `json:"ref,omitempty"`
	SenderID    string  `json:"senderId"`
	RecipientID string  `json:"recipientId"`
	Text        string  `json:"text"`
	MomentID    *string `json:"momentId,omitempty"`
}

type SendMessageAck struct {
	Ref     string          `json:"ref,omitempty"`
	OK      bool            `json:"ok"`
	Message *models.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type RoomEvent struct {
	Room string `json:"room"`
}

type ErrorEvent struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// Relay 实时消息转发：房间管理 + 先持久化再广播
type Relay struct {
	hub    *Hub
	store  MessageStore
	fanout Fanout
	logger *slog.Logger
}

// NewRelay wires the relay; a nil fanout delivers in-process only.
func NewRelay(hub *Hub, store MessageStore, fanout Fanout, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if fanout == nil {
		fanout = NewLocalFanout(hub)
	}
	return &Relay{
		hub:    hub,
		store:  store,
		fanout: fanout,
		logger: logger.With("component", "relay"),
	}
}

// Serve 注册连接并阻塞直到连接断开
func (r *Relay) Serve(ctx context.Context, conn *websocket.Conn, userID string) {
	client := NewClient(userID, conn)
	if err := r.hub.Register(ctx, client); err != nil {
		r.logger.Warn("register failed", "user", userID, "error", err)
		_ = conn.Close()
		return
	}
	r.logger.Info("client connected", "client", client.ID, "user", userID)

	go client.writePump()
	err := client.readPump(ctx, func(ctx context.Context, raw []byte) {
		r.HandleEvent(ctx, client, raw)
	})
	if err != nil {
		r.logger.Debug("read loop ended", "client", client.ID, "error", err)
	}
	r.Disconnect(client)
}

// Disconnect 释放连接：移除所有房间成员关系
func (r *Relay) Disconnect(c *Client) {
	if err := r.hub.Unregister(context.Background(), c); err != nil && !errors.Is(err, ErrRelayUnavailable) {
		r.logger.Warn("unregister failed", "client", c.ID, "error", err)
	}
	r.logger.Info("client disconnected", "client", c.ID, "user", c.UserID)
}

// HandleEvent 解析并分发一条客户端消息
func (r *Relay) HandleEvent(ctx context.Context, c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		r.reply(ctx, c, EventError, ErrorEvent{Message: "invalid message format"})
		return
	}

	switch env.Event {
	case EventJoinRoom:
		room, err := decodeRoom(env.Data)
		if err != nil {
			r.reply(ctx, c, EventError, ErrorEvent{Event: env.Event, Message: err.Error()})
			return
		}
		if err := r.JoinRoom(ctx, c, room); err != nil {
			r.reply(ctx, c, EventError, ErrorEvent{Event: env.Event, Message: err.Error()})
			return
		}
		r.reply(ctx, c, EventJoined, RoomEvent{Room: room})

	case EventLeaveRoom:
		room, err := decodeRoom(env.Data)
		if err != nil {
			r.reply(ctx, c, EventError, ErrorEvent{Event: env.Event, Message: err.Error()})
			return
		}
		if !r.LeaveRoom(ctx, c, room) {
			r.reply(ctx, c, EventError, ErrorEvent{Event: env.Event, Message: ErrNotInRoom.Error()})
			return
		}
		r.reply(ctx, c, EventLeft, RoomEvent{Room: room})

	case EventSendMessage:
		var payload SendMessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			r.reply(ctx, c, EventSendAck, SendMessageAck{OK: false, Error: "invalid payload"})
			return
		}
		message, err := r.SendMessage(ctx, c, payload)
		ack := SendMessageAck{Ref: payload.Ref, OK: err == nil, Message: message}
		if err != nil {
			ack.Error = ackError(err)
		}
		r.reply(ctx, c, EventSendAck, ack)

	default:
		r.reply(ctx, c, EventError, ErrorEvent{Event: env.Event, Message: "unknown event"})
	}
}

// join_room 的参数可以是字符串，也可以是 {"room": "..."}
func decodeRoom(data json.RawMessage) (string, error) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil {
		var ev RoomEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return "", invalid("room", "must be a string")
		}
		room = ev.Room
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return "", invalid("room", "is required")
	}
	return room, nil
}

func ackError(err error) string {
	switch {
	case IsValidation(err):
		return err.Error()
	case errors.Is(err, ErrForbiddenSender):
		return ErrForbiddenSender.Error()
	case errors.Is(err, ErrRelayUnavailable):
		return ErrRelayUnavailable.Error()
	default:
		return "failed to save message"
	}
}

// JoinRoom 只允许加入包含自己 ID 的房间
func (r *Relay) JoinRoom(ctx context.Context, c *Client, room string) error {
	if !RoomMember(room, c.UserID) {
		return ErrForbiddenRoom
	}
	if err := r.hub.JoinRoom(ctx, c, room); err != nil {
		return err
	}
	r.logger.Debug("joined room", "client", c.ID, "room", room)
	return nil
}

func (r *Relay) LeaveRoom(ctx context.Context, c *Client, room string) bool {
	left, err := r.hub.LeaveRoom(ctx, c, room)
	if err != nil {
		r.logger.Warn("leave room failed", "client", c.ID, "room", room, "error", err)
	}
	return left
}

// SendMessage 先持久化，成功后广播给房间内的所有连接（包括发送者自己）
func (r *Relay) SendMessage(ctx context.Context, c *Client, payload SendMessagePayload) (*models.Message, error) {
	sender := strings.TrimSpace(payload.SenderID)
	if sender == "" {
		sender = c.UserID
	}
	if sender != c.UserID {
		return nil, ErrForbiddenSender
	}

	message, err := r.store.Append(ctx, sender, strings.TrimSpace(payload.RecipientID), payload.Text, payload.MomentID)
	if err != nil {
		if !IsValidation(err) {
			r.logger.Error("failed to persist message", "client", c.ID, "sender", sender, "error", err)
		}
		return nil, err
	}

	r.Deliver(ctx, message)
	return message, nil
}

// Deliver 把已保存的消息广播到对应房间；投递失败只记录日志，消息已经落库
func (r *Relay) Deliver(ctx context.Context, message *models.Message) {
	room := RoomKey(message.SenderID, message.RecipientID)
	payload, err := encodeEvent(EventReceiveMessage, message)
	if err != nil {
		r.logger.Error("failed to encode message", "message", message.MessageID, "error", err)
		return
	}
	if err := r.fanout.Publish(ctx, room, payload); err != nil {
		r.logger.Warn("broadcast failed", "room", room, "message", message.MessageID, "error", err)
		return
	}
	r.logger.Debug("message relayed", "room", room, "message", message.MessageID)
}

func (r *Relay) reply(ctx context.Context, c *Client, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		r.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}
	if _, err := r.hub.SendTo(ctx, c, payload); err != nil {
		r.logger.Debug("reply dropped", "client", c.ID, "event", event, "error", err)
	}
}

func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
