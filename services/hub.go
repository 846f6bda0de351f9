package services

import (
	"context"
	"log/slog"
	"sync"
)

type requestKind int

const (
	opRegister requestKind = iota
	opUnregister
	opJoin
	opLeave
	opBroadcast
	opSendTo
)

// hubRequest 所有对连接表的修改都经由同一个 channel 进入 Run 循环，保证先后顺序
type hubRequest struct {
	kind    requestKind
	client  *Client
	room    string
	payload []byte
	result  chan int
}

// Hub 连接与房间注册表，只由 Run 所在的 goroutine 修改
type Hub struct {
	clients  map[*Client]map[string]struct{} // client -> 已加入的房间
	rooms    map[string]map[*Client]struct{} // room -> 成员
	requests chan hubRequest
	done     chan struct{}
	mu       sync.RWMutex
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:  make(map[*Client]map[string]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		requests: make(chan hubRequest, 256),
		done:     make(chan struct{}),
		logger:   logger.With("component", "hub"),
	}
}

// Run 处理注册、注销、加入/离开房间和广播，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("shutting down", "clients", h.ClientCount())
			h.closeAll()
			close(h.done)
			return
		case req := <-h.requests:
			n := h.handle(req)
			if req.result != nil {
				req.result <- n
			}
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) handle(req hubRequest) int {
	switch req.kind {
	case opRegister:
		return h.handleRegister(req.client)
	case opUnregister:
		return h.handleUnregister(req.client)
	case opJoin:
		return h.handleJoin(req.client, req.room)
	case opLeave:
		return h.handleLeave(req.client, req.room)
	case opBroadcast:
		return h.handleBroadcast(req.room, req.payload)
	case opSendTo:
		return h.handleSendTo(req.client, req.payload)
	}
	return 0
}

func (h *Hub) handleRegister(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		return 0
	}
	h.clients[c] = make(map[string]struct{})
	h.logger.Debug("client registered", "client", c.ID, "user", c.UserID)
	return 1
}

func (h *Hub) handleUnregister(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[c]
	if !ok {
		return 0
	}
	for room := range joined {
		h.removeMember(room, c)
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Debug("client unregistered", "client", c.ID, "user", c.UserID, "rooms", len(joined))
	return 1
}

func (h *Hub) handleJoin(c *Client, room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[c]
	if !ok {
		return 0
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	joined[room] = struct{}{}
	h.logger.Debug("joined room", "client", c.ID, "room", room, "members", len(members))
	return 1
}

func (h *Hub) handleLeave(c *Client, room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[c]
	if !ok {
		return 0
	}
	if _, in := joined[room]; !in {
		return 0
	}
	delete(joined, room)
	h.removeMember(room, c)
	return 1
}

// removeMember 调用方需持有写锁；房间为空时一并删除
func (h *Hub) removeMember(room string, c *Client) {
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) handleBroadcast(room string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		if h.deliver(c, payload) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) handleSendTo(c *Client, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return 0
	}
	if h.deliver(c, payload) {
		return 1
	}
	return 0
}

// deliver 不阻塞：发送缓冲已满时跳过该连接
func (h *Hub) deliver(c *Client, payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		h.logger.Warn("send buffer full, skipping client", "client", c.ID, "user", c.UserID)
		return false
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
	}
	h.clients = make(map[*Client]map[string]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
}

// submit 把请求交给 Run 循环并等待结果
func (h *Hub) submit(ctx context.Context, req hubRequest) (int, error) {
	req.result = make(chan int, 1)
	select {
	case h.requests <- req:
	case <-h.done:
		return 0, ErrRelayUnavailable
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-req.result:
		return n, nil
	case <-h.done:
		return 0, ErrRelayUnavailable
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *Hub) Register(ctx context.Context, c *Client) error {
	_, err := h.submit(ctx, hubRequest{kind: opRegister, client: c})
	return err
}

// Unregister 移除连接及其全部房间成员关系，并关闭发送通道
func (h *Hub) Unregister(ctx context.Context, c *Client) error {
	_, err := h.submit(ctx, hubRequest{kind: opUnregister, client: c})
	return err
}

func (h *Hub) JoinRoom(ctx context.Context, c *Client, room string) error {
	n, err := h.submit(ctx, hubRequest{kind: opJoin, client: c, room: room})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRelayUnavailable
	}
	return nil
}

// LeaveRoom reports whether the client was a member of room.
func (h *Hub) LeaveRoom(ctx context.Context, c *Client, room string) (bool, error) {
	n, err := h.submit(ctx, hubRequest{kind: opLeave, client: c, room: room})
	return n == 1, err
}

// Broadcast 发送给房间内所有本地连接，返回成功投递的数量
func (h *Hub) Broadcast(ctx context.Context, room string, payload []byte) (int, error) {
	return h.submit(ctx, hubRequest{kind: opBroadcast, room: room, payload: payload})
}

func (h *Hub) SendTo(ctx context.Context, c *Client, payload []byte) (bool, error) {
	n, err := h.submit(ctx, hubRequest{kind: opSendTo, client: c, payload: payload})
	return n == 1, err
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the rooms the client has joined.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(h.clients[c]))
	for room := range h.clients[c] {
		rooms = append(rooms, room)
	}
	return rooms
}
