package models

// Conversation 会话不落库，由两人之间的消息推导出来
type Conversation struct {
	ConversationID string     `json:"conversation_id"` // 与房间号相同
	Participant    PublicUser `json:"participant"`
	LastMessage    Message    `json:"lastMessage"`
}
