package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"neuro-match/models"
)

// ConversationService 汇总用户参与的所有会话
type ConversationService struct {
	db *gorm.DB
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

type pairLast struct {
	SenderID    string
	RecipientID string
	LastID      uint
}

// List 返回每个对话对象的最后一条消息，按最近活跃排序
func (s *ConversationService) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	var pairs []pairLast
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("sender_id, recipient_id, MAX(id) AS last_id").
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Group("sender_id, recipient_id").
		Scan(&pairs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", ErrPersistence, err)
	}

	// 两个方向合并为一个会话
	lastByPeer := make(map[string]uint)
	for _, p := range pairs {
		peer := p.RecipientID
		if p.SenderID != userID {
			peer = p.SenderID
		}
		if p.LastID > lastByPeer[peer] {
			lastByPeer[peer] = p.LastID
		}
	}

	result := make([]models.Conversation, 0, len(lastByPeer))
	if len(lastByPeer) == 0 {
		return result, nil
	}

	ids := lo.Values(lastByPeer)
	peers := lo.Keys(lastByPeer)

	// 最后一条消息和对方用户信息并行加载
	var (
		messages []models.Message
		users    []models.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.db.WithContext(gctx).Where("id IN ?", ids).Find(&messages).Error; err != nil {
			return fmt.Errorf("%w: load last messages: %v", ErrPersistence, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.db.WithContext(gctx).Where("id IN ?", peers).Find(&users).Error; err != nil {
			return fmt.Errorf("%w: load participants: %v", ErrPersistence, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	usersByID := lo.KeyBy(users, func(u models.User) string { return u.ID })

	for _, m := range messages {
		peer := m.RecipientID
		if m.SenderID != userID {
			peer = m.SenderID
		}
		participant := models.PublicUser{ID: peer}
		if u, ok := usersByID[peer]; ok {
			participant = u.Public()
		}
		result = append(result, models.Conversation{
			ConversationID: RoomKey(userID, peer),
			Participant:    participant,
			LastMessage:    m,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessage.ID > result[j].LastMessage.ID
	})
	return result, nil
}
