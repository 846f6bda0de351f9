package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"neuro-match/models"
)

const (
	friendTable        = "user_friends"
	friendRequestTable = "friend_requests"
	searchLimit        = 20
)

// FriendService 好友请求与好友关系
type FriendService struct {
	db *gorm.DB
}

func NewFriendService(db *gorm.DB) *FriendService {
	return &FriendService{db: db}
}

func (s *FriendService) userExists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("%w: find user: %v", ErrPersistence, err)
	}
	return count > 0, nil
}

func (s *FriendService) areFriends(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Table(friendTable).
		Where("user_id = ? AND friend_id = ?", a, b).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: check friendship: %v", ErrPersistence, err)
	}
	return count > 0, nil
}

// SendRequest 记录 requester 向 target 发出的好友请求
func (s *FriendService) SendRequest(ctx context.Context, requesterID, targetID string) error {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return invalid("targetId", "is required")
	}
	if targetID == requesterID {
		return ErrSelfRequest
	}

	ok, err := s.userExists(ctx, targetID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}

	friends, err := s.areFriends(ctx, requesterID, targetID)
	if err != nil {
		return err
	}
	if friends {
		return ErrAlreadyFriends
	}

	var pending int64
	err = s.db.WithContext(ctx).Table(friendRequestTable).
		Where("user_id = ? AND requester_id = ?", targetID, requesterID).
		Count(&pending).Error
	if err != nil {
		return fmt.Errorf("%w: check request: %v", ErrPersistence, err)
	}
	if pending > 0 {
		return ErrRequestExists
	}

	err = s.db.WithContext(ctx).Table(friendRequestTable).Create(map[string]any{
		"user_id":      targetID,
		"requester_id": requesterID,
	}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRequestExists
		}
		return fmt.Errorf("%w: create request: %v", ErrPersistence, err)
	}
	return nil
}

// AcceptRequest 接受好友请求：删除请求，写入双向好友关系
func (s *FriendService) AcceptRequest(ctx context.Context, userID, requesterID string) error {
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return invalid("requesterId", "is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec("DELETE FROM "+friendRequestTable+" WHERE user_id = ? AND requester_id = ?", userID, requesterID)
		if res.Error != nil {
			return fmt.Errorf("%w: delete request: %v", ErrPersistence, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRequestNotFound
		}

		// 对方也发过请求时一并清除
		err := tx.Exec("DELETE FROM "+friendRequestTable+" WHERE user_id = ? AND requester_id = ?", requesterID, userID).Error
		if err != nil {
			return fmt.Errorf("%w: delete reverse request: %v", ErrPersistence, err)
		}

		rows := []map[string]any{
			{"user_id": userID, "friend_id": requesterID},
			{"user_id": requesterID, "friend_id": userID},
		}
		if err := tx.Table(friendTable).Create(rows).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyFriends
			}
			return fmt.Errorf("%w: create friendship: %v", ErrPersistence, err)
		}
		return nil
	})
}

// Search 按用户名或姓名模糊搜索（不区分大小写），不包含自己
func (s *FriendService) Search(ctx context.Context, userID, query string) ([]models.PublicUser, error) {
	result := make([]models.PublicUser, 0)
	query = strings.TrimSpace(query)
	if query == "" {
		return result, nil
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("id <> ?", userID).
		Where("(LOWER(username) LIKE ? ESCAPE '!' OR LOWER(firstname) LIKE ? ESCAPE '!' OR LOWER(lastname) LIKE ? ESCAPE '!')",
			pattern, pattern, pattern).
		Order("username ASC").
		Limit(searchLimit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("%w: search users: %v", ErrPersistence, err)
	}
	for i := range users {
		result = append(result, users[i].Public())
	}
	return result, nil
}

// ListFriends 返回用户的好友列表
func (s *FriendService) ListFriends(ctx context.Context, userID string) ([]models.PublicUser, error) {
	var friends []models.User
	err := s.db.WithContext(ctx).Model(&models.User{ID: userID}).Association("Friends").Find(&friends)
	if err != nil {
		return nil, fmt.Errorf("%w: list friends: %v", ErrPersistence, err)
	}
	result := make([]models.PublicUser, 0, len(friends))
	for i := range friends {
		result = append(result, friends[i].Public())
	}
	return result, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
