package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"neuro-match/models"
)

// UserService 按 ID 或用户名查找用户
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) ByID(ctx context.Context, id string) (*models.User, error) {
	return s.find(ctx, "id = ?", id)
}

func (s *UserService) ByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.find(ctx, "username = ?", username)
}

func (s *UserService) find(ctx context.Context, query, value string) (*models.User, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrUserNotFound
	}
	var user models.User
	if err := s.db.WithContext(ctx).Where(query, value).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: find user: %v", ErrPersistence, err)
	}
	return &user, nil
}
