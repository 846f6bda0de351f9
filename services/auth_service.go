package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"
	"gorm.io/gorm"

	"neuro-match/models"
)

const (
	verificationTokenCharacters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	verificationTokenLength     = 40
	minPasswordLength           = 6
)

type RegisterInput struct {
	Username  string
	Firstname string
	Lastname  string
	Email     string
	Password  string
}

// AuthService 注册、登录、邮箱验证和会话解析
type AuthService struct {
	db        *gorm.DB
	tokens    *TokenManager
	hasher    *PasswordHasher
	mailer    Mailer
	publicURL string
	newToken  func() string
	logger    *slog.Logger
}

func NewAuthService(db *gorm.DB, tokens *TokenManager, hasher *PasswordHasher, mailer Mailer, publicURL string, logger *slog.Logger) (*AuthService, error) {
	generate, err := nanoid.CustomASCII(verificationTokenCharacters, verificationTokenLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create token generator: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		db:        db,
		tokens:    tokens,
		hasher:    hasher,
		mailer:    mailer,
		publicURL: publicURL,
		newToken:  generate,
		logger:    logger.With("component", "auth"),
	}, nil
}

func (s *AuthService) Tokens() *TokenManager { return s.tokens }

func (in *RegisterInput) normalize() error {
	in.Username = strings.TrimSpace(in.Username)
	in.Firstname = strings.TrimSpace(in.Firstname)
	in.Lastname = strings.TrimSpace(in.Lastname)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	switch {
	case in.Username == "":
		return invalid("username", "is required")
	case in.Firstname == "":
		return invalid("firstname", "is required")
	case in.Lastname == "":
		return invalid("lastname", "is required")
	case in.Email == "":
		return invalid("email", "is required")
	case len(in.Password) < minPasswordLength:
		return invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return invalid("email", "is not a valid address")
	}
	return nil
}

// Register 创建未验证的用户，发送验证邮件，并返回会话 token
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	if err := in.normalize(); err != nil {
		return nil, "", err
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ? OR username = ?", in.Email, in.Username).
		Count(&count).Error
	if err != nil {
		return nil, "", fmt.Errorf("%w: check user: %v", ErrPersistence, err)
	}
	if count > 0 {
		return nil, "", ErrUserExists
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:                uuid.NewString(),
		Username:          in.Username,
		Firstname:         in.Firstname,
		Lastname:          in.Lastname,
		Email:             in.Email,
		Password:          hash,
		VerificationToken: s.newToken(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", ErrUserExists
		}
		return nil, "", fmt.Errorf("%w: create user: %v", ErrPersistence, err)
	}

	link := verificationLink(s.publicURL, user.VerificationToken)
	if err := s.mailer.SendVerification(ctx, user.Email, user.Username, link); err != nil {
		s.logger.Warn("verification mail failed", "user", user.ID, "error", err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	s.logger.Info("user registered", "user", user.ID, "username", user.Username)
	return &user, token, nil
}

// Login 用户名 + 密码登录；未验证邮箱的账号返回 ErrNotVerified
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("%w: find user: %v", ErrPersistence, err)
	}
	if !s.hasher.Verify(password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}
	if !user.IsVerified {
		return &user, "", ErrNotVerified
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	return &user, token, nil
}

// VerifyEmail 标记账号已验证，token 只能使用一次
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("verification_token = ?", token).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: find user: %v", ErrPersistence, err)
	}

	err = s.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"is_verified":        true,
		"verification_token": "",
	}).Error
	if err != nil {
		return nil, fmt.Errorf("%w: verify user: %v", ErrPersistence, err)
	}
	user.IsVerified = true
	user.VerificationToken = ""
	return &user, nil
}

// Authenticate 校验会话 token 并加载对应用户
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	return s.findUser(ctx, s.db, userID)
}

// CurrentUser 返回用户及其好友和待处理的好友请求
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	return s.findUser(ctx, s.db.Preload("Friends").Preload("FriendRequests"), userID)
}

func (s *AuthService) findUser(ctx context.Context, db *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: find user: %v", ErrPersistence, err)
	}
	return &user, nil
}
