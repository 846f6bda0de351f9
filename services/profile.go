package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"neuro-match/models"
)

const (
	minAge         = 18
	maxAge         = 120
	maxBioLength   = 500
	maxPronounsLen = 32
)

// ProfileUpdate 只更新非 nil 的字段
type ProfileUpdate struct {
	Age            *int
	Height         *int
	Bio            *string
	Gender         *string
	Pronouns       *string
	Preferences    *models.Preferences
	ProfilePicture *string
}

func validAge(field string, age *int) error {
	if age != nil && (*age < minAge || *age > maxAge) {
		return invalid(field, fmt.Sprintf("must be between %d and %d", minAge, maxAge))
	}
	return nil
}

// columns 校验并转换为要更新的列
func (p ProfileUpdate) columns() (map[string]any, error) {
	cols := make(map[string]any)

	if err := validAge("age", p.Age); err != nil {
		return nil, err
	}
	if p.Age != nil {
		cols["age"] = *p.Age
	}
	if p.Height != nil {
		if *p.Height <= 0 {
			return nil, invalid("height", "must be positive")
		}
		cols["height"] = *p.Height
	}
	if p.Bio != nil {
		bio := strings.TrimSpace(*p.Bio)
		if utf8.RuneCountInString(bio) > maxBioLength {
			return nil, invalid("bio", fmt.Sprintf("must be at most %d characters", maxBioLength))
		}
		cols["bio"] = bio
	}
	if p.Gender != nil {
		cols["gender"] = strings.TrimSpace(*p.Gender)
	}
	if p.Pronouns != nil {
		pronouns := strings.TrimSpace(*p.Pronouns)
		if utf8.RuneCountInString(pronouns) > maxPronounsLen {
			return nil, invalid("pronouns", fmt.Sprintf("must be at most %d characters", maxPronounsLen))
		}
		cols["pronouns"] = pronouns
	}
	if p.Preferences != nil {
		ages := p.Preferences.AgeRange
		if err := validAge("preferences.ageRange.min", ages.Min); err != nil {
			return nil, err
		}
		if err := validAge("preferences.ageRange.max", ages.Max); err != nil {
			return nil, err
		}
		if ages.Min != nil && ages.Max != nil && *ages.Min > *ages.Max {
			return nil, invalid("preferences.ageRange", "min must not exceed max")
		}
		cols["pref_gender"] = strings.TrimSpace(p.Preferences.Gender)
		cols["pref_age_min"] = ages.Min
		cols["pref_age_max"] = ages.Max
	}
	if p.ProfilePicture != nil {
		picture := strings.TrimSpace(*p.ProfilePicture)
		// 只保存链接，不接收 data URL 上传
		if strings.HasPrefix(picture, "data:") {
			return nil, invalid("profilePicture", "must be a URL, uploads are not supported")
		}
		cols["profile_picture"] = picture
	}
	return cols, nil
}

// UpdateProfile 更新个人资料并返回更新后的用户
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*models.User, error) {
	cols, err := update.columns()
	if err != nil {
		return nil, err
	}
	if len(cols) > 0 {
		err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(cols).Error
		if err != nil {
			return nil, fmt.Errorf("%w: update profile: %v", ErrPersistence, err)
		}
		s.logger.Info("profile updated", "user", userID, "fields", len(cols))
	}
	return s.CurrentUser(ctx, userID)
}
