package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate 自动迁移所有表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Message{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
