// Package domain 定义了应用程序的核心数据结构。
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// User 表示应用程序中的用户（用户目录 + 积分余额 + 商店库存）。
type User struct {
	ID        uint      `gorm:"primaryKey"` // 用户唯一标识符 (主键)
	Username  string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null"`
	Password  string    `gorm:"type:text;not null"` // 存储的是哈希后的密码
	Email     string    `gorm:"type:varchar(191);uniqueIndex:idx_email"`
	AvatarURL string    `gorm:"type:text"`          // 头像地址，可为空
	Points    int       `gorm:"not null;default:0"` // 积分余额，任何扣减都以 0 为下限
	Inventory string    `gorm:"type:text"`          // 已购商店物品 id 列表，JSON 字符串
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// InventoryItems 把 Inventory 字段 (JSON 字符串) 解析为物品 id 列表。
func (u *User) InventoryItems() ([]string, error) {
	if u.Inventory == "" || u.Inventory == "null" {
		return []string{}, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(u.Inventory), &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inventory: %w", err)
	}
	return items, nil
}

// SetInventoryItems 把物品 id 列表序列化回 Inventory 字段。
func (u *User) SetInventoryItems(items []string) error {
	bytes, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory: %w", err)
	}
	u.Inventory = string(bytes)
	return nil
}

// Profile 导出用户进入房间时的展示信息。
func (u *User) Profile() Profile {
	return Profile{
		UserID:    u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		Points:    u.Points,
	}
}
