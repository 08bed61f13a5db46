package models

import (
	"time"
)

const UserTable = "lsm_users"

// User 借用人（固定名单，由管理界面维护）
type User struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Name  string `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Phone string `gorm:"size:64" json:"phone"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return UserTable
}
