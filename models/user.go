package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 是新版資料模型中只負責認證的身份記錄
// 個人資料一律放在一對一的 VoterProfile，這張表只保留登入需要的欄位
type User struct {
	gorm.Model

	ID       uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	Email    string    `gorm:"type:varchar(255);uniqueIndex:idx_users_email,where:deleted_at IS NULL;not null;<-:create"`
	Username string    `gorm:"type:varchar(100);uniqueIndex:idx_users_username,where:deleted_at IS NULL;not null;<-:create"`
	// Password 存的是 bcrypt 雜湊
	Password string `gorm:"type:varchar(128);not null"`
	IsActive bool   `gorm:"not null;default:true"`

	Profile *VoterProfile `gorm:"foreignKey:UserID"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID != uuid.Nil {
		return nil
	}
	id, err := newID()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}
