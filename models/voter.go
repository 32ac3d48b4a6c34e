package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Voter 代表舊版的選民記錄
// 認證欄位和個人資料欄位混在同一張表中，雙軌期間和新的 User/VoterProfile 並存，
// 遷移完成並確認筆數一致後整張表會被淘汰
type Voter struct {
	gorm.Model

	ID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	FirstName string    `gorm:"type:varchar(100);not null"`
	LastName  string    `gorm:"type:varchar(100);not null"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex:idx_voters_email,where:deleted_at IS NULL;not null;<-:create"`
	Username  string    `gorm:"type:varchar(100);uniqueIndex:idx_voters_username,where:deleted_at IS NULL;not null;<-:create"`
	// Password 存的是 bcrypt 雜湊，遷移時原封不動複製到 User
	Password string `gorm:"type:varchar(128);not null"`

	// 個人資料欄位，遷移時複製到 VoterProfile
	ProfilePicture string `gorm:"type:text"`
	Bio            string `gorm:"type:text"`
	County         string `gorm:"type:varchar(100)"`
	Constituency   string `gorm:"type:varchar(100)"`
	Ward           string `gorm:"type:varchar(100)"`
	IsVerified     bool   `gorm:"not null;default:false"`

	// MigratedAt 是遷移標記，為 NULL 代表還沒有對應的 (User, VoterProfile)
	MigratedAt *time.Time `gorm:"index"`
}

func (v *Voter) BeforeCreate(tx *gorm.DB) error {
	if v.ID != uuid.Nil {
		return nil
	}
	id, err := newID()
	if err != nil {
		return err
	}
	v.ID = id
	return nil
}
