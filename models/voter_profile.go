package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VoterProfile 存放非認證用途的選民資料
// 和 User 維持一對一關係，不能脫離 User 單獨存在；刪除 User 時必須一併刪除
type VoterProfile struct {
	gorm.Model

	ID     uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_voter_profiles_user_id,where:deleted_at IS NULL;not null;<-:create"`

	FirstName      string `gorm:"type:varchar(100);not null"`
	LastName       string `gorm:"type:varchar(100);not null"`
	ProfilePicture string `gorm:"type:text"`
	Bio            string `gorm:"type:text"`

	// 選區資訊，用來配對民意代表
	County       string `gorm:"type:varchar(100)"`
	Constituency string `gorm:"type:varchar(100)"`
	Ward         string `gorm:"type:varchar(100)"`

	// 通知偏好
	NotifyOnNewBills         bool `gorm:"not null;default:true"`
	NotifyOnBillStatusChange bool `gorm:"not null;default:true"`
	NotifyOnVote             bool `gorm:"not null;default:true"`

	IsActive bool `gorm:"not null;default:true"`

	User          *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	FollowedBills []Bill `gorm:"many2many:profile_followed_bills"`
}

func (p *VoterProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID != uuid.Nil {
		return nil
	}
	id, err := newID()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}
