package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification 代表寫給單一選民的通知
// 由法案事件的背景worker根據追蹤名單和通知偏好產生
type Notification struct {
	gorm.Model

	ID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	ProfileID uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	BillID    uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Message   string    `gorm:"type:text;not null;<-:create"`
	ReadAt    *time.Time

	Profile *VoterProfile `gorm:"foreignKey:ProfileID"`
	Bill    *Bill         `gorm:"foreignKey:BillID"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID != uuid.Nil {
		return nil
	}
	id, err := newID()
	if err != nil {
		return err
	}
	n.ID = id
	return nil
}
