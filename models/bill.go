package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BillStage 代表法案目前的審議階段
type BillStage string

const (
	BillStageDraft         BillStage = "draft"
	BillStageFirstReading  BillStage = "first_reading"
	BillStageSecondReading BillStage = "second_reading"
	BillStageCommittee     BillStage = "committee"
	BillStageThirdReading  BillStage = "third_reading"
	BillStagePassed        BillStage = "passed"
	BillStageRejected      BillStage = "rejected"
)

// BillStatus 代表法案是否開放追蹤與表態
type BillStatus string

const (
	BillStatusPending BillStatus = "pending"
	BillStatusActive  BillStatus = "active"
	BillStatusClosed  BillStatus = "closed"
)

// Bill 代表一個法案
// 選民可以透過 VoterProfile 追蹤法案，審議階段變更時會發出通知
type Bill struct {
	gorm.Model

	ID          uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	Title       string    `gorm:"type:varchar(255);not null"`
	Description string    `gorm:"type:text;not null"`
	// Summary 是給一般民眾看的白話摘要
	Summary           string     `gorm:"type:text"`
	BillNumber        string     `gorm:"type:varchar(100);uniqueIndex:idx_bills_bill_number,where:deleted_at IS NULL;not null;<-:create"`
	House             string     `gorm:"type:varchar(100);not null"`
	Stage             BillStage  `gorm:"type:varchar(100);not null;default:draft"`
	Status            BillStatus `gorm:"type:varchar(100);not null;default:pending"`
	DeadlineForVoting time.Time  `gorm:"type:timestamp with time zone;not null"`
}

func (b *Bill) BeforeCreate(tx *gorm.DB) error {
	if b.ID != uuid.Nil {
		return nil
	}
	id, err := newID()
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}
