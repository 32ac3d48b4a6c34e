package models

import (
	"github.com/google/uuid"
)

// newID 產生一個 UUIDv7 作為主鍵
// 改由應用程式產生而不是資料庫預設值，讓 postgres 和測試用的 sqlite 可以共用同一組 model
func newID() (uuid.UUID, error) {
	return uuid.NewV7()
}
