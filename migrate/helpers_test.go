package migrate

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"recall/models"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

// setupDB 建立一個in-memory的sqlite資料庫
// 連線數限制為1，確保所有transaction都落在同一個memory DB上
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Voter{},
		&models.User{},
		&models.VoterProfile{},
		&models.Bill{},
		&models.Notification{},
	))
	return db
}

func newMigrator(t *testing.T, db *gorm.DB) *Migrator {
	t.Helper()
	return New(db,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHashCost(bcrypt.MinCost),
	)
}

// seedVoter 建立一筆還沒遷移的legacy記錄
func seedVoter(t *testing.T, db *gorm.DB, n int) models.Voter {
	t.Helper()
	voter := models.Voter{
		FirstName: "Wanjiku",
		LastName:  fmt.Sprintf("Voter%d", n),
		Email:     fmt.Sprintf("voter%d@example.com", n),
		Username:  fmt.Sprintf("voter%d", n),
		Password:  "$2a$04$legacyhash",
		Bio:       "legacy bio",
		County:    "Nairobi",
		Ward:      "Kilimani",
	}
	require.NoError(t, db.Create(&voter).Error)
	return voter
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}
