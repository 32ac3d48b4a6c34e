package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"recall/adapters/sse"
	"recall/migrate"
	"recall/models"
)

func init() {
	gin.SetMode(gin.TestMode)
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupServer 建立一個跑在sqlite上的測試伺服器，不連Redis和S3
func setupServer(t *testing.T, migratorOpts ...migrate.Option) (*ServerImpl, *gin.Engine) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// 連線數限制為1，確保所有transaction都落在同一個memory DB上
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

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	sseManager, err := sse.NewConnectionManager[BillEvent](sse.WithLogger[BillEvent](discardLogger()))
	require.NoError(t, err)

	opts := append([]migrate.Option{
		migrate.WithLogger(discardLogger()),
		migrate.WithHashCost(bcrypt.MinCost),
	}, migratorOpts...)

	impl := &ServerImpl{
		db:          db,
		migrator:    migrate.New(db, opts...),
		htmlChecker: bluemonday.UGCPolicy(),
		sseManager:  sseManager,
		config: ServerConfig{
			Auth: AuthConfig{
				PrivateKey:     privateKey,
				Issuer:         "recall",
				Audience:       "recall",
				ExpireDuration: time.Hour,
			},
		},
	}
	t.Cleanup(impl.sseManager.Done)

	router := gin.New()
	RegisterHandlers(router, impl)
	return impl, router
}

// performRequest 發送一個JSON請求，token不為空時放進access_token cookie
func performRequest(t *testing.T, router *gin.Engine, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func registrationBody(name string) map[string]any {
	return map[string]any{
		"firstName":    "Wanjiku",
		"lastName":     "Kamau",
		"email":        name + "@example.com",
		"username":     name,
		"password":     "correct-horse",
		"bio":          "civic minded",
		"county":       "Nairobi",
		"constituency": "Westlands",
		"ward":         "Kitisuru",
	}
}

// registerDualUser 直接透過migrator建立一個雙軌註冊的使用者
func registerDualUser(t *testing.T, impl *ServerImpl, name string) *models.User {
	t.Helper()
	user, err := impl.migrator.RegisterDual(context.Background(), migrate.RegistrationInput{
		FirstName: "Wanjiku",
		LastName:  "Kamau",
		Email:     name + "@example.com",
		Username:  name,
		Password:  "correct-horse",
		County:    "Nairobi",
	})
	require.NoError(t, err)
	return user
}

func seedBill(t *testing.T, impl *ServerImpl, number string) models.Bill {
	t.Helper()
	bill := models.Bill{
		Title:             "Finance Bill",
		Description:       "Amends the tax code",
		BillNumber:        number,
		House:             "national_assembly",
		Stage:             models.BillStageDraft,
		Status:            models.BillStatusPending,
		DeadlineForVoting: time.Now().Add(30 * 24 * time.Hour),
	}
	require.NoError(t, impl.db.Create(&bill).Error)
	return bill
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}

func countFollows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Table("profile_followed_bills").Count(&count).Error)
	return count
}
