package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"recall/models"
)

var (
	// ErrLegacyRetired 表示legacy表示法已經淘汰，不再接受相關操作
	ErrLegacyRetired = errors.New("legacy representation has been retired")
	// ErrParityMismatch 表示新舊表示法的筆數不一致，淘汰操作必須被拒絕
	ErrParityMismatch = errors.New("record-count parity mismatch between legacy and new representations")
	// ErrUnmigratedVoters 表示還有尚未遷移的Voter，淘汰操作必須被拒絕
	ErrUnmigratedVoters = errors.New("unmigrated voters remain")
	// ErrHandleCollision 表示Voter的email或username已經被某個User佔用
	// 依照人工審查原則，這種記錄不會自動合併，只會回報後跳過
	ErrHandleCollision = errors.New("voter identity collides with an existing user")
)

type migratorOptions struct {
	logger   *slog.Logger
	retired  bool
	hashCost int
}

type Option func(*migratorOptions)

// WithLogger 設置日誌記錄器
func WithLogger(logger *slog.Logger) Option {
	return func(o *migratorOptions) {
		o.logger = logger
	}
}

// WithLegacyRetired 設置啟動時legacy表示法是否已經淘汰
// 淘汰狀態不會存在資料庫裡，重啟後由部署設定帶入
func WithLegacyRetired(retired bool) Option {
	return func(o *migratorOptions) {
		o.retired = retired
	}
}

// WithHashCost 設置bcrypt的cost，測試時可以調低加速
func WithHashCost(cost int) Option {
	return func(o *migratorOptions) {
		o.hashCost = cost
	}
}

// Migrator 負責把legacy的Voter記錄轉換成 (User, VoterProfile) 配對，
// 並在雙軌期間維持兩種表示法的一致性
// 所有寫入都以明確的transaction為邊界，不依賴框架的隱式交易
type Migrator struct {
	db      *gorm.DB
	logger  *slog.Logger
	retired atomic.Bool

	hashCost int
}

func New(db *gorm.DB, opts ...Option) *Migrator {
	options := migratorOptions{
		logger:   slog.Default(),
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(&options)
	}

	m := &Migrator{
		db:       db,
		logger:   options.logger.With(slog.String("caller", "Migrator")),
		hashCost: options.hashCost,
	}
	m.retired.Store(options.retired)
	return m
}

// Retired 回報legacy表示法是否已經淘汰
func (m *Migrator) Retired() bool {
	return m.retired.Load()
}

// MigrateAll 遍歷所有還沒遷移的Voter，為每一筆建立 (User, VoterProfile) 配對
// 單筆失敗只會被記錄到Report裡，不會中斷整個批次
func (m *Migrator) MigrateAll(ctx context.Context) (Report, error) {
	const op = "MigrateAll"
	if m.retired.Load() {
		return Report{}, fmt.Errorf("[%s] err=%w", op, ErrLegacyRetired)
	}

	var voters []models.Voter
	if result := m.db.WithContext(ctx).Where("migrated_at IS NULL").Order("created_at").Find(&voters); result.Error != nil {
		return Report{}, fmt.Errorf("[%s] Fail to list unmigrated voters, err=%w", op, result.Error)
	}

	report := Report{Scanned: len(voters)}
	for i := range voters {
		if err := m.migrateOne(ctx, &voters[i]); err != nil {
			m.logger.Warn("Skip voter migration",
				slog.String("op", op),
				slog.String("voterID", voters[i].ID.String()),
				slog.Any("error", err))
			report.Failures = append(report.Failures, Failure{
				VoterID: voters[i].ID,
				Email:   voters[i].Email,
				Reason:  err.Error(),
			})
			continue
		}
		report.Migrated++
	}

	m.logger.Info("Migration batch finished",
		slog.String("op", op),
		slog.Int("scanned", report.Scanned),
		slog.Int("migrated", report.Migrated),
		slog.Int("failed", len(report.Failures)))
	return report, nil
}

// migrateOne 在單一transaction內完成一筆Voter的遷移
// email是新舊表示法之間的穩定對應鍵；如果已經有User佔用這個email或
// username，視為碰撞，整筆回滾交給人工審查
func (m *Migrator) migrateOne(ctx context.Context, voter *models.Voter) error {
	const op = "migrateOne"
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if result := tx.Model(&models.User{}).
			Where("email = ? OR username = ?", voter.Email, voter.Username).
			Count(&count); result.Error != nil {
			return fmt.Errorf("[%s] Fail to check for collisions, err=%w", op, result.Error)
		}
		if count > 0 {
			return fmt.Errorf("[%s] email=%s, err=%w", op, voter.Email, ErrHandleCollision)
		}

		// 認證欄位複製到User，雜湊原封不動
		user := models.User{
			Email:    voter.Email,
			Username: voter.Username,
			Password: voter.Password,
			IsActive: true,
		}
		if result := tx.Create(&user); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create user, err=%w", op, result.Error)
		}

		// 個人資料欄位複製到VoterProfile
		profile := models.VoterProfile{
			UserID:         user.ID,
			FirstName:      voter.FirstName,
			LastName:       voter.LastName,
			ProfilePicture: voter.ProfilePicture,
			Bio:            voter.Bio,
			County:         voter.County,
			Constituency:   voter.Constituency,
			Ward:           voter.Ward,
			IsActive:       true,
		}
		if result := tx.Create(&profile); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create voter profile, err=%w", op, result.Error)
		}

		if result := tx.Model(voter).Update("migrated_at", time.Now()); result.Error != nil {
			return fmt.Errorf("[%s] Fail to mark voter as migrated, err=%w", op, result.Error)
		}
		return nil
	})
}

// RegistrationInput 是雙軌期間註冊一個新選民需要的欄位
type RegistrationInput struct {
	FirstName      string
	LastName       string
	Email          string
	Username       string
	Password       string
	ProfilePicture string
	Bio            string
	County         string
	Constituency   string
	Ward           string
}

// RegisterDual 在雙軌期間建立Voter、User和VoterProfile三筆記錄，
// 三筆在同一個transaction內，全部成功或全部不留下任何狀態
// legacy淘汰之後不再寫入Voter，只建立新表示法的兩筆
func (m *Migrator) RegisterDual(ctx context.Context, input RegistrationInput) (*models.User, error) {
	const op = "RegisterDual"

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), m.hashCost)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to hash password, err=%w", op, err)
	}

	var user models.User
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !m.retired.Load() {
			// 建立當下就同時存在於兩種表示法，所以直接標記為已遷移
			now := time.Now()
			voter := models.Voter{
				FirstName:      input.FirstName,
				LastName:       input.LastName,
				Email:          input.Email,
				Username:       input.Username,
				Password:       string(hash),
				ProfilePicture: input.ProfilePicture,
				Bio:            input.Bio,
				County:         input.County,
				Constituency:   input.Constituency,
				Ward:           input.Ward,
				MigratedAt:     &now,
			}
			if result := tx.Create(&voter); result.Error != nil {
				return fmt.Errorf("[%s] Fail to create legacy voter, err=%w", op, result.Error)
			}
		}

		user = models.User{
			Email:    input.Email,
			Username: input.Username,
			Password: string(hash),
			IsActive: true,
		}
		if result := tx.Create(&user); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create user, err=%w", op, result.Error)
		}

		profile := models.VoterProfile{
			UserID:         user.ID,
			FirstName:      input.FirstName,
			LastName:       input.LastName,
			ProfilePicture: input.ProfilePicture,
			Bio:            input.Bio,
			County:         input.County,
			Constituency:   input.Constituency,
			Ward:           input.Ward,
			IsActive:       true,
		}
		if result := tx.Create(&profile); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create voter profile, err=%w", op, result.Error)
		}
		user.Profile = &profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyParity 核對新舊表示法的筆數
// 雙軌期間每個User都來自遷移或雙軌註冊，兩邊都會留下已遷移的Voter，
// 所以三個數字必須一致，否則回傳ErrParityMismatch
func (m *Migrator) VerifyParity(ctx context.Context) (Parity, error) {
	const op = "VerifyParity"
	var parity Parity

	if result := m.db.WithContext(ctx).Model(&models.Voter{}).
		Where("migrated_at IS NOT NULL").Count(&parity.MigratedVoters); result.Error != nil {
		return parity, fmt.Errorf("[%s] Fail to count migrated voters, err=%w", op, result.Error)
	}
	if result := m.db.WithContext(ctx).Model(&models.User{}).Count(&parity.Principals); result.Error != nil {
		return parity, fmt.Errorf("[%s] Fail to count users, err=%w", op, result.Error)
	}
	if result := m.db.WithContext(ctx).Model(&models.VoterProfile{}).Count(&parity.Profiles); result.Error != nil {
		return parity, fmt.Errorf("[%s] Fail to count voter profiles, err=%w", op, result.Error)
	}

	if parity.MigratedVoters != parity.Principals || parity.Principals != parity.Profiles {
		return parity, fmt.Errorf("[%s] voters=%d users=%d profiles=%d, err=%w",
			op, parity.MigratedVoters, parity.Principals, parity.Profiles, ErrParityMismatch)
	}
	return parity, nil
}

// RetireLegacy 是不可逆的終點操作：確認沒有漏遷移的記錄、筆數一致之後，
// 硬刪除所有Voter並關閉雙軌寫入
// 任何檢查失敗都會拒絕執行，直到人工確認為止
func (m *Migrator) RetireLegacy(ctx context.Context) error {
	const op = "RetireLegacy"
	if m.retired.Load() {
		return fmt.Errorf("[%s] err=%w", op, ErrLegacyRetired)
	}

	var pending int64
	if result := m.db.WithContext(ctx).Model(&models.Voter{}).
		Where("migrated_at IS NULL").Count(&pending); result.Error != nil {
		return fmt.Errorf("[%s] Fail to count unmigrated voters, err=%w", op, result.Error)
	}
	if pending > 0 {
		return fmt.Errorf("[%s] %d voters not migrated, err=%w", op, pending, ErrUnmigratedVoters)
	}

	if _, err := m.VerifyParity(ctx); err != nil {
		return err
	}

	if result := m.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Unscoped().Delete(&models.Voter{}); result.Error != nil {
		return fmt.Errorf("[%s] Fail to delete legacy voters, err=%w", op, result.Error)
	}

	m.retired.Store(true)
	m.logger.Info("Legacy representation retired", slog.String("op", op))
	return nil
}

// DeletePrincipal 在同一個transaction內刪除User和它的VoterProfile
// VoterProfile不能脫離User存在，追蹤名單的關聯也會一併清掉
func (m *Migrator) DeletePrincipal(ctx context.Context, userID uuid.UUID) error {
	const op = "DeletePrincipal"
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if result := tx.Where("id = ?", userID).First(&user); result.Error != nil {
			return fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error)
		}

		var profile models.VoterProfile
		result := tx.Where("user_id = ?", userID).First(&profile)
		if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("[%s] Fail to find voter profile, err=%w", op, result.Error)
		}
		if result.Error == nil {
			if err := tx.Model(&profile).Association("FollowedBills").Clear(); err != nil {
				return fmt.Errorf("[%s] Fail to clear followed bills, err=%w", op, err)
			}
			if result := tx.Delete(&profile); result.Error != nil {
				return fmt.Errorf("[%s] Fail to delete voter profile, err=%w", op, result.Error)
			}
		}

		if result := tx.Delete(&user); result.Error != nil {
			return fmt.Errorf("[%s] Fail to delete user, err=%w", op, result.Error)
		}
		return nil
	})
}
