package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	redisAdapter "recall/adapters/redis"
	"recall/migrate"
)

// Run a migration batch
// (POST /admin/migration/run/)
//
// 同一時間只允許一個節點執行批次，透過Redis上的分散式鎖序列化
func (impl *ServerImpl) PostAdminMigrationRun(c *gin.Context) {
	const op = "PostAdminMigrationRun"
	unlock, err := impl.acquireMigrationLock(c.Request.Context())
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to acquire migration lock, err=%w", op, err))
		return
	}
	defer unlock()

	report, err := impl.migrator.MigrateAll(c.Request.Context())
	if errors.Is(err, migrate.ErrLegacyRetired) {
		c.JSON(http.StatusGone, gin.H{"message": lo.ToPtr("Legacy representation has been retired")})
		return
	}
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to run migration, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, report)
}

// Verify record-count parity
// (GET /admin/migration/parity/)
func (impl *ServerImpl) GetAdminMigrationParity(c *gin.Context) {
	const op = "GetAdminMigrationParity"
	parity, err := impl.migrator.VerifyParity(c.Request.Context())
	if errors.Is(err, migrate.ErrParityMismatch) {
		c.JSON(http.StatusConflict, gin.H{"message": lo.ToPtr("Parity mismatch"), "parity": parity})
		return
	}
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to verify parity, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, parity)
}

// Retire the legacy representation
// (POST /admin/migration/retire/)
//
// 不可逆；筆數核對沒過就拒絕執行
func (impl *ServerImpl) PostAdminMigrationRetire(c *gin.Context) {
	const op = "PostAdminMigrationRetire"
	unlock, err := impl.acquireMigrationLock(c.Request.Context())
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to acquire migration lock, err=%w", op, err))
		return
	}
	defer unlock()

	err = impl.migrator.RetireLegacy(c.Request.Context())
	switch {
	case errors.Is(err, migrate.ErrLegacyRetired):
		c.JSON(http.StatusGone, gin.H{"message": lo.ToPtr("Legacy representation has already been retired")})
	case errors.Is(err, migrate.ErrParityMismatch), errors.Is(err, migrate.ErrUnmigratedVoters):
		c.JSON(http.StatusConflict, gin.H{"message": lo.ToPtr(err.Error())})
	case err != nil:
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to retire legacy representation, err=%w", op, err))
	default:
		c.JSON(http.StatusOK, gin.H{"message": lo.ToPtr("Legacy representation retired")})
	}
}

// acquireMigrationLock 取得批次遷移的分散式鎖
// 沒有配置Redis時是單節點部署，migrateOne層的唯一鍵約束已經足夠
func (impl *ServerImpl) acquireMigrationLock(ctx context.Context) (func(), error) {
	if impl.redisClient == nil {
		return func() {}, nil
	}
	lockKey := impl.config.Redis.KeyPrefix + "migration:lock"
	dMutex := redisAdapter.NewAutoRenewMutex(impl.redisClient, lockKey)
	if _, err := dMutex.Lock(ctx); err != nil {
		return nil, err
	}
	return func() {
		if _, err := dMutex.Unlock(); err != nil {
			slog.Warn("Fail to release migration lock", slog.Any("error", err))
		}
	}, nil
}
