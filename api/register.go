package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"recall/migrate"
	"recall/models"
)

// Register a legacy voter
// (POST /register/)
//
// 只寫入legacy的Voter表，對應的 (User, VoterProfile) 由批次遷移補齊
// legacy淘汰之後回傳410
func (impl *ServerImpl) PostRegister(c *gin.Context) {
	const op = "PostRegister"
	if impl.migrator.Retired() {
		c.JSON(http.StatusGone, gin.H{"message": lo.ToPtr("Legacy registration has been retired")})
		return
	}

	var request RegistrationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to hash password, err=%w", op, err))
		return
	}

	voter := models.Voter{
		FirstName:    request.FirstName,
		LastName:     request.LastName,
		Email:        request.Email,
		Username:     request.Username,
		Password:     string(hash),
		Bio:          impl.htmlChecker.Sanitize(request.Bio),
		County:       request.County,
		Constituency: request.Constituency,
		Ward:         request.Ward,
	}
	if result := impl.db.Create(&voter); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"message": lo.ToPtr("Email or username already registered")})
			return
		}
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to create voter, err=%w", op, result.Error))
		return
	}

	c.Header("Location", voter.ID.String())
	c.JSON(http.StatusCreated, gin.H{"id": voter.ID})
}

// Register a voter in both representations
// (POST /user/register/)
//
// 雙軌期間的註冊入口，Voter、User和VoterProfile在同一個transaction內建立
func (impl *ServerImpl) PostUserRegister(c *gin.Context) {
	const op = "PostUserRegister"

	var request RegistrationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}

	user, err := impl.migrator.RegisterDual(c.Request.Context(), migrate.RegistrationInput{
		FirstName:    request.FirstName,
		LastName:     request.LastName,
		Email:        request.Email,
		Username:     request.Username,
		Password:     request.Password,
		Bio:          impl.htmlChecker.Sanitize(request.Bio),
		County:       request.County,
		Constituency: request.Constituency,
		Ward:         request.Ward,
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		c.JSON(http.StatusConflict, gin.H{"message": lo.ToPtr("Email or username already registered")})
		return
	}
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to register, err=%w", op, err))
		return
	}

	token, err := impl.issueAccessToken(user)
	if err != nil {
		// 註冊已經完成，簽發失敗只記錄，使用者可以之後再登入
		slog.Error("Fail to issue access token", slog.String("op", op), slog.Any("error", err))
	} else {
		c.SetCookie("access_token", token, int(impl.config.Auth.ExpireDuration.Seconds()), "/", "", true, true)
	}

	profile := user.Profile
	profile.User = user
	c.Header("Location", profile.ID.String())
	c.JSON(http.StatusCreated, toProfileResponse(profile))
}

// Delete the current user's account
// (DELETE /user/me/)
//
// User和VoterProfile在同一個transaction內一起刪除
func (impl *ServerImpl) DeleteUserMe(c *gin.Context) {
	const op = "DeleteUserMe"
	user, ok := impl.currentUser(c)
	if !ok {
		c.Status(http.StatusUnauthorized)
		return
	}

	if err := impl.migrator.DeletePrincipal(c.Request.Context(), user.ID); err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to delete account, err=%w", op, err))
		return
	}
	c.SetCookie("access_token", "", -1, "/", "", true, true)
	c.Status(http.StatusNoContent)
}
