package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	internalS3 "recall/adapters/s3"
	"recall/models"
)

// List voter profiles
// (GET /profiles/)
func (impl *ServerImpl) GetProfiles(c *gin.Context) {
	const op = "GetProfiles"

	size := 50
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid size")})
			return
		}
		size = parsed
	}

	var profiles []models.VoterProfile
	if result := impl.db.Preload("User").Order("created_at").Limit(size).Find(&profiles); result.Error != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to list profiles, err=%w", op, result.Error))
		return
	}

	output := make([]ProfileResponse, len(profiles))
	for i := range profiles {
		output[i] = toProfileResponse(&profiles[i])
	}
	c.JSON(http.StatusOK, gin.H{"count": len(output), "profiles": output})
}

// Get a voter profile
// (GET /profiles/{profileID}/)
func (impl *ServerImpl) GetProfile(c *gin.Context) {
	const op = "GetProfile"
	profileID, err := uuid.Parse(c.Param("profileID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid profile id")})
		return
	}

	var profile models.VoterProfile
	if result := impl.db.Preload("User").Preload("FollowedBills").
		Where("id = ?", profileID).First(&profile); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": lo.ToPtr("Profile not found")})
			return
		}
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to find profile, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, toProfileResponse(&profile))
}

// Get the current user's profile
// (GET /profiles/me/)
func (impl *ServerImpl) GetProfileMe(c *gin.Context) {
	const op = "GetProfileMe"
	user, ok := impl.currentUser(c)
	if !ok {
		c.Status(http.StatusUnauthorized)
		return
	}

	var profile models.VoterProfile
	if result := impl.db.Preload("FollowedBills").
		Where("user_id = ?", user.ID).First(&profile); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": lo.ToPtr("Profile not found")})
			return
		}
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to find profile, err=%w", op, result.Error))
		return
	}
	profile.User = user
	c.JSON(http.StatusOK, toProfileResponse(&profile))
}

// Follow a bill
// (POST /profiles/{profileID}/follow_bill/)
//
// 追蹤已經追蹤的法案是no-op，不是錯誤
func (impl *ServerImpl) PostProfileFollowBill(c *gin.Context) {
	const op = "PostProfileFollowBill"
	profile, bill, ok := impl.profileAndBill(c)
	if !ok {
		return
	}

	var count int64
	if result := impl.db.Table("profile_followed_bills").
		Where("voter_profile_id = ? AND bill_id = ?", profile.ID, bill.ID).
		Count(&count); result.Error != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to check followed bills, err=%w", op, result.Error))
		return
	}
	if count == 0 {
		if err := impl.db.Model(profile).Association("FollowedBills").Append(bill); err != nil {
			c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to follow bill, err=%w", op, err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": lo.ToPtr("Bill followed successfully")})
}

// Unfollow a bill
// (POST /profiles/{profileID}/unfollow_bill/)
func (impl *ServerImpl) PostProfileUnfollowBill(c *gin.Context) {
	const op = "PostProfileUnfollowBill"
	profile, bill, ok := impl.profileAndBill(c)
	if !ok {
		return
	}

	if err := impl.db.Model(profile).Association("FollowedBills").Delete(bill); err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to unfollow bill, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": lo.ToPtr("Bill unfollowed successfully")})
}

// profileAndBill 解析追蹤操作共用的profile和bill，錯誤時直接回應
func (impl *ServerImpl) profileAndBill(c *gin.Context) (*models.VoterProfile, *models.Bill, bool) {
	const op = "profileAndBill"
	profileID, err := uuid.Parse(c.Param("profileID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid profile id")})
		return nil, nil, false
	}

	var request FollowBillRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("No bill ID provided")})
		return nil, nil, false
	}

	var profile models.VoterProfile
	if result := impl.db.Where("id = ?", profileID).First(&profile); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": lo.ToPtr("Profile not found")})
			return nil, nil, false
		}
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to find profile, err=%w", op, result.Error))
		return nil, nil, false
	}

	var bill models.Bill
	if result := impl.db.Where("id = ?", request.BillID).First(&bill); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": lo.ToPtr("Bill not found")})
			return nil, nil, false
		}
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to find bill, err=%w", op, result.Error))
		return nil, nil, false
	}
	return &profile, &bill, true
}

// Upload the current user's profile picture
// (POST /profiles/me/avatar/)
func (impl *ServerImpl) PostProfileMeAvatar(c *gin.Context) {
	const op = "PostProfileMeAvatar"
	user, ok := impl.currentUser(c)
	if !ok {
		c.Status(http.StatusUnauthorized)
		return
	}
	if impl.s3Operator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": lo.ToPtr("Avatar storage is not configured")})
		return
	}

	var profile models.VoterProfile
	if result := impl.db.Where("user_id = ?", user.ID).First(&profile); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": lo.ToPtr("Profile not found")})
			return
		}
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to find profile, err=%w", op, result.Error))
		return
	}

	// 限制圖片
	// 	1. 小於5MB
	// 	2. MIME類型為不包含腳本的圖片檔案
	body := internalS3.NewMaxSizeReader(c.Request.Body, 5<<20)
	file, err := io.ReadAll(body)
	if errors.As(err, &internalS3.ErrReachLimitType) {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to read image, err=%w", op, err))
		return
	}
	mimeType := http.DetectContentType(file)
	secure, ext := internalS3.CheckSecureImageAndGetExtension(mimeType)
	if !secure {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(fmt.Sprintf("Invalid image type: %s", mimeType))})
		return
	}

	url, err := impl.s3Operator.Upload(c.Request.Context(), uuid.New().String()+"."+ext, mimeType, file)
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to upload image, err=%w", op, err))
		return
	}

	if result := impl.db.Model(&profile).Update("profile_picture", url); result.Error != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to update profile, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{"profilePicture": url})
}
