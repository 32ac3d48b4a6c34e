package api

import (
	"time"

	"github.com/google/uuid"

	"recall/models"
)

// BillEvent 是法案審議階段變更時廣播給追蹤者的事件
type BillEvent struct {
	BillID     uuid.UUID        `json:"billId" msgpack:"billId"`
	BillNumber string           `json:"billNumber" msgpack:"billNumber"`
	Title      string           `json:"title" msgpack:"title"`
	Stage      models.BillStage `json:"stage" msgpack:"stage"`
	Time       time.Time        `json:"time" msgpack:"time"`
}

// RegistrationRequest 是 /register/ 和 /user/register/ 共用的註冊欄位
type RegistrationRequest struct {
	FirstName    string `json:"firstName" binding:"required"`
	LastName     string `json:"lastName" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Username     string `json:"username" binding:"required"`
	Password     string `json:"password" binding:"required,min=8"`
	Bio          string `json:"bio"`
	County       string `json:"county"`
	Constituency string `json:"constituency"`
	Ward         string `json:"ward"`
}

type FollowBillRequest struct {
	BillID uuid.UUID `json:"billId" binding:"required"`
}

type CreateBillRequest struct {
	Title             string    `json:"title" binding:"required"`
	Description       string    `json:"description" binding:"required"`
	Summary           string    `json:"summary"`
	BillNumber        string    `json:"billNumber" binding:"required"`
	House             string    `json:"house" binding:"required"`
	DeadlineForVoting time.Time `json:"deadlineForVoting" binding:"required"`
}

type UpdateBillStageRequest struct {
	Stage models.BillStage `json:"stage" binding:"required"`
}

type ProfileResponse struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	County         string    `json:"county,omitempty"`
	Constituency   string    `json:"constituency,omitempty"`
	Ward           string    `json:"ward,omitempty"`
	IsActive       bool      `json:"isActive"`
	FollowedBills  []uuid.UUID `json:"followedBills,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toProfileResponse(profile *models.VoterProfile) ProfileResponse {
	resp := ProfileResponse{
		ID:             profile.ID,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		ProfilePicture: profile.ProfilePicture,
		Bio:            profile.Bio,
		County:         profile.County,
		Constituency:   profile.Constituency,
		Ward:           profile.Ward,
		IsActive:       profile.IsActive,
		CreatedAt:      profile.CreatedAt,
	}
	if profile.User != nil {
		resp.Username = profile.User.Username
	}
	for _, bill := range profile.FollowedBills {
		resp.FollowedBills = append(resp.FollowedBills, bill.ID)
	}
	return resp
}

type BillResponse struct {
	ID                uuid.UUID         `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Summary           string            `json:"summary,omitempty"`
	BillNumber        string            `json:"billNumber"`
	House             string            `json:"house"`
	Stage             models.BillStage  `json:"stage"`
	Status            models.BillStatus `json:"status"`
	DeadlineForVoting time.Time         `json:"deadlineForVoting"`
}

func toBillResponse(bill *models.Bill) BillResponse {
	return BillResponse{
		ID:                bill.ID,
		Title:             bill.Title,
		Description:       bill.Description,
		Summary:           bill.Summary,
		BillNumber:        bill.BillNumber,
		House:             bill.House,
		Stage:             bill.Stage,
		Status:            bill.Status,
		DeadlineForVoting: bill.DeadlineForVoting,
	}
}
