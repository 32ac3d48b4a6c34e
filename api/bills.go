package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"recall/models"
)

// 閒置連線的心跳間隔，測試會縮短它
var sseKeepAliveInterval = 30 * time.Second

var validBillStages = map[models.BillStage]struct{}{
	models.BillStageDraft:         {},
	models.BillStageFirstReading:  {},
	models.BillStageSecondReading: {},
	models.BillStageCommittee:     {},
	models.BillStageThirdReading:  {},
	models.BillStagePassed:        {},
	models.BillStageRejected:      {},
}

// Add a new bill
// (POST /bills/)
func (impl *ServerImpl) PostBill(c *gin.Context) {
	const op = "PostBill"
	var request CreateBillRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}

	bill := models.Bill{
		Title: request.Title,
		// 法案內文允許富文本，先過濾掉腳本
		Description:       impl.htmlChecker.Sanitize(request.Description),
		Summary:           impl.htmlChecker.Sanitize(request.Summary),
		BillNumber:        request.BillNumber,
		House:             request.House,
		Stage:             models.BillStageDraft,
		Status:            models.BillStatusPending,
		DeadlineForVoting: request.DeadlineForVoting,
	}
	if result := impl.db.Create(&bill); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"message": lo.ToPtr("Bill number already exists")})
			return
		}
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to create bill, err=%w", op, result.Error))
		return
	}

	c.Header("Location", bill.ID.String())
	c.JSON(http.StatusCreated, toBillResponse(&bill))
}

// List bills
// (GET /bills/)
func (impl *ServerImpl) GetBills(c *gin.Context) {
	const op = "GetBills"
	query := impl.db.Model(&models.Bill{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if stage := c.Query("stage"); stage != "" {
		query = query.Where("stage = ?", stage)
	}
	if house := c.Query("house"); house != "" {
		query = query.Where("house = ?", house)
	}
	query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: "deadline_for_voting"}})

	var bills []models.Bill
	if result := query.Find(&bills); result.Error != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to list bills, err=%w", op, result.Error))
		return
	}

	output := make([]BillResponse, len(bills))
	for i := range bills {
		output[i] = toBillResponse(&bills[i])
	}
	c.JSON(http.StatusOK, gin.H{"count": len(output), "bills": output})
}

// Get bill details
// (GET /bills/{billID}/)
func (impl *ServerImpl) GetBill(c *gin.Context) {
	const op = "GetBill"
	bill, ok := impl.findBill(c, op)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toBillResponse(bill))
}

// Update the bill stage
// (PATCH /bills/{billID}/stage/)
//
// 審議階段變更會廣播給追蹤者
func (impl *ServerImpl) PatchBillStage(c *gin.Context) {
	const op = "PatchBillStage"
	bill, ok := impl.findBill(c, op)
	if !ok {
		return
	}

	var request UpdateBillStageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}
	if _, ok := validBillStages[request.Stage]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(fmt.Sprintf("Invalid stage: %s", request.Stage))})
		return
	}

	bill.Stage = request.Stage
	switch request.Stage {
	case models.BillStagePassed, models.BillStageRejected:
		bill.Status = models.BillStatusClosed
	case models.BillStageDraft:
		bill.Status = models.BillStatusPending
	default:
		bill.Status = models.BillStatusActive
	}
	if result := impl.db.Save(bill); result.Error != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to update bill, err=%w", op, result.Error))
		return
	}

	impl.publishBillEvent(c.Request.Context(), BillEvent{
		BillID:     bill.ID,
		BillNumber: bill.BillNumber,
		Title:      bill.Title,
		Stage:      bill.Stage,
		Time:       time.Now(),
	})
	c.JSON(http.StatusOK, toBillResponse(bill))
}

// Track bill events
// (GET /bills/{billID}/events/)
func (impl *ServerImpl) GetBillEvents(c *gin.Context) {
	const op = "GetBillEvents"
	bill, ok := impl.findBill(c, op)
	if !ok {
		return
	}

	// SSE請求合法，開始初始化串流
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Transfer-Encoding", "chunked")
	ch, err := impl.sseManager.Subscribe(bill.ID.String())
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to subscribe to bill events, err=%w", op, err))
		return
	}
LOOP:
	for {
		select {
		case <-c.Request.Context().Done():
			impl.sseManager.Unsubscribe(bill.ID.String(), ch)
			break LOOP
		case event, open := <-ch:
			if !open {
				break LOOP
			}
			c.SSEvent("stage", event)
			w.Flush()
		// 一段時間沒有事件就發送一行SSE註解當心跳
		// 用註解而不是空白行，代理才不會把它合併掉
		case <-time.After(sseKeepAliveInterval):
			w.WriteString(": keep-alive\n\n")
			w.Flush()
		}
	}
}

func (impl *ServerImpl) findBill(c *gin.Context, op string) (*models.Bill, bool) {
	billID, err := uuid.Parse(c.Param("billID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid bill id")})
		return nil, false
	}
	var bill models.Bill
	if result := impl.db.Where("id = ?", billID).First(&bill); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": lo.ToPtr("Bill not found")})
			return nil, false
		}
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("[%s] Fail to find bill, err=%w", op, result.Error))
		return nil, false
	}
	return &bill, true
}
