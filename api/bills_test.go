package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/models"
)

func createBillBody(number string) map[string]any {
	return map[string]any{
		"title":             "Finance Bill",
		"description":       "Amends the tax code",
		"summary":           "Raises VAT",
		"billNumber":        number,
		"house":             "national_assembly",
		"deadlineForVoting": time.Now().Add(30 * 24 * time.Hour).Format(time.RFC3339),
	}
}

func TestPostBill(t *testing.T) {
	t.Run("creates a bill in draft", func(t *testing.T) {
		_, router := setupServer(t)

		w := performRequest(t, router, http.MethodPost, "/bills/", createBillBody("FB-2025-001"), "")
		assert.Equal(t, http.StatusCreated, w.Code)

		var response BillResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, models.BillStageDraft, response.Stage)
		assert.Equal(t, models.BillStatusPending, response.Status)
	})

	t.Run("strips scripts from rich text", func(t *testing.T) {
		impl, router := setupServer(t)

		body := createBillBody("FB-2025-001")
		body["description"] = `<p>Amends the tax code</p><script>alert(1)</script>`
		w := performRequest(t, router, http.MethodPost, "/bills/", body, "")
		require.Equal(t, http.StatusCreated, w.Code)

		var bill models.Bill
		require.NoError(t, impl.db.First(&bill).Error)
		assert.NotContains(t, bill.Description, "<script>")
		assert.Contains(t, bill.Description, "Amends the tax code")
	})

	t.Run("rejects duplicate bill number", func(t *testing.T) {
		_, router := setupServer(t)

		w := performRequest(t, router, http.MethodPost, "/bills/", createBillBody("FB-2025-001"), "")
		require.Equal(t, http.StatusCreated, w.Code)

		w = performRequest(t, router, http.MethodPost, "/bills/", createBillBody("FB-2025-001"), "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestGetBills(t *testing.T) {
	impl, router := setupServer(t)
	for i := 0; i < 3; i++ {
		seedBill(t, impl, fmt.Sprintf("FB-2025-%03d", i))
	}
	closed := seedBill(t, impl, "FB-2025-900")
	require.NoError(t, impl.db.Model(&closed).Updates(map[string]any{
		"stage":  models.BillStagePassed,
		"status": models.BillStatusClosed,
	}).Error)

	t.Run("lists all bills", func(t *testing.T) {
		w := performRequest(t, router, http.MethodGet, "/bills/", nil, "")
		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 4, response.Count)
	})

	t.Run("filters by status", func(t *testing.T) {
		w := performRequest(t, router, http.MethodGet, "/bills/?status=closed", nil, "")
		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Count int            `json:"count"`
			Bills []BillResponse `json:"bills"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Equal(t, 1, response.Count)
		assert.Equal(t, closed.ID, response.Bills[0].ID)
	})
}

func TestPatchBillStage(t *testing.T) {
	t.Run("advances the stage and derives status", func(t *testing.T) {
		impl, router := setupServer(t)
		bill := seedBill(t, impl, "FB-2025-001")

		body := map[string]any{"stage": "second_reading"}
		w := performRequest(t, router, http.MethodPatch, "/bills/"+bill.ID.String()+"/stage/", body, "")
		assert.Equal(t, http.StatusOK, w.Code)

		var response BillResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, models.BillStageSecondReading, response.Stage)
		assert.Equal(t, models.BillStatusActive, response.Status)
	})

	t.Run("passed bill closes voting", func(t *testing.T) {
		impl, router := setupServer(t)
		bill := seedBill(t, impl, "FB-2025-001")

		body := map[string]any{"stage": "passed"}
		w := performRequest(t, router, http.MethodPatch, "/bills/"+bill.ID.String()+"/stage/", body, "")
		assert.Equal(t, http.StatusOK, w.Code)

		var updated models.Bill
		require.NoError(t, impl.db.Where("id = ?", bill.ID).First(&updated).Error)
		assert.Equal(t, models.BillStatusClosed, updated.Status)
	})

	t.Run("rejects unknown stage", func(t *testing.T) {
		impl, router := setupServer(t)
		bill := seedBill(t, impl, "FB-2025-001")

		body := map[string]any{"stage": "presidential_assent"}
		w := performRequest(t, router, http.MethodPatch, "/bills/"+bill.ID.String()+"/stage/", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("notifies followers", func(t *testing.T) {
		impl, router := setupServer(t)
		bill := seedBill(t, impl, "FB-2025-001")
		follower := registerDualUser(t, impl, "wanjiku")
		muted := registerDualUser(t, impl, "otieno")

		require.NoError(t, impl.db.Model(follower.Profile).Association("FollowedBills").Append(&bill))
		require.NoError(t, impl.db.Model(muted.Profile).Association("FollowedBills").Append(&bill))
		// otieno關掉了狀態變更通知
		require.NoError(t, impl.db.Model(muted.Profile).
			Update("notify_on_bill_status_change", false).Error)

		body := map[string]any{"stage": "committee"}
		w := performRequest(t, router, http.MethodPatch, "/bills/"+bill.ID.String()+"/stage/", body, "")
		require.Equal(t, http.StatusOK, w.Code)

		var notifications []models.Notification
		require.NoError(t, impl.db.Find(&notifications).Error)
		require.Len(t, notifications, 1)
		assert.Equal(t, follower.Profile.ID, notifications[0].ProfileID)
		assert.Equal(t, bill.ID, notifications[0].BillID)
		assert.Contains(t, notifications[0].Message, "committee")
	})
}

func TestGetBillEvents(t *testing.T) {
	t.Run("unknown bill", func(t *testing.T) {
		_, router := setupServer(t)

		w := performRequest(t, router, http.MethodGet, "/bills/"+uuid.NewString()+"/events/", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("streams stage events", func(t *testing.T) {
		impl, router := setupServer(t)
		bill := seedBill(t, impl, "FB-2025-001")

		ctx, cancel := context.WithCancel(context.Background())
		req := httptest.NewRequest(http.MethodGet, "/bills/"+bill.ID.String()+"/events/", nil).WithContext(ctx)
		w := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			defer close(done)
			router.ServeHTTP(w, req)
		}()

		// 等待handler完成訂閱
		time.Sleep(100 * time.Millisecond)
		err := impl.sseManager.Publish(bill.ID.String(), BillEvent{
			BillID: bill.ID,
			Stage:  models.BillStageCommittee,
		})
		require.NoError(t, err)

		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not stop after client disconnect")
		}

		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "event:stage")
		assert.Contains(t, w.Body.String(), "committee")
	})

	t.Run("sends keep-alive comments while idle", func(t *testing.T) {
		impl, router := setupServer(t)
		bill := seedBill(t, impl, "FB-2025-001")

		original := sseKeepAliveInterval
		sseKeepAliveInterval = 50 * time.Millisecond
		t.Cleanup(func() { sseKeepAliveInterval = original })

		ctx, cancel := context.WithCancel(context.Background())
		req := httptest.NewRequest(http.MethodGet, "/bills/"+bill.ID.String()+"/events/", nil).WithContext(ctx)
		w := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			defer close(done)
			router.ServeHTTP(w, req)
		}()

		time.Sleep(150 * time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not stop after client disconnect")
		}

		// 心跳必須是SSE註解行，單純的空白行會被部分代理吃掉
		assert.Contains(t, w.Body.String(), ": keep-alive\n\n")
	})
}
