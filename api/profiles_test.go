package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfiles(t *testing.T) {
	impl, router := setupServer(t)
	for i := 0; i < 3; i++ {
		registerDualUser(t, impl, fmt.Sprintf("voter%d", i))
	}

	t.Run("lists profiles", func(t *testing.T) {
		w := performRequest(t, router, http.MethodGet, "/profiles/", nil, "")
		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Count    int               `json:"count"`
			Profiles []ProfileResponse `json:"profiles"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 3, response.Count)
		assert.Equal(t, "voter0", response.Profiles[0].Username)
	})

	t.Run("respects size parameter", func(t *testing.T) {
		w := performRequest(t, router, http.MethodGet, "/profiles/?size=2", nil, "")
		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 2, response.Count)
	})

	t.Run("rejects invalid size", func(t *testing.T) {
		w := performRequest(t, router, http.MethodGet, "/profiles/?size=zero", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetProfile(t *testing.T) {
	impl, router := setupServer(t)
	user := registerDualUser(t, impl, "wanjiku")

	t.Run("returns the profile", func(t *testing.T) {
		w := performRequest(t, router, http.MethodGet, "/profiles/"+user.Profile.ID.String()+"/", nil, "")
		assert.Equal(t, http.StatusOK, w.Code)

		var response ProfileResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "wanjiku", response.Username)
		assert.Equal(t, "Wanjiku", response.FirstName)
	})

	t.Run("unknown profile", func(t *testing.T) {
		w := performRequest(t, router, http.MethodGet, "/profiles/"+uuid.NewString()+"/", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid profile id", func(t *testing.T) {
		w := performRequest(t, router, http.MethodGet, "/profiles/not-a-uuid/", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetProfileMe(t *testing.T) {
	impl, router := setupServer(t)
	user := registerDualUser(t, impl, "wanjiku")

	t.Run("with a valid token", func(t *testing.T) {
		token, err := impl.issueAccessToken(user)
		require.NoError(t, err)

		w := performRequest(t, router, http.MethodGet, "/profiles/me/", nil, token)
		assert.Equal(t, http.StatusOK, w.Code)

		var response ProfileResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "wanjiku", response.Username)
	})

	t.Run("without a token", func(t *testing.T) {
		w := performRequest(t, router, http.MethodGet, "/profiles/me/", nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("with a garbage token", func(t *testing.T) {
		w := performRequest(t, router, http.MethodGet, "/profiles/me/", nil, "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestFollowBill(t *testing.T) {
	t.Run("follow is idempotent", func(t *testing.T) {
		impl, router := setupServer(t)
		user := registerDualUser(t, impl, "wanjiku")
		bill := seedBill(t, impl, "FB-2025-001")
		target := "/profiles/" + user.Profile.ID.String() + "/follow_bill/"
		body := map[string]any{"billId": bill.ID}

		w := performRequest(t, router, http.MethodPost, target, body, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, countFollows(t, impl.db))

		// 重複追蹤是no-op，不是錯誤也不會多出關聯
		w = performRequest(t, router, http.MethodPost, target, body, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, countFollows(t, impl.db))
	})

	t.Run("unfollow removes the association", func(t *testing.T) {
		impl, router := setupServer(t)
		user := registerDualUser(t, impl, "wanjiku")
		bill := seedBill(t, impl, "FB-2025-001")
		body := map[string]any{"billId": bill.ID}

		w := performRequest(t, router, http.MethodPost, "/profiles/"+user.Profile.ID.String()+"/follow_bill/", body, "")
		require.Equal(t, http.StatusOK, w.Code)

		w = performRequest(t, router, http.MethodPost, "/profiles/"+user.Profile.ID.String()+"/unfollow_bill/", body, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 0, countFollows(t, impl.db))

		// 取消追蹤沒有追蹤的法案同樣是no-op
		w = performRequest(t, router, http.MethodPost, "/profiles/"+user.Profile.ID.String()+"/unfollow_bill/", body, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown bill", func(t *testing.T) {
		impl, router := setupServer(t)
		user := registerDualUser(t, impl, "wanjiku")

		body := map[string]any{"billId": uuid.New()}
		w := performRequest(t, router, http.MethodPost, "/profiles/"+user.Profile.ID.String()+"/follow_bill/", body, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing bill id", func(t *testing.T) {
		impl, router := setupServer(t)
		user := registerDualUser(t, impl, "wanjiku")

		w := performRequest(t, router, http.MethodPost, "/profiles/"+user.Profile.ID.String()+"/follow_bill/", map[string]any{}, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("followed bills show up in the profile", func(t *testing.T) {
		impl, router := setupServer(t)
		user := registerDualUser(t, impl, "wanjiku")
		bill := seedBill(t, impl, "FB-2025-001")

		body := map[string]any{"billId": bill.ID}
		w := performRequest(t, router, http.MethodPost, "/profiles/"+user.Profile.ID.String()+"/follow_bill/", body, "")
		require.Equal(t, http.StatusOK, w.Code)

		w = performRequest(t, router, http.MethodGet, "/profiles/"+user.Profile.ID.String()+"/", nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var response ProfileResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, []uuid.UUID{bill.ID}, response.FollowedBills)
	})
}

func TestProfileResponseOmitsCredentials(t *testing.T) {
	impl, router := setupServer(t)
	user := registerDualUser(t, impl, "wanjiku")

	w := performRequest(t, router, http.MethodGet, "/profiles/"+user.Profile.ID.String()+"/", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	// 認證欄位不能出現在公開的profile輸出裡
	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "password")
	assert.NotContains(t, raw, "email")
}
