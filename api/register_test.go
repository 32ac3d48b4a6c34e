package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"recall/migrate"
	"recall/models"
)

func TestPostRegister(t *testing.T) {
	t.Run("creates a legacy voter", func(t *testing.T) {
		impl, router := setupServer(t)

		w := performRequest(t, router, http.MethodPost, "/register/", registrationBody("wanjiku"), "")
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NotEmpty(t, w.Header().Get("Location"))

		var voter models.Voter
		require.NoError(t, impl.db.Where("username = ?", "wanjiku").First(&voter).Error)
		assert.Nil(t, voter.MigratedAt)
		// 密碼必須雜湊後儲存
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(voter.Password), []byte("correct-horse")))

		// 只寫legacy這一側
		assert.EqualValues(t, 0, countRows(t, impl.db, &models.User{}))
		assert.EqualValues(t, 0, countRows(t, impl.db, &models.VoterProfile{}))
	})

	t.Run("rejects duplicate email or username", func(t *testing.T) {
		_, router := setupServer(t)

		w := performRequest(t, router, http.MethodPost, "/register/", registrationBody("wanjiku"), "")
		require.Equal(t, http.StatusCreated, w.Code)

		w = performRequest(t, router, http.MethodPost, "/register/", registrationBody("wanjiku"), "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("rejects invalid payload", func(t *testing.T) {
		_, router := setupServer(t)

		body := registrationBody("wanjiku")
		body["email"] = "not-an-email"
		w := performRequest(t, router, http.MethodPost, "/register/", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns 410 after legacy retirement", func(t *testing.T) {
		_, router := setupServer(t, migrate.WithLegacyRetired(true))

		w := performRequest(t, router, http.MethodPost, "/register/", registrationBody("wanjiku"), "")
		assert.Equal(t, http.StatusGone, w.Code)
	})
}

func TestPostUserRegister(t *testing.T) {
	t.Run("creates all three records", func(t *testing.T) {
		impl, router := setupServer(t)

		w := performRequest(t, router, http.MethodPost, "/user/register/", registrationBody("wanjiku"), "")
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Header().Get("Set-Cookie"), "access_token")

		assert.EqualValues(t, 1, countRows(t, impl.db, &models.Voter{}))
		assert.EqualValues(t, 1, countRows(t, impl.db, &models.User{}))
		assert.EqualValues(t, 1, countRows(t, impl.db, &models.VoterProfile{}))

		// 雙軌註冊的Voter直接標記為已遷移
		var voter models.Voter
		require.NoError(t, impl.db.Where("username = ?", "wanjiku").First(&voter).Error)
		assert.NotNil(t, voter.MigratedAt)
	})

	t.Run("conflict leaves no partial state", func(t *testing.T) {
		impl, router := setupServer(t)

		w := performRequest(t, router, http.MethodPost, "/user/register/", registrationBody("wanjiku"), "")
		require.Equal(t, http.StatusCreated, w.Code)

		// 相同username，不同email；哪一筆先撞到唯一鍵都必須整筆回滾
		body := registrationBody("wanjiku")
		body["email"] = "other@example.com"
		w = performRequest(t, router, http.MethodPost, "/user/register/", body, "")
		assert.Equal(t, http.StatusConflict, w.Code)

		assert.EqualValues(t, 1, countRows(t, impl.db, &models.Voter{}))
		assert.EqualValues(t, 1, countRows(t, impl.db, &models.User{}))
		assert.EqualValues(t, 1, countRows(t, impl.db, &models.VoterProfile{}))
	})
}

func TestDeleteUserMe(t *testing.T) {
	t.Run("deletes user and profile together", func(t *testing.T) {
		impl, router := setupServer(t)
		user := registerDualUser(t, impl, "wanjiku")
		token, err := impl.issueAccessToken(user)
		require.NoError(t, err)

		w := performRequest(t, router, http.MethodDelete, "/user/me/", nil, token)
		assert.Equal(t, http.StatusNoContent, w.Code)

		assert.EqualValues(t, 0, countRows(t, impl.db, &models.User{}))
		assert.EqualValues(t, 0, countRows(t, impl.db, &models.VoterProfile{}))
	})

	t.Run("requires authentication", func(t *testing.T) {
		_, router := setupServer(t)

		w := performRequest(t, router, http.MethodDelete, "/user/me/", nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
