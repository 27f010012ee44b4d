package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Northcast-Media/airsync/internal/model"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", hash)

	require.True(t, CheckPassword(hash, "correct horse battery staple"))
	require.False(t, CheckPassword(hash, "wrong"))
}

type fakeUserStore struct {
	users map[int]*model.User
}

func (s *fakeUserStore) GetUserByID(id int) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: no rows", id)
	}
	return u, nil
}

func authedRouter(secret string, store UserStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTMiddleware(secret, store), func(c *gin.Context) {
		user, ok := GetCurrentUser(c)
		if !ok {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": user.ID})
	})
	return r
}

func get(r *gin.Engine, auth string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	r.ServeHTTP(w, req)
	return w.Code
}

func TestJWTMiddleware(t *testing.T) {
	const secret = "test-secret"
	store := &fakeUserStore{users: map[int]*model.User{7: {ID: 7, Email: "op@example.com"}}}
	r := authedRouter(secret, store)

	token, err := GenerateJWT(7, secret)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, get(r, "Bearer "+token))
	require.Equal(t, http.StatusUnauthorized, get(r, ""))
	require.Equal(t, http.StatusUnauthorized, get(r, "Bearer not-a-token"))
	require.Equal(t, http.StatusUnauthorized, get(r, "Basic "+token))

	// valid signature but unknown user
	ghost, err := GenerateJWT(999, secret)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+ghost))

	// token signed with a different secret
	forged, err := GenerateJWT(7, "other-secret")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+forged))
}
