package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
)

const testSecret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(testSecret, leave.Actor{UserID: "mgr-7", UserName: "Dana"}, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, token)

	require.NoError(t, err)
	assert.Equal(t, "mgr-7", claims.UserID)
	assert.Equal(t, "Dana", claims.Name)
}

func TestParseTokenRejects(t *testing.T) {
	valid, err := GenerateToken(testSecret, leave.Actor{UserID: "mgr-7"}, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(testSecret, leave.Actor{UserID: "mgr-7"}, -time.Minute)
	require.NoError(t, err)
	anonymous, err := GenerateToken(testSecret, leave.Actor{}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other-secret", valid},
		{"expired", testSecret, expired},
		{"missing uid", testSecret, anonymous},
		{"garbage", testSecret, "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.secret, tt.token)
			assert.Error(t, err)
		})
	}
}

func TestBearerAuthentication(t *testing.T) {
	// GIVEN: A router that requires bearer tokens and a pending request
	ts := newTestServer(t, RouterOptions{JWTSecret: testSecret})
	require.NoError(t, ts.handler.LoadScenarioByID(t.Context(), "basic"))
	created := decodeAs[RequestDTO](t, ts.do(http.MethodPost, "/api/requests", weekRequest("emp-001"), nil))
	approvePath := "/api/requests/" + created.ID + "/approve"

	token, err := GenerateToken(testSecret, leave.Actor{UserID: "mgr-7", UserName: "Dana"}, time.Hour)
	require.NoError(t, err)

	t.Run("identity headers are ignored", func(t *testing.T) {
		rec := ts.do(http.MethodPost, approvePath, nil, managerHeaders)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := ts.do(http.MethodPost, approvePath, nil, map[string]string{"Authorization": "Bearer nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		rec := ts.do(http.MethodPost, approvePath, nil, map[string]string{"Authorization": token})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token is rejected on read endpoints too", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/api/requests", nil, map[string]string{"Authorization": "Bearer nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		rec := ts.do(http.MethodPost, approvePath, nil, map[string]string{"Authorization": "Bearer " + token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decodeAs[RequestDTO](t, rec)
		assert.Equal(t, "mgr-7", got.ActedBy)
		assert.Equal(t, "Dana", got.ActedByName)
	})
}
