package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/identity"
)

func testUser() identity.User {
	classID := int64(4)
	return identity.User{ID: 12, Account: "stu012", DisplayName: "Mia", Role: identity.RoleStudent, ClassID: &classID}
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	issuer := NewIssuer("secret", "faceattend", time.Hour)

	token, exp, err := issuer.Issue(testUser())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	caller := claims.Caller()
	assert.Equal(t, int64(12), caller.ID)
	assert.Equal(t, identity.RoleStudent, caller.Role)
	assert.True(t, caller.InClass(4))
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	issuer := NewIssuer("secret", "faceattend", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := issuer.Issue(testUser())
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Parse(expired)
	assert.Error(t, err)

	other := NewIssuer("other-secret", "faceattend", time.Hour)
	foreign, _, err := other.Issue(testUser())
	require.NoError(t, err)
	_, err = issuer.Parse(foreign)
	assert.Error(t, err)

	wrongIssuer := NewIssuer("secret", "someone-else", time.Hour)
	tok, _, err := wrongIssuer.Issue(testUser())
	require.NoError(t, err)
	_, err = issuer.Parse(tok)
	assert.EqualError(t, err, "issuer mismatch")
}

func TestRequiredMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer := NewIssuer("secret", "faceattend", time.Hour)
	token, _, err := issuer.Issue(testUser())
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", Required(issuer), func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": caller.ID})
	})

	cases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{name: "header", target: "/me", header: "Bearer " + token, status: http.StatusOK},
		{name: "query", target: "/me?access_token=" + token, status: http.StatusOK},
		{name: "missing", target: "/me", status: http.StatusUnauthorized},
		{name: "garbage", target: "/me", header: "Bearer nope", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
