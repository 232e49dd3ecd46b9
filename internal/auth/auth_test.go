package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner() *Signer {
	return NewSigner("planner", "secret", 15*time.Minute, 24*time.Hour)
}

func TestIssueAndParse(t *testing.T) {
	s := testSigner()
	pair, err := s.Issue("phone-1")
	require.NoError(t, err)

	claims, err := s.Parse(pair.AccessToken, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "phone-1", claims.Subject)

	_, err = s.Parse(pair.RefreshToken, KindAccess)
	assert.ErrorIs(t, err, errKind)
}

func TestParseRejects(t *testing.T) {
	s := testSigner()
	pair, err := s.Issue("phone-1")
	require.NoError(t, err)

	other := NewSigner("someone-else", "secret", time.Minute, time.Minute)
	_, err = other.Parse(pair.AccessToken, KindAccess)
	assert.ErrorIs(t, err, errIssuer)

	wrongKey := NewSigner("planner", "nope", time.Minute, time.Minute)
	_, err = wrongKey.Parse(pair.AccessToken, KindAccess)
	assert.Error(t, err)

	late := testSigner()
	late.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = late.Parse(pair.AccessToken, KindAccess)
	assert.Error(t, err, "expired access token")
}

func TestRefresh(t *testing.T) {
	s := testSigner()
	pair, err := s.Issue("phone-1")
	require.NoError(t, err)

	next, err := s.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	claims, err := s.Parse(next.AccessToken, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "phone-1", claims.Subject)

	_, err = s.Refresh(pair.AccessToken)
	assert.Error(t, err)
}

func TestDeviceAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := testSigner()
	pair, err := s.Issue("phone-1")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/", DeviceAuth(s), func(c *gin.Context) {
		claims := c.MustGet(ClaimsKey).(Claims)
		c.String(http.StatusOK, claims.Subject)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "refresh token", header: "Bearer " + pair.RefreshToken, want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + pair.AccessToken, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "phone-1", w.Body.String())
			}
		})
	}
}
