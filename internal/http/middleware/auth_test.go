package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/nurpe/tender-eval/internal/model"
)

type fakeParser map[string]model.Principal

func (p fakeParser) Parse(token string) (model.Principal, error) {
	principal, ok := p[token]
	if !ok {
		return model.Principal{}, errors.New("unknown token")
	}
	return principal, nil
}

func TestAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	principal := model.Principal{UserID: uuid.New(), OrgID: uuid.New(), Role: model.UserRoleAdmin}

	router := gin.New()
	router.Use(Auth(fakeParser{"good": principal}))
	router.GET("/me", func(c *gin.Context) {
		got, ok := MustPrincipal(c)
		assert.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": got.UserID.String()})
	})

	cases := map[string]struct {
		header string
		want   int
	}{
		"valid":        {"Bearer good", http.StatusOK},
		"padded":       {"  Bearer  good ", http.StatusOK},
		"missing":      {"", http.StatusUnauthorized},
		"wrong scheme": {"Basic good", http.StatusUnauthorized},
		"empty token":  {"Bearer ", http.StatusUnauthorized},
		"unknown":      {"Bearer bad", http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestMustPrincipal_Missing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := MustPrincipal(c)
	assert.False(t, ok)
}
