package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestValidateSessionRequest(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantOK      bool
		wantUser    string
		wantInst    string
	}{
		{"json body", "application/json", `{"userId":"u1","clientInstanceId":"tab1"}`, true, "u1", "tab1"},
		{"beacon text body", "text/plain;charset=UTF-8", `{"userId":"u1","clientInstanceId":"tab1"}`, true, "u1", "tab1"},
		{"instance optional", "application/json", `{"userId":" u1 "}`, true, "u1", ""},
		{"missing user", "application/json", `{"clientInstanceId":"tab1"}`, false, "", ""},
		{"blank user", "application/json", `{"userId":"   "}`, false, "", ""},
		{"not json", "application/json", `userId=u1`, false, "", ""},
		{"instance too long", "application/json", `{"userId":"u1","clientInstanceId":"` + strings.Repeat("x", 129) + `"}`, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", tt.contentType)

			req, ok := ValidateSessionRequest(c)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Equal(t, http.StatusBadRequest, w.Code)
				return
			}
			require.NotNil(t, req)
			assert.Equal(t, tt.wantUser, req.UserID)
			assert.Equal(t, tt.wantInst, req.ClientInstanceID)
		})
	}
}

func TestValidateActiveSessionsQuery(t *testing.T) {
	tests := []struct {
		query  string
		wantOK bool
	}{
		{"", true},
		{"page=2&limit=25", true},
		{"limit=101", false},
		{"page=0", true},
		{"page=-1", false},
		{"page=abc", false},
		{"page=1000000", true},
		{"page=1000001", false},
		{"page=92233720368547759", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)

			_, ok := ValidateActiveSessionsQuery(c)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
