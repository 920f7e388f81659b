package controllers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader carries the identifier of the caller, set by the
	// authenticating gateway in front of this service.
	UserIDHeader = "X-User-ID"
	// UserIDCookie is read when the header is absent; beacon requests
	// sent during page teardown cannot set headers but do carry cookies.
	UserIDCookie = "user_id"

	AdminTokenHeader = "X-Admin-Token"
	// AdminTokenQuery serves websocket clients, which cannot set headers.
	AdminTokenQuery = "token"

	contextUserID = "userID"
)

type AuthController struct {
	adminToken string
}

type AuthResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

func NewAuthController(adminToken string) *AuthController {
	return &AuthController{
		adminToken: adminToken,
	}
}

// sendResponse is a helper function to send consistent JSON responses
func sendResponse(c *gin.Context, status int, message string, data interface{}, err interface{}) {
	c.JSON(status, AuthResponse{
		Status:  status,
		Message: message,
		Data:    data,
		Error:   err,
	})
}

// AuthMiddleware resolves the already-authenticated caller identity.
func (ac *AuthController) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			if cookie, err := c.Cookie(UserIDCookie); err == nil {
				userID = strings.TrimSpace(cookie)
			}
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, AuthResponse{
				Status:  http.StatusUnauthorized,
				Message: "Authentication required",
				Error:   "No user identity found",
			})
			return
		}

		c.Set(contextUserID, userID)
		c.Next()
	}
}

// AdminMiddleware guards operator routes with the shared admin token.
func (ac *AuthController) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ac.adminToken == "" {
			c.Next()
			return
		}

		token := c.GetHeader(AdminTokenHeader)
		if token == "" {
			token = c.Query(AdminTokenQuery)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, AuthResponse{
				Status:  http.StatusUnauthorized,
				Message: "Authentication required",
				Error:   "No admin token found",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(ac.adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, AuthResponse{
				Status:  http.StatusForbidden,
				Message: "Access denied",
				Error:   "Invalid admin token",
			})
			return
		}
		c.Next()
	}
}

// authorizeUser rejects requests acting on another user's sessions.
func authorizeUser(c *gin.Context, userID string) bool {
	caller, _ := c.Get(contextUserID)
	if caller != userID {
		sendResponse(c, http.StatusForbidden, "Access denied", nil, "User identity does not match request")
		return false
	}
	return true
}
