package controllers

import (
	"errors"
	"net/http"

	"github.com/Krish-Depani/session-admission/liveness"
	"github.com/Krish-Depani/session-admission/storage"
	"github.com/Krish-Depani/session-admission/validators"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type SessionController struct {
	svc *liveness.Service
}

func NewSessionController(svc *liveness.Service) *SessionController {
	return &SessionController{
		svc: svc,
	}
}

// Register admits a client instance of the caller
func (sc *SessionController) Register(c *gin.Context) {
	req, ok := validators.ValidateSessionRequest(c)
	if !ok {
		return
	}
	if !authorizeUser(c, req.UserID) {
		return
	}

	res, err := sc.svc.Register(c.Request.Context(), liveness.Request{
		UserID:           req.UserID,
		ClientInstanceID: req.ClientInstanceID,
		IPAddress:        c.ClientIP(),
		UserAgent:        c.GetHeader("User-Agent"),
		Displace:         req.Displace,
	})
	if err != nil {
		sc.handleError(c, "Registration failed", "admitted", err)
		return
	}

	sendResponse(c, http.StatusOK, "Session admitted", map[string]interface{}{
		"admitted":                 true,
		"refreshed":                res.Refreshed,
		"liveCount":                res.LiveCount,
		"displaced":                res.Displaced,
		"heartbeatIntervalSeconds": int(res.Policy.HeartbeatInterval.Seconds()),
	}, nil)
}

// Heartbeat keeps a client instance live, re-admitting it if it expired
func (sc *SessionController) Heartbeat(c *gin.Context) {
	req, ok := validators.ValidateSessionRequest(c)
	if !ok {
		return
	}
	if !authorizeUser(c, req.UserID) {
		return
	}

	res, err := sc.svc.Heartbeat(c.Request.Context(), liveness.Request{
		UserID:           req.UserID,
		ClientInstanceID: req.ClientInstanceID,
		IPAddress:        c.ClientIP(),
		UserAgent:        c.GetHeader("User-Agent"),
	})
	if err != nil {
		sc.handleError(c, "Heartbeat failed", "ok", err)
		return
	}

	sendResponse(c, http.StatusOK, "Heartbeat recorded", map[string]interface{}{
		"ok":        true,
		"recreated": res.Recreated,
	}, nil)
}

// Remove releases a client instance. Absent instances are not an error.
func (sc *SessionController) Remove(c *gin.Context) {
	req, ok := validators.ValidateSessionRequest(c)
	if !ok {
		return
	}
	if !authorizeUser(c, req.UserID) {
		return
	}

	if err := sc.svc.Remove(c.Request.Context(), req.UserID, req.ClientInstanceID); err != nil {
		sc.handleError(c, "Remove failed", "ok", err)
		return
	}

	sendResponse(c, http.StatusOK, "Session removed", map[string]interface{}{
		"ok": true,
	}, nil)
}

// Validate tells a client whether its session is still admitted
func (sc *SessionController) Validate(c *gin.Context) {
	q, ok := validators.ValidateValidateQuery(c)
	if !ok {
		return
	}
	if !authorizeUser(c, q.UserID) {
		return
	}

	v, err := sc.svc.Validate(c.Request.Context(), q.UserID, q.ClientInstanceID)
	if err != nil {
		sc.handleError(c, "Validation failed", "isValid", err)
		return
	}

	sendResponse(c, http.StatusOK, "Session validated", v, nil)
}

// ForceRemoveUser drops every session of a user
func (sc *SessionController) ForceRemoveUser(c *gin.Context) {
	userID := c.Param("userId")

	removed, err := sc.svc.ForceRemoveUser(c.Request.Context(), userID)
	if err != nil {
		sc.handleError(c, "Remove failed", "ok", err)
		return
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"removed": removed,
	}).Info("Sessions force-removed")

	sendResponse(c, http.StatusOK, "User sessions removed", map[string]interface{}{
		"ok":      true,
		"removed": removed,
	}, nil)
}

// handleError maps service errors onto status codes. flag names the
// boolean result field reported as false.
func (sc *SessionController) handleError(c *gin.Context, message, flag string, err error) {
	var limitErr *liveness.LimitError
	switch {
	case errors.As(err, &limitErr):
		sendResponse(c, http.StatusConflict, message, map[string]interface{}{
			flag:     false,
			"code":   liveness.LimitCode,
			"scope":  limitErr.Scope,
			"reason": limitErr.Error(),
		}, liveness.LimitCode)
	case errors.Is(err, liveness.ErrInvalidInput):
		sendResponse(c, http.StatusBadRequest, message, nil, "Invalid request payload")
	case errors.Is(err, storage.ErrUnavailable):
		log.WithError(err).WithField("uri", c.Request.RequestURI).Warn("Session store unavailable")
		sendResponse(c, http.StatusServiceUnavailable, message, map[string]interface{}{
			flag: false,
		}, "Session store unavailable, retry later")
	default:
		log.WithError(err).WithField("uri", c.Request.RequestURI).Error("Session request failed")
		sendResponse(c, http.StatusInternalServerError, message, map[string]interface{}{
			flag: false,
		}, "Internal server error")
	}
}
