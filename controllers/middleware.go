package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger returns a middleware that logs HTTP requests.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(RequestIDHeader, id)

		c.Next()

		stop := time.Now()
		req := c.Request
		status := c.Writer.Status()

		entry := log.WithFields(log.Fields{
			"id":            id,
			"remote_ip":     c.ClientIP(),
			"host":          req.Host,
			"method":        req.Method,
			"uri":           req.RequestURI,
			"protocol":      req.Proto,
			"user_agent":    req.UserAgent(),
			"status":        status,
			"status_text":   http.StatusText(status),
			"bytes_in":      req.ContentLength,
			"bytes_out":     c.Writer.Size(),
			"latency":       stop.Sub(start).Nanoseconds(),
			"latency_human": stop.Sub(start).String(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("error", c.Errors.String())
		}
		if status >= http.StatusInternalServerError {
			entry.Warnf("%s %s %s %d", req.Method, req.RequestURI, req.Proto, status)
			return
		}
		entry.Infof("%s %s %s %d", req.Method, req.RequestURI, req.Proto, status)
	}
}
