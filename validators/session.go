package validators

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

type ValidationResponse struct {
	Errors []ValidationError `json:"errors"`
}

func Validate(data interface{}) []ValidationError {
	var validationErrors []ValidationError

	err := validate.Struct(data)
	if err != nil {
		if errors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range errors {
				validationErrors = append(validationErrors, ValidationError{
					Field: e.Field(),
					Tag:   e.Tag(),
					Value: e.Param(),
				})
			}
		}
	}

	return validationErrors
}

// SessionRequest is the body of register, heartbeat and remove.
type SessionRequest struct {
	UserID           string `json:"userId" validate:"required,max=255"`
	ClientInstanceID string `json:"clientInstanceId" validate:"omitempty,max=128,printascii"`
	Displace         bool   `json:"displace"`
}

type ValidateQuery struct {
	UserID           string `form:"userId" validate:"required,max=255"`
	ClientInstanceID string `form:"clientInstanceId" validate:"omitempty,max=128,printascii"`
}

type ActiveSessionsQuery struct {
	Page  int `form:"page" validate:"omitempty,min=1,max=1000000"`
	Limit int `form:"limit" validate:"omitempty,min=1,max=100"`
}

// ValidateSessionRequest decodes the body as JSON whatever its declared
// content type, so beacon senders posting text/plain are accepted.
func ValidateSessionRequest(c *gin.Context) (*SessionRequest, bool) {
	var req SessionRequest
	if err := c.ShouldBindWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request payload",
		})
		return nil, false
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.ClientInstanceID = strings.TrimSpace(req.ClientInstanceID)

	if errs := Validate(req); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, ValidationResponse{
			Errors: errs,
		})
		return nil, false
	}

	return &req, true
}

func ValidateValidateQuery(c *gin.Context) (*ValidateQuery, bool) {
	var q ValidateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return nil, false
	}
	q.UserID = strings.TrimSpace(q.UserID)
	q.ClientInstanceID = strings.TrimSpace(q.ClientInstanceID)

	if errs := Validate(q); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, ValidationResponse{
			Errors: errs,
		})
		return nil, false
	}

	return &q, true
}

func ValidateActiveSessionsQuery(c *gin.Context) (*ActiveSessionsQuery, bool) {
	var q ActiveSessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return nil, false
	}

	if errs := Validate(q); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, ValidationResponse{
			Errors: errs,
		})
		return nil, false
	}

	return &q, true
}
