package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

// The registration gateway keeps the {success, error} envelope its clients expect.

type GatewayResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

func RespondSuccess(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, GatewayResponse{Success: true})
}

func RespondFailure(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusInternalServerError, GatewayResponse{Success: false, Error: message})
}

func RespondRejected(ctx *gin.Context, fields []FieldError) {
	ctx.JSON(http.StatusBadRequest, GatewayResponse{
		Success: false,
		Error:   "invalid registration",
		Fields:  fields,
	})
}
