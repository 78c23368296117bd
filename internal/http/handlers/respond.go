package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Success bodies carry "data" and/or "message" keys; failures carry "message"
// plus optional field-level "errors". The request id rides along for support.

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

func RespondData(ctx *gin.Context, data interface{}, message string) {
	body := gin.H{"data": data}

	if message != "" {
		body["message"] = message
	}

	ctx.JSON(http.StatusOK, body)
}

func RespondMessage(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusOK, gin.H{"message": message})
}

func RespondError(ctx *gin.Context, status int, message string, details interface{}) {
	body := gin.H{
		"message": message,
	}

	if details != nil {
		body["errors"] = details
	}

	if id := requestIDFrom(ctx); id != "" {
		body["requestId"] = id
	}

	ctx.JSON(status, body)
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, message, details)
}

func RespondUnAuthorized(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnauthorized, message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, message, nil)
}
