// Package response writes the JSON bodies returned by the HTTP handlers.
// Success bodies are flat objects; failures are {error, details?, request_id?}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ErrorBody struct {
	Error     string `json:"error"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func NewError(ctx *gin.Context, message string, details any) ErrorBody {
	return ErrorBody{
		Error:     message,
		Details:   details,
		RequestID: ctx.GetString("request_id"),
	}
}

// Success writes body with status, defaulting to 200.
func Success(ctx *gin.Context, status int, body any) {
	if status == 0 {
		status = http.StatusOK
	}
	ctx.JSON(status, body)
}

// Message writes {"message": msg}.
func Message(ctx *gin.Context, status int, msg string) {
	Success(ctx, status, gin.H{"message": msg})
}

// Error writes an error body with status, defaulting to 400.
func Error(ctx *gin.Context, status int, message string, details any) {
	if status == 0 {
		status = http.StatusBadRequest
	}
	ctx.JSON(status, NewError(ctx, message, details))
}

// Abort is Error for middleware: it also stops the handler chain.
func Abort(ctx *gin.Context, status int, message string) {
	ctx.AbortWithStatusJSON(status, NewError(ctx, message, nil))
}
