package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一的返回结构
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Meta    any    `json:"meta,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// RespondSuccess 返回 200 和 {success: true, data}
func RespondSuccess(c *gin.Context, data any, meta any) {
	RespondSuccessWithStatus(c, http.StatusOK, data, meta)
}

func RespondSuccessWithStatus(c *gin.Context, status int, data any, meta any) {
	c.JSON(status, Response{Success: true, Data: data, Meta: meta})
}

// RespondError 返回 {success: false, error, message}
func RespondError(c *gin.Context, status int, code string, message string) {
	c.JSON(status, Response{Success: false, Error: code, Message: message})
}

// AbortWithError 同 RespondError，并终止后续 handler
func AbortWithError(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: code, Message: message})
}

// RespondFields 返回 {success: true, ...fields}，字段直接放在顶层
func RespondFields(c *gin.Context, status int, fields gin.H) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}
