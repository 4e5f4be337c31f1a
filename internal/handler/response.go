package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"faceattend/internal/apperr"
)

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Data    any           `json:"data,omitempty"`
	Error   *apperr.Error `json:"error,omitempty"`
}

// JSON writes a successful envelope.
func JSON(c *gin.Context, status int, message string, data any) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// Created writes a 201 envelope.
func Created(c *gin.Context, message string, data any) {
	JSON(c, http.StatusCreated, message, data)
}

// Error classifies err and writes the failure envelope. Server-side failures
// are attached to the context so the access log records the cause.
func Error(c *gin.Context, err error) {
	appErr := apperr.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(appErr.Status, Envelope{Success: false, Message: appErr.Message, Error: appErr})
}
